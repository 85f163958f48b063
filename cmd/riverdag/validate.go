// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riverdag/riverdag/internal/dag"
	"github.com/riverdag/riverdag/internal/pipeline"
	"github.com/riverdag/riverdag/internal/planner"
	"github.com/riverdag/riverdag/internal/yamlload"
)

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Load and plan a pipeline description without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := yamlload.LoadFile(args[0])
			if err != nil {
				return err
			}
			_, nodeIDs, err := planGraph(a, def)
			if err != nil {
				return err
			}
			a.log.Infof("pipeline %q is valid: %d node(s)", def.Name, len(nodeIDs))
			return nil
		},
	}
}

// planGraph lowers def into an ExecutionDAG, runs the planner's
// optimization passes against the shared registry, and returns the
// graph along with its topological node order. Shared by validate and
// run's --dry-run path.
func planGraph(a *app, def *pipeline.Definition) (*dag.Graph, []string, error) {
	var g *dag.Graph
	var err error
	if def.IsGraph() {
		g, err = planner.BuildGraph(def.Graph)
	} else {
		g, err = planner.BuildLinear(def.Steps)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("riverdag: build graph: %w", err)
	}
	if err := planner.Optimize(g, a.registry); err != nil {
		return nil, nil, fmt.Errorf("riverdag: optimize: %w", err)
	}
	order, err := g.TopoSort()
	if err != nil {
		return nil, nil, fmt.Errorf("riverdag: %w", err)
	}
	return g, order, nil
}
