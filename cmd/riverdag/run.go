// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/riverdag/riverdag/internal/pipeline"
	"github.com/riverdag/riverdag/internal/yamlload"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		varFlags []string
		dryRun   bool
		verbose  bool
		resume   bool
	)

	cmd := &cobra.Command{
		Use:   "run [flags] <file>",
		Short: "Run a pipeline description",
		Long:  `riverdag run [--var K=V]... [--dry-run] [--verbose] [--resume] <file>`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			def, err := yamlload.LoadFile(file)
			if err != nil {
				return err
			}

			overrides, err := parseVarFlags(varFlags)
			if err != nil {
				return err
			}

			if dryRun {
				return runDryRun(a, def)
			}

			driver := pipeline.NewDriver(a.registry, a.metrics, a.kanban, a.checkpoints, a.hashes)
			dctx, runErr := driver.Run(cmd.Context(), def, nil, pipeline.RunOptions{
				Resume:       resume,
				VarOverrides: overrides,
			})

			if verbose {
				for _, t := range pipeline.StepTimings(dctx) {
					a.log.Infof("step %s (%s) took %s", t.NodeID, t.StepType, t.Duration)
				}
			}
			if runErr != nil {
				a.log.Errorf("pipeline %q failed: %v", def.Name, runErr)
				return runErr
			}
			a.log.Infof("pipeline %q completed: %d rows", def.Name, len(dctx.Data))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&varFlags, "var", nil, "override a pipeline variable, K=V (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and plan the pipeline without executing it")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "print a per-step duration breakdown after the run")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last checkpoint instead of starting fresh")
	return cmd
}

// runDryRun builds the execution DAG and runs the planner's optimization
// passes without invoking the executor, surfacing any definition or
// planning error the same way `validate` does plus the resolved node
// count, matching the teacher's dry command's role of a side-effect-free
// rehearsal.
func runDryRun(a *app, def *pipeline.Definition) error {
	_, nodeIDs, err := planGraph(a, def)
	if err != nil {
		return err
	}
	a.log.Infof("dry-run: pipeline %q would run %d node(s): %s", def.Name, len(nodeIDs), strings.Join(nodeIDs, ", "))
	return nil
}

// parseVarFlags turns repeated "--var K=V" flags into an overrides map.
func parseVarFlags(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(flags))
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("riverdag: --var must be K=V, got %q", f)
		}
		out[k] = v
	}
	return out, nil
}
