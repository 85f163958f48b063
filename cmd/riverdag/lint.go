// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/riverdag/riverdag/internal/yamlload"
)

func newLintCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lint <file>",
		Short: "Check a pipeline description's step configs against required-alternative config keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := yamlload.LoadFile(args[0])
			if err != nil {
				return err
			}

			var problems []string
			if def.IsGraph() {
				for id, node := range def.Graph {
					problems = append(problems, lintNode(a, fmt.Sprintf("graph[%s]", id), node.Step, node.Config)...)
				}
			} else {
				for i, s := range def.Steps {
					problems = append(problems, lintNode(a, fmt.Sprintf("steps[%d]", i), s.Type, s.Config)...)
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					a.log.Warnf("%s", p)
				}
				return fmt.Errorf("riverdag: lint found %d problem(s)", len(problems))
			}
			a.log.Infof("pipeline %q: no lint problems found", def.Name)
			return nil
		},
	}
}

func lintNode(a *app, label, stepType string, config map[string]any) []string {
	meta, ok := a.registry.Meta(stepType)
	if !ok {
		return []string{fmt.Sprintf("%s: unknown step type %q", label, stepType)}
	}
	var problems []string
	for _, alts := range meta.RequiredAlternatives {
		if !anyKeyPresent(config, alts) {
			problems = append(problems, fmt.Sprintf("%s (%s): requires one of [%s]", label, stepType, strings.Join(alts, ", ")))
		}
	}
	return problems
}

func anyKeyPresent(config map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := config[k]; ok {
			return true
		}
	}
	return false
}
