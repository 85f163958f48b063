// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riverdag/riverdag/internal/pipeline"
	"github.com/riverdag/riverdag/internal/store"
	"github.com/riverdag/riverdag/internal/yamlload"
)

func newWorkCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "work [flags]",
		Short: "Drain the Kanban backlog, running items one at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			driver := pipeline.NewDriver(a.registry, a.metrics, a.kanban, a.checkpoints, a.hashes)

			processed := 0
			for limit <= 0 || processed < limit {
				item, ok, err := a.kanban.NextBacklog()
				if err != nil {
					return fmt.Errorf("riverdag: %w", err)
				}
				if !ok {
					break
				}

				def, err := yamlload.LoadFile(item.PipelineFile)
				if err != nil {
					_ = a.kanban.Transition(item.ID, store.KanbanFailed, err.Error(), "")
					a.log.Errorf("item %s: %v", item.ID, err)
					processed++
					continue
				}

				dctx, runErr := driver.Run(cmd.Context(), def, nil, pipeline.RunOptions{
					KanbanItemID: item.ID,
					VarOverrides: item.Variables,
				})
				if runErr != nil {
					a.log.Errorf("item %s (%s) failed: %v", item.ID, def.Name, runErr)
				} else {
					a.log.Infof("item %s (%s) completed: %d rows", item.ID, def.Name, len(dctx.Data))
				}
				processed++
			}

			a.log.Infof("work: processed %d item(s)", processed)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of backlog items to process (0 = drain entirely)")
	return cmd
}
