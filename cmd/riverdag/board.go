// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBoardCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the Kanban board of queued and running pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := a.kanban.List()
			if err != nil {
				return fmt.Errorf("riverdag: %w", err)
			}
			if len(items) == 0 {
				a.log.Infof("kanban board is empty")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPIPELINE\tSTATE\tUPDATED\tERROR")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					it.ID, it.PipelineName, it.State, it.UpdatedAt.Format("2006-01-02 15:04:05"), it.Error)
			}
			return w.Flush()
		},
	}
}
