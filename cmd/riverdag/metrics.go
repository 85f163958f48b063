// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newMetricsCommand(a *app) *cobra.Command {
	var pipelineName string
	var last int

	cmd := &cobra.Command{
		Use:   "metrics [flags]",
		Short: "Show recorded run metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pipelineName == "" {
				return fmt.Errorf("riverdag: --pipeline is required")
			}
			if last <= 0 {
				last = 10
			}
			runs, err := a.metrics.RecentForPipeline(cmd.Context(), pipelineName, last)
			if err != nil {
				return fmt.Errorf("riverdag: %w", err)
			}
			if len(runs) == 0 {
				a.log.Infof("no recorded runs for pipeline %q", pipelineName)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tSTATUS\tROWS\tDURATION\tSTEPS")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.TotalRows, r.TotalDuration, len(r.Steps))
				for _, s := range r.Steps {
					fmt.Fprintf(w, "\t  %s (%s)\t%d rows\t%dms\t\n", s.NodeID, s.StepType, s.Rows, s.Duration)
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&pipelineName, "pipeline", "", "pipeline name to report on (required)")
	cmd.Flags().IntVar(&last, "last", 10, "number of most recent runs to show")
	return cmd
}
