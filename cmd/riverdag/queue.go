// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/riverdag/riverdag/internal/yamlload"
)

func newQueueCommand(a *app) *cobra.Command {
	var varFlags []string

	cmd := &cobra.Command{
		Use:   "queue <file>",
		Short: "Enqueue a pipeline description onto the Kanban backlog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("riverdag: %w", err)
			}
			def, err := yamlload.LoadFile(file)
			if err != nil {
				return err
			}
			overrides, err := parseVarFlags(varFlags)
			if err != nil {
				return err
			}
			id, err := a.kanban.Enqueue(file, def.Name, overrides)
			if err != nil {
				return fmt.Errorf("riverdag: %w", err)
			}
			a.log.Infof("queued pipeline %q as %s", def.Name, id)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&varFlags, "var", nil, "override a pipeline variable, K=V (repeatable)")
	return cmd
}
