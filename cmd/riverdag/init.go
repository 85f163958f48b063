// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const initTemplate = `name: %s
description: ""
on_error: stop
vars: {}
steps:
  - fetch:
      url: "https://example.com/data.json"
  - transform:
      select: []
  - load:
      target: "stdout"
`

func newInitCommand(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "init [flags] <file>",
		Short: "Scaffold a new pipeline description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := args[0]
			if _, err := os.Stat(file); err == nil {
				return fmt.Errorf("riverdag: %s already exists", file)
			}
			if name == "" {
				name = "new-pipeline"
			}
			content := fmt.Sprintf(initTemplate, name)
			if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
				return fmt.Errorf("riverdag: write %s: %w", file, err)
			}
			a.log.Infof("wrote scaffold pipeline %q to %s", name, file)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "pipeline name (default: new-pipeline)")
	return cmd
}
