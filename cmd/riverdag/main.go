// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

// Command riverdag is the CLI front end spec.md §6 names as an external
// collaborator: it resolves config, wires up the stores, loads a YAML
// pipeline description and drives it through internal/pipeline.
package main

import "os"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
