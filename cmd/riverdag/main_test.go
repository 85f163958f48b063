// Copyright (C) 2024 The RiverDAG Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersAllSubcommands(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "validate", "init", "metrics", "board", "lint", "queue", "work"} {
		require.True(t, names[want], "expected %q subcommand to be registered", want)
	}
}

func TestParseVarFlags(t *testing.T) {
	out, err := parseVarFlags([]string{"threshold=10", "name=demo"})
	require.NoError(t, err)
	require.Equal(t, "10", out["threshold"])
	require.Equal(t, "demo", out["name"])
}

func TestParseVarFlagsRejectsMissingEquals(t *testing.T) {
	_, err := parseVarFlags([]string{"threshold"})
	require.Error(t, err)
}

func TestParseVarFlagsEmpty(t *testing.T) {
	out, err := parseVarFlags(nil)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestAnyKeyPresent(t *testing.T) {
	config := map[string]any{"url": "http://x"}
	require.True(t, anyKeyPresent(config, []string{"uri", "url"}))
	require.False(t, anyKeyPresent(config, []string{"path"}))
}

func TestValidateAndInitCommandsEndToEnd(t *testing.T) {
	t.Setenv("RIVERDAG_HOME", t.TempDir())

	dir := t.TempDir()
	file := filepath.Join(dir, "pipeline.yaml")

	root := newRootCommand()
	root.SetArgs([]string{"init", "--name", "demo", file})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	require.Contains(t, string(data), "name: demo")

	root = newRootCommand()
	root.SetArgs([]string{"validate", file})
	require.NoError(t, root.Execute())
}

func TestInitRefusesToOverwriteExistingFile(t *testing.T) {
	t.Setenv("RIVERDAG_HOME", t.TempDir())

	dir := t.TempDir()
	file := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: existing\n"), 0o644))

	root := newRootCommand()
	root.SetArgs([]string{"init", file})
	require.Error(t, root.Execute())
}

func TestLintReportsMissingRequiredAlternative(t *testing.T) {
	t.Setenv("RIVERDAG_HOME", t.TempDir())

	dir := t.TempDir()
	file := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
name: demo
steps:
  - shell:
      timeout: 5
`), 0o644))

	root := newRootCommand()
	root.SetArgs([]string{"lint", file})
	require.Error(t, root.Execute())
}
