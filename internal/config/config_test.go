// Copyright (C) 2024 The RiverDAG Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestResolvePathsEnvOverride(t *testing.T) {
	tmp := t.TempDir()
	home := filepath.Join(tmp, "custom-home")
	t.Setenv("TEST_RIVERDAG_HOME", home)

	paths := ResolvePaths("TEST_RIVERDAG_HOME", "", XDGConfig{})

	require.Equal(t, home, paths.ConfigDir)
	require.Equal(t, filepath.Join(home, "pipelines"), paths.PipelinesDir)
	require.Equal(t, filepath.Join(home, "data", "metrics.db"), paths.MetricsDBFile)
	require.Equal(t, filepath.Join(home, "data", "kanban.json"), paths.KanbanFile)
}

func TestResolvePathsLegacyHomeDirectory(t *testing.T) {
	tmp := t.TempDir()
	legacy := filepath.Join(tmp, ".riverdag")
	require.NoError(t, os.MkdirAll(legacy, 0o755))

	paths := ResolvePaths("TEST_RIVERDAG_HOME_UNSET", legacy, XDGConfig{})

	require.Equal(t, legacy, paths.ConfigDir)
}

func TestResolvePathsXDGFallback(t *testing.T) {
	tmp := t.TempDir()

	paths := ResolvePaths("TEST_RIVERDAG_HOME_UNSET_2", "", XDGConfig{ConfigHome: tmp})

	require.Equal(t, filepath.Join(tmp, AppSlug), paths.ConfigDir)
}

func TestPathsEnsureDirs(t *testing.T) {
	tmp := t.TempDir()
	paths := ResolvePaths("TEST_RIVERDAG_HOME_UNSET_3", "", XDGConfig{ConfigHome: tmp})

	require.NoError(t, paths.EnsureDirs())

	for _, d := range []string{paths.ConfigDir, paths.PipelinesDir, paths.DataDir, paths.LogsDir, paths.CheckpointDir, paths.CacheDir} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}
}

func TestLoadRejectsInvalidLogFormat(t *testing.T) {
	t.Setenv(HomeEnvVar, t.TempDir())
	v := viper.New()
	v.Set("log-format", "xml")

	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(HomeEnvVar, t.TempDir())
	v := viper.New()

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "text", cfg.LogFormat)
	require.False(t, cfg.Debug)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv(HomeEnvVar, t.TempDir())
	t.Setenv("RIVERDAG_DEBUG", "true")
	t.Setenv("RIVERDAG_LOG_FORMAT", "json")
	v := viper.New()

	cfg, err := Load(v)
	require.NoError(t, err)
	require.True(t, cfg.Debug)
	require.Equal(t, "json", cfg.LogFormat)
}
