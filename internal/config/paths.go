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

// Package config resolves process-wide configuration: where pipeline
// files, the metrics database, the Kanban and checkpoint stores live,
// and the debug/log-format switches the CLI exposes (spec.md §6's
// persisted-state layout, bound through spf13/viper the way the
// teacher's cmd/config.go binds its flag set).
package config

import (
	"os"
	"path/filepath"
)

// AppSlug names the application's config/data directory.
const AppSlug = "riverdag"

// XDGConfig carries the two base directories the XDG Base Directory
// spec defines. Only ConfigHome is used; an empty ConfigHome falls back
// to $XDG_CONFIG_HOME, then "$HOME/.config". DataHome is not read: the
// data directory always lives under the config directory.
type XDGConfig struct {
	ConfigHome string
	DataHome   string
}

// Paths is the resolved set of on-disk locations RiverDAG's stores bind
// to (spec.md §6 "Persisted-state layout").
type Paths struct {
	ConfigDir      string
	PipelinesDir   string
	DataDir        string
	LogsDir        string
	MetricsDBFile  string
	KanbanFile     string
	CheckpointDir  string
	CacheDir       string
	HashFile       string
	BaseConfigFile string
}

// ResolvePaths computes Paths from, in priority order: the named
// environment variable (e.g. "RIVERDAG_HOME"), a legacy dotfile home
// directory (kept for upgrade compatibility, mirroring the teacher's
// "LegacyHomeDirectory" resolution), then the XDG config home.
func ResolvePaths(envVar, legacyHomeDir string, xdg XDGConfig) Paths {
	configDir := resolveConfigDir(envVar, legacyHomeDir, xdg)
	dataDir := filepath.Join(configDir, "data")
	return Paths{
		ConfigDir:      configDir,
		PipelinesDir:   filepath.Join(configDir, "pipelines"),
		DataDir:        dataDir,
		LogsDir:        filepath.Join(configDir, "logs"),
		MetricsDBFile:  filepath.Join(dataDir, "metrics.db"),
		KanbanFile:     filepath.Join(dataDir, "kanban.json"),
		CheckpointDir:  filepath.Join(dataDir, "checkpoint"),
		CacheDir:       filepath.Join(dataDir, "cache"),
		HashFile:       filepath.Join(dataDir, "hashes.json"),
		BaseConfigFile: filepath.Join(configDir, "config.yaml"),
	}
}

func resolveConfigDir(envVar, legacyHomeDir string, xdg XDGConfig) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if legacyHomeDir != "" {
		if info, err := os.Stat(legacyHomeDir); err == nil && info.IsDir() {
			return legacyHomeDir
		}
	}
	configHome := xdg.ConfigHome
	if configHome == "" {
		configHome = defaultXDGConfigHome()
	}
	return filepath.Join(configHome, AppSlug)
}

func defaultXDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config"
	}
	return filepath.Join(home, ".config")
}

// EnsureDirs creates every directory Paths references (not the files),
// idempotently.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.ConfigDir, p.PipelinesDir, p.DataDir, p.LogsDir, p.CheckpointDir, p.CacheDir}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
