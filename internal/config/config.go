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
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix spf13/viper binds environment overrides
// under, e.g. RIVERDAG_DEBUG=true.
const EnvPrefix = "RIVERDAG"

// HomeEnvVar names the environment variable used to override the
// resolved config directory wholesale (spec.md §6 deployment knob).
const HomeEnvVar = "RIVERDAG_HOME"

// Config is the process-wide configuration every `riverdag` subcommand
// reads: where things live on disk and how the logger should behave.
// Built once in cmd/riverdag from flags + environment + defaults, via
// Load; no config file is read.
type Config struct {
	Paths     Paths
	Debug     bool
	Quiet     bool
	LogFormat string // "text" or "json"
}

// Load builds a Config from v, which the caller has already had cobra
// bind persistent flags into (mirrors the teacher's cmd/config.go
// pattern of binding flags to viper before calling the loader). Any
// flag left unset falls back to its environment variable
// (RIVERDAG_DEBUG, RIVERDAG_LOG_FORMAT, ...) and finally a default.
func Load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-format", "text")
	v.SetDefault("debug", false)
	v.SetDefault("quiet", false)

	format := v.GetString("log-format")
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("config: log-format must be \"text\" or \"json\", got %q", format)
	}

	paths := ResolvePaths(HomeEnvVar, "", XDGConfig{})
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("config: prepare directories: %w", err)
	}

	return &Config{
		Paths:     paths,
		Debug:     v.GetBool("debug"),
		Quiet:     v.GetBool("quiet"),
		LogFormat: format,
	}, nil
}
