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

// Package cfg provides tolerant accessors over a step's config map,
// since YAML/JSON decoding (goccy/go-yaml, encoding/json) hands back
// plain map[string]any/[]any trees rather than typed Go structures.
package cfg

import "fmt"

func String(c map[string]any, key, def string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func Bool(c map[string]any, key string, def bool) bool {
	if v, ok := c[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func Int(c map[string]any, key string, def int) int {
	if v, ok := c[key]; ok {
		switch t := v.(type) {
		case int:
			return t
		case int64:
			return int(t)
		case float64:
			return int(t)
		}
	}
	return def
}

// Strings coerces a config value that may be []string or []any (of
// strings) into a []string, or nil.
func Strings(c map[string]any, key string) []string {
	v, ok := c[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

// StringMap coerces a config value that may be map[string]string or
// map[string]any into a map[string]string.
func StringMap(c map[string]any, key string) map[string]string {
	v, ok := c[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case map[string]string:
		return t
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, e := range t {
			if s, ok := e.(string); ok {
				out[k] = s
			} else {
				out[k] = fmt.Sprintf("%v", e)
			}
		}
		return out
	}
	return nil
}

// Map coerces a config value into map[string]any.
func Map(c map[string]any, key string) map[string]any {
	v, ok := c[key]
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// Has reports whether a key is present in the config.
func Has(c map[string]any, key string) bool {
	_, ok := c[key]
	return ok
}
