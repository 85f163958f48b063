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

// Package yamlload implements the YAML -> pipeline.Definition contract
// spec.md §6 describes as an external collaborator: a pipeline
// description (linear steps or explicit graph), {var_name} and
// $VAR/${VAR} interpolation in string-valued config, decoded with
// goccy/go-yaml the way the teacher decodes its DAG definitions.
package yamlload

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/goccy/go-yaml"

	"github.com/riverdag/riverdag/internal/engine"
	"github.com/riverdag/riverdag/internal/pipeline"
	"github.com/riverdag/riverdag/internal/planner"
	"github.com/riverdag/riverdag/internal/step"
)

// DefinitionError reports a malformed pipeline description: parse
// failure, an unknown/ambiguous step entry, or neither/both of
// steps/graph given. Per spec.md §7 this surfaces to the caller
// without anything having executed.
type DefinitionError struct {
	Reason string
}

func (e *DefinitionError) Error() string { return "yamlload: " + e.Reason }

type rawGraphNode struct {
	Step   string         `yaml:"step"`
	Type   string         `yaml:"type"`
	After  any            `yaml:"after"`
	Config map[string]any `yaml:"config"`
}

type rawDefinition struct {
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Vars        map[string]any          `yaml:"vars"`
	OnError     string                  `yaml:"on_error"`
	JIT         bool                    `yaml:"jit"`
	Checkpoint  bool                    `yaml:"checkpoint"`
	Steps       []map[string]any        `yaml:"steps"`
	Graph       map[string]rawGraphNode `yaml:"graph"`
}

// LoadFile reads and parses the pipeline description at path.
func LoadFile(path string) (*pipeline.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("yamlload: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a pipeline description from YAML bytes into a
// pipeline.Definition, performing variable/environment interpolation
// over every string-valued config entry.
func Parse(data []byte) (*pipeline.Definition, error) {
	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &DefinitionError{Reason: fmt.Sprintf("parse: %v", err)}
	}
	if raw.Name == "" {
		return nil, &DefinitionError{Reason: "name is required"}
	}
	if len(raw.Steps) > 0 == (len(raw.Graph) > 0) {
		return nil, &DefinitionError{Reason: "exactly one of steps or graph must be specified"}
	}

	vars := raw.Vars
	if vars == nil {
		vars = map[string]any{}
	}

	def := &pipeline.Definition{
		Name:        raw.Name,
		Description: raw.Description,
		Vars:        vars,
		OnError:     engine.OnError(raw.OnError),
		JIT:         raw.JIT,
		Checkpoint:  raw.Checkpoint,
	}
	if def.OnError == "" {
		def.OnError = engine.OnErrorStop
	}
	if def.OnError != engine.OnErrorStop && def.OnError != engine.OnErrorSkip {
		return nil, &DefinitionError{Reason: fmt.Sprintf("on_error must be %q or %q, got %q", engine.OnErrorStop, engine.OnErrorSkip, def.OnError)}
	}

	if len(raw.Steps) > 0 {
		steps, err := parseSteps(raw.Steps, vars)
		if err != nil {
			return nil, err
		}
		def.Steps = steps
	} else {
		graph, err := parseGraph(raw.Graph, vars)
		if err != nil {
			return nil, err
		}
		def.Graph = graph
	}
	return def, nil
}

func parseSteps(raw []map[string]any, vars map[string]any) ([]step.Spec, error) {
	out := make([]step.Spec, 0, len(raw))
	for i, entry := range raw {
		if len(entry) != 1 {
			return nil, &DefinitionError{Reason: fmt.Sprintf("steps[%d]: each entry must be a single-key mapping of step_type to config, got %d keys", i, len(entry))}
		}
		for stepType, rawConfig := range entry {
			config, err := asConfig(rawConfig)
			if err != nil {
				return nil, &DefinitionError{Reason: fmt.Sprintf("steps[%d] (%s): %v", i, stepType, err)}
			}
			out = append(out, step.Spec{Type: stepType, Config: interpolateConfig(config, vars)})
		}
	}
	return out, nil
}

func parseGraph(raw map[string]rawGraphNode, vars map[string]any) (map[string]planner.GraphNodeSpec, error) {
	out := make(map[string]planner.GraphNodeSpec, len(raw))
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := raw[id]
		stepType := node.Step
		if stepType == "" {
			stepType = node.Type
		}
		if stepType == "" {
			return nil, &DefinitionError{Reason: fmt.Sprintf("graph[%s]: step (or type) is required", id)}
		}
		out[id] = planner.GraphNodeSpec{
			Step:   stepType,
			After:  toStringSlice(node.After),
			Config: interpolateConfig(node.Config, vars),
		}
	}
	return out, nil
}

func asConfig(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config must be a mapping")
	}
	return m, nil
}

func toStringSlice(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		return nil
	}
}

var varRefPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)
var envBracedPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
var envBarePattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// interpolateConfig walks config recursively, substituting "{var_name}"
// references against vars and "$VAR"/"${VAR}" references against the
// process environment in every string value (spec.md §6). Map keys are
// left untouched: YAML decoding into map[string]any already coerces a
// boolean-like scalar key (on/off/yes/no) back to its literal string
// form, since the target key type is string — spec.md §6's "coerce back
// to their string literal when used as keys" falls out of that decode
// step for free rather than needing special-casing here.
func interpolateConfig(v any, vars map[string]any) map[string]any {
	out, _ := interpolateValue(v, vars).(map[string]any)
	if out == nil {
		return map[string]any{}
	}
	return out
}

func interpolateValue(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		return interpolateString(t, vars)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = interpolateValue(e, vars)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = interpolateValue(e, vars)
		}
		return out
	default:
		return v
	}
}

func interpolateString(s string, vars map[string]any) string {
	s = varRefPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1 : len(match)-1]
		if val, ok := vars[name]; ok {
			return fmt.Sprintf("%v", val)
		}
		return match
	})
	s = envBracedPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
	s = envBarePattern.ReplaceAllStringFunc(s, func(match string) string {
		name := match[1:]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
	return s
}
