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

package step

// Streaming describes a step type's streaming capability.
type Streaming int

const (
	StreamingNone Streaming = iota
	StreamingAlways
	StreamingConditional
)

// Escalation is one (row-count threshold, strategy) pair. Escalations
// are evaluated in ascending threshold order (spec.md §3, §4.5).
type Escalation struct {
	Threshold    int
	Strategy     string
}

// Meta is the static, immutable-per-step-type descriptor spec.md §3
// calls StepMeta.
type Meta struct {
	Name               string
	Description        string
	DefaultStrategy    string
	Escalations        []Escalation
	StreamingBreakers  map[string]bool // config keys that force materialization
	Streaming          Streaming
	Fusable            bool
	IsSource           bool
	ConfigDocs         map[string]string
	// RequiredAlternatives lists sets of config keys where at least one
	// member of each inner slice must be present (used by `lint`).
	RequiredAlternatives [][]string
}

// HasStreamingBreaker reports whether config contains any key this step
// type declares as a streaming breaker.
func (m Meta) HasStreamingBreaker(config map[string]any) bool {
	for k := range config {
		if m.StreamingBreakers[k] {
			return true
		}
	}
	return false
}

// StrategyFor resolves the effective strategy for a node given an
// estimated row count, applying escalations in ascending threshold order
// with the "last applicable rule wins" rule from spec.md §4.5, and
// suppressing a `streaming` escalation when the config carries a
// streaming breaker for this step type.
func (m Meta) StrategyFor(estimatedRows int, config map[string]any) string {
	strategy := m.DefaultStrategy
	for _, esc := range m.Escalations {
		if estimatedRows > esc.Threshold {
			if esc.Strategy == "streaming" && m.HasStreamingBreaker(config) {
				continue
			}
			strategy = esc.Strategy
		}
	}
	return strategy
}
