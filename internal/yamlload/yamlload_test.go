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

package yamlload

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/engine"
)

func TestParseLinearSteps(t *testing.T) {
	src := `
name: demo
on_error: skip
vars:
  threshold: 10
steps:
  - transform:
      filter: "price > {threshold}"
  - clean:
      trim: [name]
`
	def, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "demo", def.Name)
	require.Equal(t, engine.OnErrorSkip, def.OnError)
	require.Len(t, def.Steps, 2)
	require.Equal(t, "transform", def.Steps[0].Type)
	require.Equal(t, "price > 10", def.Steps[0].Config["filter"])
	require.Equal(t, "clean", def.Steps[1].Type)
}

func TestParseGraphSteps(t *testing.T) {
	src := `
name: demo-graph
graph:
  root:
    step: fetch
    config:
      url: "http://example.com"
  a:
    step: transform
    after: root
    config:
      select: [id]
  b:
    step: transform
    after: root
    config:
      select: [id]
  sink:
    type: join
    after: [a, b]
    config: {}
`
	def, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Len(t, def.Graph, 4)
	require.Equal(t, []string{"a", "b"}, def.Graph["sink"].After)
	require.Equal(t, "join", def.Graph["sink"].Step)
}

func TestParseDefaultsOnErrorToStop(t *testing.T) {
	src := `
name: demo
steps:
  - guard: {}
`
	def, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, engine.OnErrorStop, def.OnError)
}

func TestParseRejectsNeitherStepsNorGraph(t *testing.T) {
	_, err := Parse([]byte("name: demo\n"))
	require.Error(t, err)
}

func TestParseRejectsBothStepsAndGraph(t *testing.T) {
	src := `
name: demo
steps:
  - guard: {}
graph:
  a:
    step: guard
`
	_, err := Parse([]byte(src))
	require.Error(t, err)
}

func TestParseRejectsMultiKeyStepEntry(t *testing.T) {
	src := `
name: demo
steps:
  - guard: {}
    transform: {}
`
	_, err := Parse([]byte(src))
	require.Error(t, err)
}

func TestParseRejectsMissingName(t *testing.T) {
	_, err := Parse([]byte("steps:\n  - guard: {}\n"))
	require.Error(t, err)
}

func TestParseRejectsInvalidOnError(t *testing.T) {
	src := `
name: demo
on_error: retry
steps:
  - guard: {}
`
	_, err := Parse([]byte(src))
	require.Error(t, err)
}

func TestInterpolateEnvVars(t *testing.T) {
	t.Setenv("RIVERDAG_TEST_URL", "http://internal.example.com")
	src := `
name: demo
steps:
  - fetch:
      url: "${RIVERDAG_TEST_URL}/path"
`
	def, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "http://internal.example.com/path", def.Steps[0].Config["url"])
}

func TestInterpolateBareEnvVar(t *testing.T) {
	t.Setenv("RIVERDAG_TEST_BARE", "abc123")
	src := `
name: demo
steps:
  - fetch:
      url: "$RIVERDAG_TEST_BARE/path"
`
	def, err := Parse([]byte(src))
	require.NoError(t, err)
	require.Equal(t, "abc123/path", def.Steps[0].Config["url"])
}

func TestInterpolateLeavesUnknownVarReferenceAlone(t *testing.T) {
	src := `
name: demo
steps:
  - transform:
      compute:
        x: "{unknown_var}"
`
	def, err := Parse([]byte(src))
	require.NoError(t, err)
	compute := def.Steps[0].Config["compute"].(map[string]any)
	require.Equal(t, "{unknown_var}", compute["x"])
}

func TestBooleanLikeConfigKeyStaysLiteral(t *testing.T) {
	src := `
name: demo
steps:
  - clean:
      replace:
        on: "off"
`
	def, err := Parse([]byte(src))
	require.NoError(t, err)
	replace := def.Steps[0].Config["replace"].(map[string]any)
	_, hasOn := replace["on"]
	require.True(t, hasOn, "expected boolean-like key 'on' to survive as a literal string key")
}
