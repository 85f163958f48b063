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

package aggregate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/steps/aggregate"
)

func rowOf(c string, n int64) *row.Row {
	r := row.NewRow()
	r.Set("c", row.String(c))
	r.Set("n", row.Int(n))
	return r
}

// TestGroupBySumCountSortDesc exercises spec.md §8 Scenario 5.
func TestGroupBySumCountSortDesc(t *testing.T) {
	data := row.Dataset{rowOf("x", 1), rowOf("x", 3), rowOf("y", 2)}

	out, err := aggregate.Apply(data, map[string]any{
		"group_by":  []string{"c"},
		"functions": map[string]any{"s": "sum(n)", "k": "count(n)"},
		"sort":      "s desc",
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "x", out[0].Get("c").Str())
	assert.Equal(t, int64(4), out[0].Get("s").Int())
	assert.Equal(t, int64(2), out[0].Get("k").Int())

	assert.Equal(t, "y", out[1].Get("c").Str())
	assert.Equal(t, int64(2), out[1].Get("s").Int())
	assert.Equal(t, int64(1), out[1].Get("k").Int())
}

func TestHavingFiltersGroups(t *testing.T) {
	data := row.Dataset{rowOf("x", 1), rowOf("x", 3), rowOf("y", 2)}

	out, err := aggregate.Apply(data, map[string]any{
		"group_by":  []string{"c"},
		"functions": map[string]any{"s": "sum(n)"},
		"having":    "s>3",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0].Get("c").Str())
}

func TestCountDistinct(t *testing.T) {
	data := row.Dataset{rowOf("x", 1), rowOf("x", 1), rowOf("x", 2)}

	out, err := aggregate.Apply(data, map[string]any{
		"group_by":  []string{"c"},
		"functions": map[string]any{"d": "count_distinct(n)"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].Get("d").Int())
}
