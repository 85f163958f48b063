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

package join_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/row"
	"github.com/riverdag/riverdag/internal/steps/join"
)

func rowOf(kv map[string]any) *row.Row {
	r := row.NewRow()
	for k, v := range kv {
		r.Set(k, row.FromAny(v))
	}
	return r
}

// TestOuterJoin exercises spec.md §8 Scenario 4.
func TestOuterJoin(t *testing.T) {
	left := row.Dataset{
		rowOf(map[string]any{"id": int64(1), "v": "x"}),
		rowOf(map[string]any{"id": int64(2), "v": "y"}),
	}
	right := row.Dataset{
		rowOf(map[string]any{"id": int64(2), "w": "B"}),
		rowOf(map[string]any{"id": int64(3), "w": "C"}),
	}

	out, err := join.Apply(left, right, map[string]any{"on": "id", "how": "outer"})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, int64(1), out[0].Get("id").Int())
	assert.Equal(t, "x", out[0].Get("v").Str())
	assert.True(t, out[0].Get("w").IsNull())

	assert.Equal(t, int64(2), out[1].Get("id").Int())
	assert.Equal(t, "y", out[1].Get("v").Str())
	assert.Equal(t, "B", out[1].Get("w").Str())

	assert.Equal(t, int64(3), out[2].Get("id").Int())
	assert.True(t, out[2].Get("v").IsNull())
	assert.Equal(t, "C", out[2].Get("w").Str())
}

func TestInnerJoinDropsUnmatched(t *testing.T) {
	left := row.Dataset{rowOf(map[string]any{"id": int64(1)}), rowOf(map[string]any{"id": int64(2)})}
	right := row.Dataset{rowOf(map[string]any{"id": int64(2), "w": "B"})}

	out, err := join.Apply(left, right, map[string]any{"on": "id", "how": "inner"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(2), out[0].Get("id").Int())
}

func TestLeftJoinKeepsUnmatchedLeft(t *testing.T) {
	left := row.Dataset{rowOf(map[string]any{"id": int64(1)}), rowOf(map[string]any{"id": int64(2)})}
	right := row.Dataset{rowOf(map[string]any{"id": int64(2), "w": "B"})}

	out, err := join.Apply(left, right, map[string]any{"on": "id", "how": "left"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Get("w").IsNull())
	assert.Equal(t, "B", out[1].Get("w").Str())
}

func TestSelectRightAndPrefix(t *testing.T) {
	left := row.Dataset{rowOf(map[string]any{"id": int64(1)})}
	right := row.Dataset{rowOf(map[string]any{"id": int64(1), "w": "B", "extra": "dropped"})}

	out, err := join.Apply(left, right, map[string]any{
		"on":           "id",
		"how":          "inner",
		"select_right": []string{"w"},
		"prefix_right": "r_",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "B", out[0].Get("r_w").Str())
	assert.False(t, out[0].Has("r_extra"))
	assert.False(t, out[0].Has("extra"))
}
