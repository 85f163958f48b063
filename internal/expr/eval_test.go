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

package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverdag/riverdag/internal/expr"
	"github.com/riverdag/riverdag/internal/row"
)

func rowOf(kv map[string]any) *row.Row {
	r := row.NewRow()
	for k, v := range kv {
		r.Set(k, row.FromAny(v))
	}
	return r
}

func TestCompileAndEval(t *testing.T) {
	tests := []struct {
		name string
		expr string
		row  map[string]any
		want row.Value
	}{
		{"field ref", "price", map[string]any{"price": 5}, row.Int(5)},
		{"missing field is null", "missing", map[string]any{}, row.Null()},
		{"comparison", "price > 10", map[string]any{"price": 20}, row.Bool(true)},
		{"null comparison false", "missing > 10", map[string]any{}, row.Bool(false)},
		{"null eq null is false", "missing == also_missing", map[string]any{}, row.Bool(false)},
		{"null neq non-null is false", "status != 'done'", map[string]any{}, row.Bool(false)},
		{"null lte null is false", "missing <= also_missing", map[string]any{}, row.Bool(false)},
		{"null gte null is false", "missing >= also_missing", map[string]any{}, row.Bool(false)},
		{"null lt is false", "missing < 10", map[string]any{}, row.Bool(false)},
		{"arithmetic", "price * qty", map[string]any{"price": 20, "qty": 3}, row.Int(60)},
		{"string concat", "a + b", map[string]any{"a": "x", "b": "y"}, row.String("xy")},
		{"ternary", "1 if price > 10 else 0", map[string]any{"price": 20}, row.Int(1)},
		{"and short circuit", "false and (1/0 > 0)", map[string]any{}, row.Bool(false)},
		{"or short circuit", "true or (1/0 > 0)", map[string]any{}, row.Bool(true)},
		{"not", "not (price > 10)", map[string]any{"price": 5}, row.Bool(true)},
		{"upper method", "name.upper()", map[string]any{"name": "bob"}, row.String("BOB")},
		{"len func", "len(name)", map[string]any{"name": "bob"}, row.Int(3)},
		{"floor div", "7 // 2", map[string]any{}, row.Int(3)},
		{"modulo", "7 % 3", map[string]any{}, row.Int(1)},
		{"unary minus", "-price", map[string]any{"price": 5}, row.Int(-5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := expr.Compile(tt.expr)
			require.NoError(t, err)
			got := e.Eval(rowOf(tt.row))
			assert.True(t, tt.want.Equal(got), "expr %q: want %v got %v", tt.expr, tt.want.AsAny(), got.AsAny())
		})
	}
}

func TestCompileRejectsForbiddenNames(t *testing.T) {
	for _, src := range []string{"exec(x)", "eval(x)", "open(x)", "__import__(x)"} {
		_, err := expr.Compile(src)
		assert.Error(t, err, src)
	}
}

func TestCompileRejectsDisallowedCalls(t *testing.T) {
	_, err := expr.Compile("x.unknown_method()")
	assert.Error(t, err)

	_, err = expr.Compile("unknown_func(x)")
	assert.Error(t, err)
}

func TestFilterSwallowsEvalErrors(t *testing.T) {
	e, err := expr.Compile("1 / zero")
	require.NoError(t, err)
	// zero is missing -> null, division errors internally -> swallowed to
	// null -> Truthy() is false -> filter drops the row.
	assert.False(t, e.Filter(rowOf(map[string]any{})))
}

func TestEvalMemoizesBySource(t *testing.T) {
	e1, err := expr.Compile("a + b")
	require.NoError(t, err)
	e2, err := expr.Compile("a + b")
	require.NoError(t, err)
	assert.Same(t, e1, e2)
}
