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

// Package row defines the dynamic row shape shared by every step: an
// ordered field-name to value mapping, plus the Dataset and DataSchema
// types built on top of it.
package row

import "fmt"

// Kind tags the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindRow
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindRow:
		return "dict"
	default:
		return "any"
	}
}

// Value is a tagged union over the value variants a field may hold:
// null, bool, int64, float64, string, []Value, or *Row.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []Value
	row  *Row
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Int(i int64) Value          { return Value{kind: KindInt, i: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, f: f} }
func String(s string) Value      { return Value{kind: KindString, s: s} }
func List(vs []Value) Value      { return Value{kind: KindList, list: vs} }
func RowValue(r *Row) Value      { return Value{kind: KindRow, row: r} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) Bool() bool    { return v.b }
func (v Value) Int() int64    { return v.i }
func (v Value) Float() float64 { return v.f }
func (v Value) Str() string   { return v.s }
func (v Value) List() []Value { return v.list }
func (v Value) Row() *Row     { return v.row }

// Numeric reports whether the value can participate in arithmetic,
// returning its float64 representation.
func (v Value) Numeric() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Truthy implements the engine's notion of "truthy" used by filter
// predicates and the ternary/boolean operators: null and false are falsy,
// zero numeric values and empty strings/lists are falsy, everything else
// is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != ""
	case KindList:
		return len(v.list) > 0
	case KindRow:
		return v.row != nil && v.row.Len() > 0
	default:
		return false
	}
}

// Equal reports value equality across compatible kinds (int/float compare
// numerically).
func (v Value) Equal(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return v.kind == o.kind
	}
	if nf, ok := v.Numeric(); ok {
		if of, ok2 := o.Numeric(); ok2 {
			return nf == of
		}
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindRow:
		return v.row.Equal(o.row)
	default:
		return false
	}
}

// Less implements the ordering used by comparisons and sort; only
// defined between compatible kinds (numeric-numeric or string-string).
// A null operand always yields false per spec.md §4.1.
func (v Value) Less(o Value) bool {
	if v.kind == KindNull || o.kind == KindNull {
		return false
	}
	if nf, ok := v.Numeric(); ok {
		if of, ok2 := o.Numeric(); ok2 {
			return nf < of
		}
	}
	if v.kind == KindString && o.kind == KindString {
		return v.s < o.s
	}
	return false
}

// AsAny converts the value to a plain Go value for JSON encoding and
// hashing purposes.
func (v Value) AsAny() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.AsAny()
		}
		return out
	case KindRow:
		return v.row.AsMap()
	default:
		return nil
	}
}

// FromAny lifts a decoded JSON/YAML value (as produced by
// encoding/json or goccy/go-yaml) into a Value tree.
func FromAny(a any) Value {
	switch t := a.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int64:
		return Int(t)
	case float64:
		if t == float64(int64(t)) {
			// JSON numbers are untyped; keep integral-looking values as
			// float to avoid silently lying about provenance. Callers
			// that need ints should use schema-aware coercion.
			return Float(t)
		}
		return Float(t)
	case string:
		return String(t)
	case []any:
		vs := make([]Value, len(t))
		for i, e := range t {
			vs[i] = FromAny(e)
		}
		return List(vs)
	case map[string]any:
		r := NewRow()
		for k, v := range t {
			r.Set(k, FromAny(v))
		}
		return RowValue(r)
	case []Value:
		return List(t)
	case *Row:
		return RowValue(t)
	case Value:
		return t
	default:
		return String(fmt.Sprintf("%v", t))
	}
}

// field is one entry of a Row, keeping insertion order.
type field struct {
	name  string
	value Value
}

// Row is an ordered mapping from field name to Value. Field order is
// preserved; a missing field reads as Null.
type Row struct {
	fields []field
	index  map[string]int
}

func NewRow() *Row {
	return &Row{index: make(map[string]int)}
}

// NewRowFromMap builds a Row from a plain map, in the iteration order Go
// gives maps (callers that need deterministic order should use Set in a
// loop over a known key order instead).
func NewRowFromMap(m map[string]any) *Row {
	r := NewRow()
	for k, v := range m {
		r.Set(k, FromAny(v))
	}
	return r
}

func (r *Row) Len() int { return len(r.fields) }

// Get returns the field's value, or Null if absent.
func (r *Row) Get(name string) Value {
	if i, ok := r.index[name]; ok {
		return r.fields[i].value
	}
	return Null()
}

// Has reports whether the field is present (even if its value is null).
func (r *Row) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Set assigns a field, appending it if new, preserving order on update.
func (r *Row) Set(name string, v Value) {
	if i, ok := r.index[name]; ok {
		r.fields[i].value = v
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, field{name: name, value: v})
}

// Delete removes a field if present.
func (r *Row) Delete(name string) {
	i, ok := r.index[name]
	if !ok {
		return
	}
	r.fields = append(r.fields[:i], r.fields[i+1:]...)
	delete(r.index, name)
	for k, idx := range r.index {
		if idx > i {
			r.index[k] = idx - 1
		}
	}
}

// Names returns field names in row order.
func (r *Row) Names() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.name
	}
	return out
}

// Clone returns a shallow copy (values are immutable so this is a deep
// copy in effect).
func (r *Row) Clone() *Row {
	out := NewRow()
	for _, f := range r.fields {
		out.Set(f.name, f.value)
	}
	return out
}

// Project returns a new Row containing only the named fields, in the
// order given.
func (r *Row) Project(names []string) *Row {
	out := NewRow()
	for _, n := range names {
		if r.Has(n) {
			out.Set(n, r.Get(n))
		}
	}
	return out
}

// AsMap converts the row to a plain map for JSON encoding.
func (r *Row) AsMap() map[string]any {
	out := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		out[f.name] = f.value.AsAny()
	}
	return out
}

// Equal compares two rows field-by-field and in order.
func (r *Row) Equal(o *Row) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	if len(r.fields) != len(o.fields) {
		return false
	}
	for i := range r.fields {
		if r.fields[i].name != o.fields[i].name {
			return false
		}
		if !r.fields[i].value.Equal(o.fields[i].value) {
			return false
		}
	}
	return true
}

// Dataset is a finite ordered sequence of rows.
type Dataset []*Row
