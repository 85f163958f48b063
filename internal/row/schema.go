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

package row

// FieldType is the declared type of a schema field.
type FieldType string

const (
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeString FieldType = "string"
	TypeList   FieldType = "list"
	TypeDict   FieldType = "dict"
	TypeAny    FieldType = "any"
)

// FieldSchema describes one field of a DataSchema.
type FieldSchema struct {
	Type     FieldType
	Nullable bool
}

// DataSchema is an immutable mapping from field name to FieldSchema, with
// an optional row-count estimate. A nil/empty Fields map means "unknown".
type DataSchema struct {
	Fields       map[string]FieldSchema
	Order        []string // insertion order, for stable output
	RowEstimate  int
	HasEstimate  bool
}

// NewSchema returns an empty (unknown) schema.
func NewSchema() DataSchema {
	return DataSchema{Fields: map[string]FieldSchema{}}
}

// Unknown reports whether the schema carries no field information.
func (s DataSchema) Unknown() bool { return len(s.Fields) == 0 }

// With returns a new schema with the given field set/overridden,
// preserving immutability (schemas are never mutated in place).
func (s DataSchema) With(name string, fs FieldSchema) DataSchema {
	out := DataSchema{
		Fields:      make(map[string]FieldSchema, len(s.Fields)+1),
		Order:       append([]string{}, s.Order...),
		RowEstimate: s.RowEstimate,
		HasEstimate: s.HasEstimate,
	}
	for k, v := range s.Fields {
		out.Fields[k] = v
	}
	if _, existed := s.Fields[name]; !existed {
		out.Order = append(out.Order, name)
	}
	out.Fields[name] = fs
	return out
}

// Without returns a new schema with the named field removed.
func (s DataSchema) Without(name string) DataSchema {
	out := DataSchema{
		Fields:      make(map[string]FieldSchema, len(s.Fields)),
		RowEstimate: s.RowEstimate,
		HasEstimate: s.HasEstimate,
	}
	for k, v := range s.Fields {
		if k == name {
			continue
		}
		out.Fields[k] = v
	}
	for _, n := range s.Order {
		if n != name {
			out.Order = append(out.Order, n)
		}
	}
	return out
}

// DefaultSampleSize is the default number of rows sampled when inferring
// a schema from data (spec.md §3).
const DefaultSampleSize = 100

// InferSchema samples up to sampleSize rows (0 means DefaultSampleSize)
// and derives a DataSchema. Bool is checked before int so that a column
// of "true"/"false"-looking 0/1 values is not misclassified, matching the
// original Python prototype's detection order (see SPEC_FULL.md §9 /
// original_source/bench_* scripts).
func InferSchema(d Dataset, sampleSize int) DataSchema {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	s := NewSchema()
	n := len(d)
	if n > sampleSize {
		n = sampleSize
	}
	type acc struct {
		sawBool, sawInt, sawFloat, sawString, sawList, sawDict, sawNull bool
	}
	accs := map[string]*acc{}
	order := []string{}
	for i := 0; i < n; i++ {
		r := d[i]
		for _, name := range r.Names() {
			a, ok := accs[name]
			if !ok {
				a = &acc{}
				accs[name] = a
				order = append(order, name)
			}
			v := r.Get(name)
			switch v.Kind() {
			case KindNull:
				a.sawNull = true
			case KindBool:
				a.sawBool = true
			case KindInt:
				a.sawInt = true
			case KindFloat:
				a.sawFloat = true
			case KindString:
				a.sawString = true
			case KindList:
				a.sawList = true
			case KindRow:
				a.sawDict = true
			}
		}
	}
	for _, name := range order {
		a := accs[name]
		var t FieldType
		switch {
		case a.sawBool && !a.sawInt && !a.sawFloat && !a.sawString && !a.sawList && !a.sawDict:
			t = TypeBool
		case a.sawInt && !a.sawFloat && !a.sawString && !a.sawList && !a.sawDict && !a.sawBool:
			t = TypeInt
		case (a.sawFloat || a.sawInt) && !a.sawString && !a.sawList && !a.sawDict && !a.sawBool:
			t = TypeFloat
		case a.sawString && !a.sawList && !a.sawDict && !a.sawBool && !a.sawInt && !a.sawFloat:
			t = TypeString
		case a.sawList && !a.sawDict:
			t = TypeList
		case a.sawDict:
			t = TypeDict
		default:
			t = TypeAny
		}
		s = s.With(name, FieldSchema{Type: t, Nullable: a.sawNull})
	}
	s.RowEstimate = len(d)
	s.HasEstimate = true
	return s
}
