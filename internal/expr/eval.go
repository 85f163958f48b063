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

package expr

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/riverdag/riverdag/internal/row"
)

// Expr is a compiled, reusable row -> value function.
type Expr struct {
	src        string
	ast        Node
	fastPath   bool
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// Eval evaluates the compiled expression against a row. Per spec.md
// §4.1's runtime policy, any evaluation error is swallowed to Null so a
// single bad row cannot abort a batch.
func (e *Expr) Eval(r *row.Row) row.Value {
	v, err := evalNode(e.ast, r)
	if err != nil {
		return row.Null()
	}
	return v
}

// Filter evaluates the expression as a predicate: a truthy result keeps
// the row.
func (e *Expr) Filter(r *row.Row) bool {
	return e.Eval(r).Truthy()
}

func evalNode(n Node, r *row.Row) (row.Value, error) {
	switch t := n.(type) {
	case LiteralNode:
		return t.Value, nil
	case FieldNode:
		return r.Get(t.Name), nil
	case UnaryNode:
		x, err := evalNode(t.X, r)
		if err != nil {
			return row.Null(), err
		}
		switch t.Op {
		case "not":
			return row.Bool(!x.Truthy()), nil
		case "-":
			f, ok := x.Numeric()
			if !ok {
				return row.Null(), fmt.Errorf("expr: cannot negate non-numeric value")
			}
			if x.Kind() == row.KindInt {
				return row.Int(-x.Int()), nil
			}
			return row.Float(-f), nil
		}
		return row.Null(), fmt.Errorf("expr: unknown unary op %q", t.Op)
	case LogicalNode:
		l, err := evalNode(t.L, r)
		if err != nil {
			return row.Null(), err
		}
		switch t.Op {
		case "and":
			if !l.Truthy() {
				return l, nil
			}
			return evalNode(t.R, r)
		case "or":
			if l.Truthy() {
				return l, nil
			}
			return evalNode(t.R, r)
		}
		return row.Null(), fmt.Errorf("expr: unknown logical op %q", t.Op)
	case BinaryNode:
		return evalBinary(t, r)
	case TernaryNode:
		c, err := evalNode(t.Cond, r)
		if err != nil {
			return row.Null(), err
		}
		if c.Truthy() {
			return evalNode(t.Then, r)
		}
		return evalNode(t.Else, r)
	case MethodCallNode:
		return evalMethod(t, r)
	case FuncCallNode:
		return evalFunc(t, r)
	default:
		return row.Null(), fmt.Errorf("expr: unsupported node %T", n)
	}
}

func evalBinary(t BinaryNode, r *row.Row) (row.Value, error) {
	l, err := evalNode(t.L, r)
	if err != nil {
		return row.Null(), err
	}
	rv, err := evalNode(t.R, r)
	if err != nil {
		return row.Null(), err
	}
	switch t.Op {
	case "<":
		return cmpResult(l, rv, l.Less(rv)), nil
	case "<=":
		return cmpResult(l, rv, l.Less(rv) || l.Equal(rv)), nil
	case ">":
		return cmpResult(l, rv, rv.Less(l)), nil
	case ">=":
		return cmpResult(l, rv, rv.Less(l) || l.Equal(rv)), nil
	case "==":
		return cmpResult(l, rv, l.Equal(rv)), nil
	case "!=":
		return cmpResult(l, rv, !l.Equal(rv)), nil
	case "+":
		if l.Kind() == row.KindString || rv.Kind() == row.KindString {
			return row.String(toStr(l) + toStr(rv)), nil
		}
		return arith(l, rv, t.Op)
	case "-", "*", "/", "%", "//":
		return arith(l, rv, t.Op)
	}
	return row.Null(), fmt.Errorf("expr: unknown binary op %q", t.Op)
}

// cmpResult makes any comparison with a null operand false, regardless
// of operator.
func cmpResult(l, rv row.Value, result bool) row.Value {
	if l.IsNull() || rv.IsNull() {
		return row.Bool(false)
	}
	return row.Bool(result)
}

func arith(l, rv row.Value, op string) (row.Value, error) {
	lf, lok := l.Numeric()
	rf, rok := rv.Numeric()
	if !lok || !rok {
		return row.Null(), fmt.Errorf("expr: arithmetic on non-numeric values")
	}
	bothInt := l.Kind() == row.KindInt && rv.Kind() == row.KindInt
	switch op {
	case "+":
		if bothInt {
			return row.Int(l.Int() + rv.Int()), nil
		}
		return row.Float(lf + rf), nil
	case "-":
		if bothInt {
			return row.Int(l.Int() - rv.Int()), nil
		}
		return row.Float(lf - rf), nil
	case "*":
		if bothInt {
			return row.Int(l.Int() * rv.Int()), nil
		}
		return row.Float(lf * rf), nil
	case "/":
		if rf == 0 {
			return row.Null(), fmt.Errorf("expr: division by zero")
		}
		return row.Float(lf / rf), nil
	case "//":
		if rf == 0 {
			return row.Null(), fmt.Errorf("expr: division by zero")
		}
		q := math.Floor(lf / rf)
		if bothInt {
			return row.Int(int64(q)), nil
		}
		return row.Float(q), nil
	case "%":
		if rf == 0 {
			return row.Null(), fmt.Errorf("expr: modulo by zero")
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		if bothInt {
			return row.Int(int64(m)), nil
		}
		return row.Float(m), nil
	}
	return row.Null(), fmt.Errorf("expr: unknown arithmetic op %q", op)
}

func toStr(v row.Value) string {
	switch v.Kind() {
	case row.KindString:
		return v.Str()
	case row.KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case row.KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case row.KindBool:
		return strconv.FormatBool(v.Bool())
	case row.KindNull:
		return ""
	default:
		return fmt.Sprintf("%v", v.AsAny())
	}
}

func evalMethod(t MethodCallNode, r *row.Row) (row.Value, error) {
	recv, err := evalNode(t.Recv, r)
	if err != nil {
		return row.Null(), err
	}
	if recv.Kind() != row.KindString {
		return row.Null(), fmt.Errorf("expr: method %q requires a string receiver", t.Method)
	}
	s := recv.Str()
	args := make([]row.Value, len(t.Args))
	for i, a := range t.Args {
		v, err := evalNode(a, r)
		if err != nil {
			return row.Null(), err
		}
		args[i] = v
	}
	switch t.Method {
	case "upper":
		return row.String(strings.ToUpper(s)), nil
	case "lower":
		return row.String(strings.ToLower(s)), nil
	case "strip":
		return row.String(strings.TrimSpace(s)), nil
	case "title":
		return row.String(strings.Title(s)), nil
	case "replace":
		if len(args) != 2 {
			return row.Null(), fmt.Errorf("expr: replace requires 2 arguments")
		}
		return row.String(strings.ReplaceAll(s, toStr(args[0]), toStr(args[1]))), nil
	case "split":
		sep := " "
		if len(args) > 0 {
			sep = toStr(args[0])
		}
		parts := strings.Split(s, sep)
		out := make([]row.Value, len(parts))
		for i, p := range parts {
			out[i] = row.String(p)
		}
		return row.List(out), nil
	case "startswith":
		if len(args) != 1 {
			return row.Null(), fmt.Errorf("expr: startswith requires 1 argument")
		}
		return row.Bool(strings.HasPrefix(s, toStr(args[0]))), nil
	case "endswith":
		if len(args) != 1 {
			return row.Null(), fmt.Errorf("expr: endswith requires 1 argument")
		}
		return row.Bool(strings.HasSuffix(s, toStr(args[0]))), nil
	}
	return row.Null(), fmt.Errorf("expr: unknown method %q", t.Method)
}

func evalFunc(t FuncCallNode, r *row.Row) (row.Value, error) {
	args := make([]row.Value, len(t.Args))
	for i, a := range t.Args {
		v, err := evalNode(a, r)
		if err != nil {
			return row.Null(), err
		}
		args[i] = v
	}
	switch t.Name {
	case "len":
		if len(args) != 1 {
			return row.Null(), fmt.Errorf("expr: len requires 1 argument")
		}
		switch args[0].Kind() {
		case row.KindString:
			return row.Int(int64(len(args[0].Str()))), nil
		case row.KindList:
			return row.Int(int64(len(args[0].List()))), nil
		}
		return row.Null(), fmt.Errorf("expr: len requires a string or list")
	case "int":
		if len(args) != 1 {
			return row.Null(), fmt.Errorf("expr: int requires 1 argument")
		}
		return toInt(args[0])
	case "float":
		if len(args) != 1 {
			return row.Null(), fmt.Errorf("expr: float requires 1 argument")
		}
		return toFloat(args[0])
	case "str":
		if len(args) != 1 {
			return row.Null(), fmt.Errorf("expr: str requires 1 argument")
		}
		return row.String(toStr(args[0])), nil
	case "bool":
		if len(args) != 1 {
			return row.Null(), fmt.Errorf("expr: bool requires 1 argument")
		}
		return row.Bool(args[0].Truthy()), nil
	case "abs":
		if len(args) != 1 {
			return row.Null(), fmt.Errorf("expr: abs requires 1 argument")
		}
		f, ok := args[0].Numeric()
		if !ok {
			return row.Null(), fmt.Errorf("expr: abs requires a numeric argument")
		}
		if args[0].Kind() == row.KindInt {
			i := args[0].Int()
			if i < 0 {
				i = -i
			}
			return row.Int(i), nil
		}
		return row.Float(math.Abs(f)), nil
	case "round":
		if len(args) < 1 || len(args) > 2 {
			return row.Null(), fmt.Errorf("expr: round requires 1 or 2 arguments")
		}
		f, ok := args[0].Numeric()
		if !ok {
			return row.Null(), fmt.Errorf("expr: round requires a numeric argument")
		}
		digits := int64(0)
		if len(args) == 2 {
			d, ok := args[1].Numeric()
			if !ok {
				return row.Null(), fmt.Errorf("expr: round digits must be numeric")
			}
			digits = int64(d)
		}
		mult := math.Pow(10, float64(digits))
		rounded := math.Round(f*mult) / mult
		if digits <= 0 {
			return row.Int(int64(rounded)), nil
		}
		return row.Float(rounded), nil
	case "min", "max":
		vals := args
		if len(vals) == 1 && vals[0].Kind() == row.KindList {
			vals = vals[0].List()
		}
		if len(vals) == 0 {
			return row.Null(), fmt.Errorf("expr: %s requires at least one value", t.Name)
		}
		best := vals[0]
		for _, v := range vals[1:] {
			if t.Name == "min" && v.Less(best) {
				best = v
			}
			if t.Name == "max" && best.Less(v) {
				best = v
			}
		}
		return best, nil
	case "sum":
		vals := args
		if len(vals) == 1 && vals[0].Kind() == row.KindList {
			vals = vals[0].List()
		}
		allInt := true
		var fsum float64
		var isum int64
		for _, v := range vals {
			f, ok := v.Numeric()
			if !ok {
				return row.Null(), fmt.Errorf("expr: sum requires numeric values")
			}
			fsum += f
			if v.Kind() == row.KindInt {
				isum += v.Int()
			} else {
				allInt = false
			}
		}
		if allInt {
			return row.Int(isum), nil
		}
		return row.Float(fsum), nil
	case "sorted":
		if len(args) != 1 || args[0].Kind() != row.KindList {
			return row.Null(), fmt.Errorf("expr: sorted requires a list argument")
		}
		src := args[0].List()
		out := make([]row.Value, len(src))
		copy(out, src)
		sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
		return row.List(out), nil
	}
	return row.Null(), fmt.Errorf("expr: unknown function %q", t.Name)
}

func toInt(v row.Value) (row.Value, error) {
	switch v.Kind() {
	case row.KindInt:
		return v, nil
	case row.KindFloat:
		return row.Int(int64(v.Float())), nil
	case row.KindBool:
		if v.Bool() {
			return row.Int(1), nil
		}
		return row.Int(0), nil
	case row.KindString:
		i, err := strconv.ParseInt(strings.TrimSpace(v.Str()), 10, 64)
		if err != nil {
			return row.Null(), fmt.Errorf("expr: cannot convert %q to int: %w", v.Str(), err)
		}
		return row.Int(i), nil
	}
	return row.Null(), fmt.Errorf("expr: cannot convert to int")
}

func toFloat(v row.Value) (row.Value, error) {
	switch v.Kind() {
	case row.KindFloat:
		return v, nil
	case row.KindInt:
		return row.Float(float64(v.Int())), nil
	case row.KindBool:
		if v.Bool() {
			return row.Float(1), nil
		}
		return row.Float(0), nil
	case row.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str()), 64)
		if err != nil {
			return row.Null(), fmt.Errorf("expr: cannot convert %q to float: %w", v.Str(), err)
		}
		return row.Float(f), nil
	}
	return row.Null(), fmt.Errorf("expr: cannot convert to float")
}
