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

import "fmt"

// allowedMethods is the restricted set of string method calls permitted
// by spec.md §4.1.
var allowedMethods = map[string]bool{
	"upper": true, "lower": true, "strip": true, "replace": true,
	"split": true, "startswith": true, "endswith": true, "title": true,
}

// allowedFuncs is the restricted set of free functions permitted by
// spec.md §4.1.
var allowedFuncs = map[string]bool{
	"len": true, "int": true, "float": true, "str": true, "bool": true,
	"abs": true, "min": true, "max": true, "sum": true, "round": true,
	"sorted": true,
}

// blockedNames is the explicit denylist from spec.md §4.1: even though
// none of these can ever appear in allowedFuncs/allowedMethods, calling
// them out by name produces a clearer compile error than a generic
// "function not allowed".
var blockedNames = map[string]bool{
	"exec": true, "eval": true, "compile": true, "open": true,
	"__import__": true, "getattr": true, "setattr": true, "delattr": true,
	"globals": true, "locals": true, "vars": true, "__builtins__": true,
}

// validate walks the AST and rejects any function call or method call
// outside the allow-lists above. Bare field references are never
// rejected: any identifier not used as a call is just a row field name.
func validate(n Node) error {
	switch t := n.(type) {
	case LiteralNode, FieldNode:
		return nil
	case UnaryNode:
		return validate(t.X)
	case BinaryNode:
		if err := validate(t.L); err != nil {
			return err
		}
		return validate(t.R)
	case LogicalNode:
		if err := validate(t.L); err != nil {
			return err
		}
		return validate(t.R)
	case TernaryNode:
		if err := validate(t.Cond); err != nil {
			return err
		}
		if err := validate(t.Then); err != nil {
			return err
		}
		return validate(t.Else)
	case MethodCallNode:
		if !allowedMethods[t.Method] {
			return fmt.Errorf("expr: method %q is not allowed", t.Method)
		}
		if err := validate(t.Recv); err != nil {
			return err
		}
		for _, a := range t.Args {
			if err := validate(a); err != nil {
				return err
			}
		}
		return nil
	case FuncCallNode:
		if blockedNames[t.Name] {
			return fmt.Errorf("expr: %q is not allowed", t.Name)
		}
		if !allowedFuncs[t.Name] {
			return fmt.Errorf("expr: function %q is not allowed", t.Name)
		}
		for _, a := range t.Args {
			if err := validate(a); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("expr: unsupported node %T", n)
	}
}

// fastPathEligible reports whether the expression uses only fields,
// literals, arithmetic, boolean, and comparison operators — the
// performance-hint subset mentioned in spec.md §4.1. RiverDAG's
// evaluator is a single tree-walker; the result is stored on the
// compiled Expr but nothing reads it, so it does not change evaluation.
func fastPathEligible(n Node) bool {
	switch t := n.(type) {
	case LiteralNode, FieldNode:
		return true
	case UnaryNode:
		return fastPathEligible(t.X)
	case BinaryNode:
		return fastPathEligible(t.L) && fastPathEligible(t.R)
	case LogicalNode:
		return fastPathEligible(t.L) && fastPathEligible(t.R)
	default:
		return false
	}
}
