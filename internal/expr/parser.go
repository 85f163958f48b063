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
	"strconv"

	"github.com/riverdag/riverdag/internal/row"
)

// parser is a recursive-descent parser over the precedence chain:
// ternary > or > and > not > comparison > additive > multiplicative >
// unary minus > postfix (method calls) > atom.
type parser struct {
	toks []token
	pos  int
}

func parse(src string) (Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tEOF {
		return nil, fmt.Errorf("expr: unexpected trailing token %q", p.cur().text)
	}
	return n, nil
}

func (p *parser) cur() token { return p.toks[p.pos] }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(k tokenKind, text string) error {
	if p.cur().kind != k || (text != "" && p.cur().text != text) {
		return fmt.Errorf("expr: expected %q, got %q", text, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) isKeyword(word string) bool {
	return p.cur().kind == tIdent && p.cur().text == word
}

// parseTernary: or_expr ['if' or_expr 'else' ternary]
func (p *parser) parseTernary() (Node, error) {
	first, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("if") {
		p.advance()
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.isKeyword("else") {
			return nil, fmt.Errorf("expr: expected 'else' in ternary expression")
		}
		p.advance()
		elseBranch, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		return TernaryNode{Cond: cond, Then: first, Else: elseBranch}, nil
	}
	return first, nil
}

func (p *parser) parseOr() (Node, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		p.advance()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = LogicalNode{Op: "or", L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (Node, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		p.advance()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = LogicalNode{Op: "and", L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.isKeyword("not") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return UnaryNode{Op: "not", X: x}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{"<": true, "<=": true, "==": true, "!=": true, ">=": true, ">": true}

func (p *parser) parseComparison() (Node, error) {
	l, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.cur().kind == tOp && comparisonOps[p.cur().text] {
		op := p.advance().text
		r, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return BinaryNode{Op: op, L: l, R: r}, nil
	}
	return l, nil
}

func (p *parser) parseAdditive() (Node, error) {
	l, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tOp && (p.cur().text == "+" || p.cur().text == "-") {
		op := p.advance().text
		r, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		l = BinaryNode{Op: op, L: l, R: r}
	}
	return l, nil
}

var mulOps = map[string]bool{"*": true, "/": true, "%": true, "//": true}

func (p *parser) parseMultiplicative() (Node, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tOp && mulOps[p.cur().text] {
		op := p.advance().text
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = BinaryNode{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.cur().kind == tOp && p.cur().text == "-" {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryNode{Op: "-", X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Node, error) {
	n, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for p.cur().kind == tDot {
		p.advance()
		if p.cur().kind != tIdent {
			return nil, fmt.Errorf("expr: expected method name after '.'")
		}
		method := p.advance().text
		if err := p.expect(tLParen, "("); err != nil {
			return nil, err
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, err
		}
		n = MethodCallNode{Recv: n, Method: method, Args: args}
	}
	return n, nil
}

func (p *parser) parseArgs() ([]Node, error) {
	var args []Node
	if p.cur().kind == tRParen {
		p.advance()
		return args, nil
	}
	for {
		a, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.cur().kind == tComma {
			p.advance()
			continue
		}
		break
	}
	if err := p.expect(tRParen, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *parser) parseAtom() (Node, error) {
	t := p.cur()
	switch t.kind {
	case tNumber:
		p.advance()
		return parseNumberLiteral(t.text)
	case tString:
		p.advance()
		return LiteralNode{Value: row.String(t.text)}, nil
	case tLParen:
		p.advance()
		n, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tRParen, ")"); err != nil {
			return nil, err
		}
		return n, nil
	case tIdent:
		switch t.text {
		case "true":
			p.advance()
			return LiteralNode{Value: row.Bool(true)}, nil
		case "false":
			p.advance()
			return LiteralNode{Value: row.Bool(false)}, nil
		case "null", "none":
			p.advance()
			return LiteralNode{Value: row.Null()}, nil
		}
		p.advance()
		if p.cur().kind == tLParen {
			p.advance()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return FuncCallNode{Name: t.text, Args: args}, nil
		}
		return FieldNode{Name: t.text}, nil
	default:
		return nil, fmt.Errorf("expr: unexpected token %q", t.text)
	}
}

func parseNumberLiteral(text string) (Node, error) {
	for _, c := range text {
		if c == '.' {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("expr: invalid number %q: %w", text, err)
			}
			return LiteralNode{Value: row.Float(f)}, nil
		}
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expr: invalid number %q: %w", text, err)
	}
	return LiteralNode{Value: row.Int(i)}, nil
}
