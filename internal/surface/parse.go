// Package surface implements a minimal S-expression reader translating
// surface-syntax text into the pre-desugared core-form *node.Expr tree spec
// §6 describes. A full surface language (macros, sugar for let/lambda,
// etc.) is out of scope (spec §1 "surface syntax and desugaring beyond the
// minimum needed to exercise the core"); this reader covers exactly the
// core forms the spec names: variable references, self-evaluating literals,
// `quote`, application, and `scope_include`.
package surface

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/value"
)

// Parse reads a single expression from text.
func Parse(text string) (*node.Expr, error) {
	toks := tokenize(text)
	p := &parser{toks: toks}
	expr, err := p.readExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("surface: trailing input after expression: %q", strings.Join(p.toks[p.pos:], " "))
	}
	return expr, nil
}

func tokenize(text string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case r == '(' || r == ')' || r == '\'':
			flush()
			toks = append(toks, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return toks
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) peek() (string, bool) {
	if p.pos >= len(p.toks) {
		return "", false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (string, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) readExpr() (*node.Expr, error) {
	tok, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("surface: unexpected end of input")
	}
	switch tok {
	case "(":
		return p.readList()
	case ")":
		return nil, fmt.Errorf("surface: unexpected )")
	case "'":
		inner, err := p.readExpr()
		if err != nil {
			return nil, err
		}
		v, err := exprToValue(inner)
		if err != nil {
			return nil, err
		}
		return node.Quote(v), nil
	default:
		return atom(tok), nil
	}
}

func (p *parser) readList() (*node.Expr, error) {
	var items []*node.Expr
	for {
		tok, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("surface: unexpected end of input inside list")
		}
		if tok == ")" {
			p.next()
			break
		}
		e, err := p.readExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if len(items) == 0 {
		return node.Lit(value.Nil{}), nil
	}
	if sym, ok := headSymbol(items[0]); ok && sym == "scope_include" {
		if len(items) != 4 {
			return nil, fmt.Errorf("surface: scope_include takes 3 arguments, got %d", len(items)-1)
		}
		scope, err := symbolText(items[1])
		if err != nil {
			return nil, err
		}
		block, err := symbolText(items[2])
		if err != nil {
			return nil, err
		}
		return node.ScopeInclude(scope, block, items[3]), nil
	}
	return node.App(items[0], items[1:]...), nil
}

func headSymbol(e *node.Expr) (string, bool) {
	if e.Kind == node.ExprVariable {
		return e.Symbol, true
	}
	return "", false
}

func symbolText(e *node.Expr) (string, error) {
	if e.Kind == node.ExprVariable {
		return e.Symbol, nil
	}
	if e.Kind == node.ExprLiteral || e.Kind == node.ExprQuote {
		if s, ok := e.Literal.(value.Symbol); ok {
			return string(s), nil
		}
	}
	return "", fmt.Errorf("surface: expected a symbol, got %s", e.String())
}

func atom(tok string) *node.Expr {
	switch tok {
	case "#t", "true":
		return node.Lit(value.Bool(true))
	case "#f", "false":
		return node.Lit(value.Bool(false))
	}
	if n, err := strconv.ParseFloat(tok, 64); err == nil {
		return node.Lit(value.Number(n))
	}
	return node.Var(tok)
}

// exprToValue lifts a parsed expression into the data it denotes as quoted
// material: literals and nested quotes pass their literal through,
// variables become symbols, and application forms become lists; only the
// remaining forms (scope_include under quote) are carried as an opaque
// QuotedExpr (spec §6 "quote"). A quoted application therefore reaches
// make_csp as a list, not a QuotedExpr, and make_csp rejects it as a body.
func exprToValue(e *node.Expr) (value.Value, error) {
	switch e.Kind {
	case node.ExprLiteral, node.ExprQuote:
		return e.Literal, nil
	case node.ExprVariable:
		return value.Symbol(e.Symbol), nil
	case node.ExprApplication:
		vs := make([]value.Value, 0, len(e.Operands)+1)
		head, err := exprToValue(e.Operator)
		if err != nil {
			return nil, err
		}
		vs = append(vs, head)
		for _, o := range e.Operands {
			v, err := exprToValue(o)
			if err != nil {
				return nil, err
			}
			vs = append(vs, v)
		}
		return value.List(vs...), nil
	default:
		return value.QuotedExpr{Expr: e}, nil
	}
}
