// Package node implements the graph vertex variants of a trace (spec §4.B)
// and the minimal pre-desugared expression IR the driver feeds into
// evalFamily (spec §6 "Surface language"). Callers either build Expr trees
// directly, as the already-desugared core forms spec §6 enumerates, or
// produce them from S-expression text with internal/surface.Parse (as
// cmd/trellis does); there is no further desugaring layer.
package node

import (
	"fmt"
	"strings"

	"github.com/probsys/trellis/internal/value"
)

// ExprKind tags the variant of a desugared core-form expression.
type ExprKind int

// The core forms enumerated in spec §6.
const (
	ExprVariable ExprKind = iota
	ExprLiteral           // self-evaluating literal
	ExprQuote             // (quote e)
	ExprApplication       // (e0 e1 ... en)
	ExprScopeInclude      // (scope_include scope block e)
)

func (k ExprKind) String() string {
	switch k {
	case ExprVariable:
		return "variable"
	case ExprLiteral:
		return "literal"
	case ExprQuote:
		return "quote"
	case ExprApplication:
		return "application"
	case ExprScopeInclude:
		return "scope_include"
	default:
		return "unknown"
	}
}

// Expr is a single node of the pre-desugared core-form expression tree.
type Expr struct {
	Kind ExprKind

	// ExprVariable
	Symbol string

	// ExprLiteral / ExprQuote
	Literal value.Value

	// ExprApplication
	Operator *Expr
	Operands []*Expr

	// ExprScopeInclude
	Scope string
	Block string
	Inner *Expr
}

// Var builds a variable-reference expression.
func Var(symbol string) *Expr { return &Expr{Kind: ExprVariable, Symbol: symbol} }

// Lit builds a self-evaluating literal expression.
func Lit(v value.Value) *Expr { return &Expr{Kind: ExprLiteral, Literal: v} }

// Quote builds a quotation expression.
func Quote(v value.Value) *Expr { return &Expr{Kind: ExprQuote, Literal: v} }

// App builds an application expression.
func App(operator *Expr, operands ...*Expr) *Expr {
	return &Expr{Kind: ExprApplication, Operator: operator, Operands: operands}
}

// ScopeInclude tags inner's resulting application node with (scope, block).
func ScopeInclude(scope, block string, inner *Expr) *Expr {
	return &Expr{Kind: ExprScopeInclude, Scope: scope, Block: block, Inner: inner}
}

func (e *Expr) String() string {
	switch e.Kind {
	case ExprVariable:
		return e.Symbol
	case ExprLiteral:
		return e.Literal.String()
	case ExprQuote:
		return "(quote " + e.Literal.String() + ")"
	case ExprApplication:
		parts := make([]string, 0, len(e.Operands)+1)
		parts = append(parts, e.Operator.String())
		for _, o := range e.Operands {
			parts = append(parts, o.String())
		}
		return "(" + strings.Join(parts, " ") + ")"
	case ExprScopeInclude:
		return fmt.Sprintf("(scope_include %s %s %s)", e.Scope, e.Block, e.Inner.String())
	default:
		return "<bad-expr>"
	}
}

// Scopes returns the (scope, block) pairs directly tagging this expression,
// unwrapping any nested scope_include forms immediately around it. A single
// application can carry more than one scope tag (spec §4.D "two-level scope
// index").
func (e *Expr) Scopes() []ScopeTag {
	var tags []ScopeTag
	for e != nil && e.Kind == ExprScopeInclude {
		tags = append(tags, ScopeTag{Scope: e.Scope, Block: e.Block})
		e = e.Inner
	}
	return tags
}

// Unwrap strips any wrapping scope_include forms and returns the expression
// they tag.
func (e *Expr) Unwrap() *Expr {
	for e != nil && e.Kind == ExprScopeInclude {
		e = e.Inner
	}
	return e
}

// ScopeTag is a single (scope, block) pair attached to an expression.
type ScopeTag struct {
	Scope string
	Block string
}
