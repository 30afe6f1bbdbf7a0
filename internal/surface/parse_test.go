package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/value"
)

func TestParseLiteralsAndVariables(t *testing.T) {
	e, err := Parse("3.5")
	require.NoError(t, err)
	assert.Equal(t, node.ExprLiteral, e.Kind)
	assert.Equal(t, value.Number(3.5), e.Literal)

	e, err = Parse("#t")
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), e.Literal)

	e, err = Parse("x")
	require.NoError(t, err)
	assert.Equal(t, node.ExprVariable, e.Kind)
	assert.Equal(t, "x", e.Symbol)
}

func TestParseApplication(t *testing.T) {
	e, err := Parse("(flip 0.5)")
	require.NoError(t, err)
	require.Equal(t, node.ExprApplication, e.Kind)
	assert.Equal(t, "flip", e.Operator.Symbol)
	require.Len(t, e.Operands, 1)
	assert.Equal(t, value.Number(0.5), e.Operands[0].Literal)
}

func TestParseQuoteOfSymbolAndApplication(t *testing.T) {
	e, err := Parse("'x")
	require.NoError(t, err)
	assert.Equal(t, node.ExprQuote, e.Kind)
	assert.Equal(t, value.Symbol("x"), e.Literal)

	e, err = Parse("'(a b)")
	require.NoError(t, err)
	assert.Equal(t, node.ExprQuote, e.Kind)
	lst, ok := e.Literal.(value.Pair)
	require.True(t, ok)
	assert.Equal(t, value.Symbol("a"), lst.Car)
}

func TestParseScopeInclude(t *testing.T) {
	e, err := Parse("(scope_include 'loop 'b1 (flip))")
	require.NoError(t, err)
	require.Equal(t, node.ExprScopeInclude, e.Kind)
	assert.Equal(t, "loop", e.Scope)
	assert.Equal(t, "b1", e.Block)
	assert.Equal(t, node.ExprApplication, e.Inner.Kind)
}

func TestParseScopeIncludeWrongArity(t *testing.T) {
	_, err := Parse("(scope_include 'loop)")
	assert.Error(t, err)
}

func TestParseUnbalancedParens(t *testing.T) {
	_, err := Parse("(flip 0.5")
	assert.Error(t, err)
}

func TestParseTrailingInput(t *testing.T) {
	_, err := Parse("(flip) (flip)")
	assert.Error(t, err)
}
