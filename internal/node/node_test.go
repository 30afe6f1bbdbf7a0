package node

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/probsys/trellis/internal/value"
)

func TestConstantHasNoParents(t *testing.T) {
	n := NewConstant(1, Lit(value.Number(1)), nil, value.Number(1))
	assert.Empty(t, n.Parents())
}

func TestLookupParentIsSource(t *testing.T) {
	n := NewLookup(2, Var("x"), nil, 1)
	assert.Equal(t, []ID{1}, n.Parents())
}

func TestOutputParentsIncludeOperatorOperandsAndRequest(t *testing.T) {
	n := NewOutput(4, App(Var("f"), Var("x")), nil, 2, []ID{3}, 10)
	assert.ElementsMatch(t, []ID{2, 3, 10}, n.Parents())

	n.AddESRParent(20)
	assert.ElementsMatch(t, []ID{2, 3, 10, 20}, n.Parents())
}

func TestRequestParentsIncludeOperatorAndOperands(t *testing.T) {
	n := NewRequest(5, App(Var("f"), Var("x")), nil, 2, []ID{3}, 6)
	assert.ElementsMatch(t, []ID{2, 3}, n.Parents())
}

func TestExprUnwrapSkipsScopeInclude(t *testing.T) {
	inner := App(Var("flip"))
	wrapped := ScopeInclude("loop", "b1", inner)
	assert.Same(t, inner, wrapped.Unwrap())
	assert.Equal(t, []ScopeTag{{Scope: "loop", Block: "b1"}}, wrapped.Scopes())
}
