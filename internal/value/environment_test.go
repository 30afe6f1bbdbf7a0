package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentBindAndFind(t *testing.T) {
	root := NewEnvironment()
	child := root.BindOne("x", 1)

	ref, err := child.FindSymbol("x")
	require.NoError(t, err)
	assert.Equal(t, NodeRef(1), ref)

	_, err = root.FindSymbol("x")
	assert.Error(t, err)
	var unbound *UnboundSymbolError
	assert.ErrorAs(t, err, &unbound)
}

func TestEnvironmentExtendDoesNotMutateParent(t *testing.T) {
	root := NewEnvironment()
	child, err := root.Extend([]string{"a", "b"}, []NodeRef{1, 2})
	require.NoError(t, err)

	_, err = root.FindSymbol("a")
	assert.Error(t, err, "extending must not leak bindings back into the parent")

	a, err := child.FindSymbol("a")
	require.NoError(t, err)
	assert.Equal(t, NodeRef(1), a)
}

func TestEnvironmentShadowing(t *testing.T) {
	root := NewEnvironment().BindOne("x", 1)
	inner := root.BindOne("x", 2)

	v, err := inner.FindSymbol("x")
	require.NoError(t, err)
	assert.Equal(t, NodeRef(2), v)

	v, err = root.FindSymbol("x")
	require.NoError(t, err)
	assert.Equal(t, NodeRef(1), v)
}

func TestEnvironmentExtendArityMismatch(t *testing.T) {
	root := NewEnvironment()
	_, err := root.Extend([]string{"a"}, []NodeRef{1, 2})
	assert.Error(t, err)
}
