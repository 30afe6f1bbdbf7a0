package primitives

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
)

func TestIfPicksTakenBranch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	val, err := If.OutputPSP.Simulate([]value.Value{value.Bool(true), value.Number(1), value.Number(2)}, nil, rng)
	require.NoError(t, err)
	assert.Equal(t, value.Number(1), val)

	val, err = If.OutputPSP.Simulate([]value.Value{value.Bool(false), value.Number(1), value.Number(2)}, nil, rng)
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), val)
}

func TestIfArityError(t *testing.T) {
	_, err := If.OutputPSP.Simulate([]value.Value{value.Bool(true)}, nil, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestMakeCspSubstitutesArgsAndRequestsBody(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	params := value.List(value.Symbol("x"))
	body := value.QuotedExpr{Expr: node.Var("x")}

	val, err := MakeCsp.OutputPSP.Simulate([]value.Value{params, body}, nil, rng)
	require.NoError(t, err)
	made, ok := val.(sp.MadeSPValue)
	require.True(t, ok)

	reqVal, err := made.SP.RequestPSP.Simulate([]value.Value{value.Number(9)}, nil, rng)
	require.NoError(t, err)
	req, ok := sp.UnwrapRequest(reqVal)
	require.True(t, ok)
	require.Len(t, req.ESRs, 1)

	substituted, ok := req.ESRs[0].Exp.(*node.Expr)
	require.True(t, ok)
	assert.Equal(t, node.ExprLiteral, substituted.Kind)
	assert.Equal(t, value.Number(9), substituted.Literal)

	_, ok = made.SP.OutputPSP.(sp.ESRRefPSP)
	assert.True(t, ok)
}

func TestMakeCspArityError(t *testing.T) {
	_, err := MakeCsp.OutputPSP.Simulate([]value.Value{value.Nil{}}, nil, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestMemCachesRepeatedCalls(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	val, err := Mem.OutputPSP.Simulate([]value.Value{sp.MadeSPValue{SP: Flip}}, nil, rng)
	require.NoError(t, err)
	made, ok := val.(sp.MadeSPValue)
	require.True(t, ok)
	aux := made.SP.NewAux()

	args := []value.Value{value.Number(1)}
	first, err := made.SP.OutputPSP.Simulate(args, aux, rng)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := made.SP.OutputPSP.Simulate(args, aux, rng)
		require.NoError(t, err)
		assert.Equal(t, first, again, "mem must return the same value for the same arguments")
	}
}

func TestMemArityError(t *testing.T) {
	_, err := Mem.OutputPSP.Simulate(nil, nil, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}
