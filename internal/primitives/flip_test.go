package primitives

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
)

func TestFlipDefaultsToFairCoin(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		val, err := Flip.OutputPSP.Simulate(nil, nil, rng)
		require.NoError(t, err)
		_, err = value.AsBool(val)
		require.NoError(t, err)
	}
}

func TestFlipLogDensityMatchesWeight(t *testing.T) {
	args := []value.Value{value.Number(0.25)}
	ld, err := Flip.OutputPSP.LogDensity(value.Bool(true), args, nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(0.25), ld, 1e-9)

	ld, err = Flip.OutputPSP.LogDensity(value.Bool(false), args, nil)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(0.75), ld, 1e-9)
}

func TestFlipEnumerateValues(t *testing.T) {
	enum, ok := Flip.OutputPSP.(sp.EnumerablePSP)
	require.True(t, ok)
	vals, err := enum.EnumerateValues(nil, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []value.Value{value.Bool(true), value.Bool(false)}, vals)
}
