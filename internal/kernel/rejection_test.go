package kernel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/primitives"
	"github.com/probsys/trellis/internal/regen"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
	"github.com/probsys/trellis/internal/value"
)

// flatBoundedPSP is a uniform distribution over [0,1): log-density 0
// everywhere on its support, so its bound is exactly 0 and rejection always
// accepts on the first attempt. None of the bundled distributions implement
// sp.BoundedPSP, so this fixture stays local to the test.
type flatBoundedPSP struct{}

func (flatBoundedPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	return value.Number(rng.Float64()), nil
}
func (flatBoundedPSP) LogDensity(val value.Value, args []value.Value, aux sp.Aux) (float64, error) {
	return 0, nil
}
func (flatBoundedPSP) Incorporate(value.Value, []value.Value, sp.Aux) error   { return nil }
func (flatBoundedPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error { return nil }
func (flatBoundedPSP) IsRandom() bool                                        { return true }
func (flatBoundedPSP) LogDensityBound(args []value.Value, aux sp.Aux) (float64, error) {
	return 0, nil
}

var flatBounded = sp.New("flat_bounded", flatBoundedPSP{}, func() sp.Aux { return noAux{} })

var _ sp.BoundedPSP = flatBoundedPSP{}

func TestRejectionAcceptsOnFirstAttempt(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flat", flatBounded)

	_, _, err := regen.EvalFamily(tr, node.App(node.Var("flat")), env)
	require.NoError(t, err)

	result, err := Rejection(tr, SingleSiteSelector{}, 10)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestRejectionFailsWithoutBoundedPSP(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flip", primitives.Flip)

	_, _, err := regen.EvalFamily(tr, node.App(node.Var("flip")), env)
	require.NoError(t, err)

	_, err = Rejection(tr, SingleSiteSelector{}, 10)
	assert.Error(t, err)
}
