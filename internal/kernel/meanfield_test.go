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

// flatVariationalKernel always proposes the same value with zero proposal
// correction, exercising Meanfield's wiring without depending on any real
// variational-family primitive (none of the bundled distributions implement
// sp.VariationalPSP, so this fixture stays local to the test).
type flatVariationalKernel struct{ val value.Value }

func (k *flatVariationalKernel) Simulate(rng *rand.Rand) (value.Value, float64, error) {
	return k.val, 0, nil
}
func (k *flatVariationalKernel) GradientOfLogDensity(val value.Value) ([]float64, error) {
	return []float64{0}, nil
}
func (k *flatVariationalKernel) UpdateParameters(gradient []float64, gain, stepSize float64) {}

type flatVariationalPSP struct{}

func (flatVariationalPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	return value.Number(0), nil
}
func (flatVariationalPSP) LogDensity(val value.Value, args []value.Value, aux sp.Aux) (float64, error) {
	return 0, nil
}
func (flatVariationalPSP) Incorporate(value.Value, []value.Value, sp.Aux) error   { return nil }
func (flatVariationalPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error { return nil }
func (flatVariationalPSP) IsRandom() bool                                        { return true }
func (flatVariationalPSP) NewVariationalKernel(args []value.Value) sp.VariationalKernel {
	return &flatVariationalKernel{val: value.Number(0)}
}

var flatVariational = sp.New("flat_variational", flatVariationalPSP{}, func() sp.Aux { return noAux{} })

type noAux struct{}

func (noAux) Copy() sp.Aux { return noAux{} }

var _ sp.VariationalPSP = flatVariationalPSP{}

func TestMeanfieldAcceptsUnderFlatDensity(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flat", flatVariational)

	_, _, err := regen.EvalFamily(tr, node.App(node.Var("flat")), env)
	require.NoError(t, err)

	result, err := Meanfield(tr, SingleSiteSelector{}, 3, 0.1)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestMeanfieldRejectsNonVariationalPSP(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flip", primitives.Flip)

	_, _, err := regen.EvalFamily(tr, node.App(node.Var("flip")), env)
	require.NoError(t, err)

	_, err = Meanfield(tr, SingleSiteSelector{}, 1, 0.1)
	assert.Error(t, err)
}
