package sp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/value"
)

type noAux struct{}

func (noAux) Copy() Aux { return noAux{} }

func TestWrapUnwrapRequestRoundTrip(t *testing.T) {
	req := Request{ESRs: []ESR{{Key: 0, Scope: "default"}}}
	wrapped := WrapRequest(req)

	got, ok := UnwrapRequest(wrapped)
	require.True(t, ok)
	assert.Equal(t, req, got)
}

func TestUnwrapRequestRejectsOtherValues(t *testing.T) {
	_, ok := UnwrapRequest(value.Number(1))
	assert.False(t, ok)
}

func TestNullRequestPSPIsNeverRandomAndNoOp(t *testing.T) {
	v, err := NullRequestPSP.Simulate(nil, noAux{}, nil)
	require.NoError(t, err)
	_, ok := UnwrapRequest(v)
	assert.True(t, ok, "the null request-PSP's simulated value must itself be a wrapped (empty) Request")

	assert.False(t, NullRequestPSP.IsRandom())
	assert.NoError(t, NullRequestPSP.Incorporate(nil, nil, noAux{}))
	assert.NoError(t, NullRequestPSP.Unincorporate(nil, nil, noAux{}))
}

func TestNewBuildsSPWithNullRequestPSP(t *testing.T) {
	s := New("flip", fakeOutputPSP{}, func() Aux { return noAux{} })
	assert.Equal(t, "flip", s.Name)
	assert.Equal(t, NullRequestPSP, s.RequestPSP)
	assert.Equal(t, fakeOutputPSP{}, s.OutputPSP)
}

func TestNewRequestingBuildsSPWithGivenRequestPSP(t *testing.T) {
	req := fakeOutputPSP{}
	s := NewRequesting("mem", req, fakeOutputPSP{}, func() Aux { return noAux{} })
	assert.Equal(t, req, s.RequestPSP)
}

func TestMadeSPValueCarriesUnderlyingSP(t *testing.T) {
	inner := New("die", fakeOutputPSP{}, func() Aux { return noAux{} })
	made := MadeSPValue{SP: inner}
	assert.Equal(t, "made-sp", made.Kind())
	assert.Contains(t, made.String(), "die")
}

type fakeOutputPSP struct{}

func (fakeOutputPSP) Simulate(args []value.Value, aux Aux, rng *rand.Rand) (value.Value, error) {
	return value.Number(0), nil
}
func (fakeOutputPSP) LogDensity(val value.Value, args []value.Value, aux Aux) (float64, error) {
	return 0, nil
}
func (fakeOutputPSP) Incorporate(value.Value, []value.Value, Aux) error   { return nil }
func (fakeOutputPSP) Unincorporate(value.Value, []value.Value, Aux) error { return nil }
func (fakeOutputPSP) IsRandom() bool                                      { return false }
