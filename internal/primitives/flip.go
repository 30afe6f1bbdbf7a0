package primitives

import (
	"math"
	"math/rand"

	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
)

type flipPSP struct{}

func (flipPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	p, err := weightArg(args)
	if err != nil {
		return nil, err
	}
	return value.Bool(rng.Float64() < p), nil
}

func (flipPSP) LogDensity(val value.Value, args []value.Value, aux sp.Aux) (float64, error) {
	b, err := value.AsBool(val)
	if err != nil {
		return 0, err
	}
	p, err := weightArg(args)
	if err != nil {
		return 0, err
	}
	if bool(b) {
		return math.Log(p), nil
	}
	return math.Log(1 - p), nil
}

func (flipPSP) Incorporate(value.Value, []value.Value, sp.Aux) error   { return nil }
func (flipPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error { return nil }
func (flipPSP) IsRandom() bool                                         { return true }

func (flipPSP) EnumerateValues(args []value.Value, aux sp.Aux) ([]value.Value, error) {
	return []value.Value{value.Bool(true), value.Bool(false)}, nil
}

func weightArg(args []value.Value) (float64, error) {
	if len(args) == 0 {
		return 0.5, nil
	}
	n, err := value.AsNumber(args[0])
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

// Flip is `flip`: a weighted coin, defaulting to a fair coin with no
// arguments (original_source discrete.py BernoulliOutputPSP).
var Flip = sp.New("flip", flipPSP{}, NewNoAux)

var _ sp.EnumerablePSP = flipPSP{}
