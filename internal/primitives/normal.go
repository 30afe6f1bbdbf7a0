package primitives

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
)

type normalPSP struct{}

func normalArgs(args []value.Value) (mu, sigma float64, err error) {
	if len(args) != 2 {
		return 0, 0, errArity("normal", 2, len(args))
	}
	m, err := value.AsNumber(args[0])
	if err != nil {
		return 0, 0, err
	}
	s, err := value.AsNumber(args[1])
	if err != nil {
		return 0, 0, err
	}
	return float64(m), float64(s), nil
}

func (normalPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	mu, sigma, err := normalArgs(args)
	if err != nil {
		return nil, err
	}
	return value.Number(mu + sigma*rng.NormFloat64()), nil
}

func (normalPSP) LogDensity(val value.Value, args []value.Value, aux sp.Aux) (float64, error) {
	mu, sigma, err := normalArgs(args)
	if err != nil {
		return 0, err
	}
	x, err := value.AsNumber(val)
	if err != nil {
		return 0, err
	}
	z := (float64(x) - mu) / sigma
	return -0.5*z*z - math.Log(sigma) - 0.5*math.Log(2*math.Pi), nil
}

func (normalPSP) Incorporate(value.Value, []value.Value, sp.Aux) error   { return nil }
func (normalPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error { return nil }
func (normalPSP) IsRandom() bool                                         { return true }

func (p normalPSP) GradientOfLogDensity(val value.Value, args []value.Value, aux sp.Aux) ([]float64, error) {
	mu, sigma, err := normalArgs(args)
	if err != nil {
		return nil, err
	}
	x, err := value.AsNumber(val)
	if err != nil {
		return nil, err
	}
	return []float64{-(float64(x) - mu) / (sigma * sigma)}, nil
}

// Normal is `normal`: a Gaussian with given mean and standard deviation
// (original_source continuous.py NormalOutputPSP).
var Normal = sp.New("normal", normalPSP{}, NewNoAux)

var _ sp.GradientPSP = normalPSP{}

func errArity(name string, want, got int) error {
	return fmt.Errorf("%s: expected %d args, got %d", name, want, got)
}
