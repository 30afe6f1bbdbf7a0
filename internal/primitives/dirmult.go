package primitives

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
)

// dirMultAux holds the per-outcome pseudo-counts incorporated so far, plus
// the Dirichlet prior it was built with; exactly the sufficient statistics
// original_source dirichlet.py's CollapsedDirMultOutputPSP keeps on its
// SPAux (spec §3 "AAA": "the sufficient statistics its children have
// incorporated").
type dirMultAux struct {
	alpha  []float64
	counts []float64
}

func (a *dirMultAux) Copy() sp.Aux {
	counts := append([]float64(nil), a.counts...)
	return &dirMultAux{alpha: a.alpha, counts: counts}
}

type collapsedDirMultPSP struct{ aux *dirMultAux }

func (p collapsedDirMultPSP) total(aux sp.Aux) (float64, []float64) {
	a := aux.(*dirMultAux)
	sumAlpha := 0.0
	for _, x := range a.alpha {
		sumAlpha += x
	}
	sumCounts := 0.0
	for _, c := range a.counts {
		sumCounts += c
	}
	probs := make([]float64, len(a.alpha))
	for i := range probs {
		probs[i] = (a.alpha[i] + a.counts[i]) / (sumAlpha + sumCounts)
	}
	return sumAlpha + sumCounts, probs
}

func (p collapsedDirMultPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	_, probs := p.total(aux)
	u := rng.Float64()
	cum := 0.0
	for i, pr := range probs {
		cum += pr
		if u <= cum {
			return value.Atom(i), nil
		}
	}
	return value.Atom(len(probs) - 1), nil
}

func (p collapsedDirMultPSP) LogDensity(val value.Value, args []value.Value, aux sp.Aux) (float64, error) {
	a, err := value.AsAtom(val)
	if err != nil {
		return 0, err
	}
	_, probs := p.total(aux)
	i := int(a)
	if i < 0 || i >= len(probs) {
		return math.Inf(-1), nil
	}
	return math.Log(probs[i]), nil
}

func (p collapsedDirMultPSP) Incorporate(val value.Value, args []value.Value, aux sp.Aux) error {
	a, err := value.AsAtom(val)
	if err != nil {
		return err
	}
	d := aux.(*dirMultAux)
	if int(a) < 0 || int(a) >= len(d.counts) {
		return fmt.Errorf("dir-mult: outcome %d out of range [0,%d)", a, len(d.counts))
	}
	d.counts[a]++
	return nil
}

func (p collapsedDirMultPSP) Unincorporate(val value.Value, args []value.Value, aux sp.Aux) error {
	a, err := value.AsAtom(val)
	if err != nil {
		return err
	}
	d := aux.(*dirMultAux)
	d.counts[a]--
	return nil
}

func (collapsedDirMultPSP) IsRandom() bool { return true }

func (p collapsedDirMultPSP) EnumerateValues(args []value.Value, aux sp.Aux) ([]value.Value, error) {
	d := aux.(*dirMultAux)
	out := make([]value.Value, len(d.alpha))
	for i := range d.alpha {
		out[i] = value.Atom(i)
	}
	return out, nil
}

// ChildrenCanAAA reports that this collapsed maker's many applications can
// be absorbed/resampled in closed form from the incorporated counts, rather
// than needing MH over an explicit latent parameter (spec §3 "AAA",
// grounded in dirichlet.py: the categorical parameter is analytically
// marginalized, so there is nothing left to resample -- AAAKernel is the
// identity).
func (collapsedDirMultPSP) ChildrenCanAAA() bool { return true }

func (collapsedDirMultPSP) AAAKernel(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	return sp.MadeSPValue{SP: makeDirMultSP(aux.(*dirMultAux))}, nil
}

func makeDirMultSP(aux *dirMultAux) *sp.SP {
	return sp.New("dir_mult_categorical", collapsedDirMultPSP{aux: aux}, func() sp.Aux { return aux })
}

type makeDirMultPSP struct{}

func (makeDirMultPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	if len(args) != 1 {
		return nil, errArity("make_dir_mult", 1, len(args))
	}
	simplex, err := value.AsSimplex(args[0])
	if err != nil {
		return nil, err
	}
	a := &dirMultAux{alpha: append([]float64(nil), simplex...), counts: make([]float64, len(simplex))}
	return sp.MadeSPValue{SP: makeDirMultSP(a)}, nil
}

func (makeDirMultPSP) LogDensity(value.Value, []value.Value, sp.Aux) (float64, error) { return 0, nil }
func (makeDirMultPSP) Incorporate(value.Value, []value.Value, sp.Aux) error           { return nil }
func (makeDirMultPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error         { return nil }
func (makeDirMultPSP) IsRandom() bool                                                 { return false }

// MakeDirMult is `make_dir_mult`: given a Dirichlet concentration simplex,
// returns a made SP drawing collapsed categorical outcomes (spec §8
// scenario 1, "Dirichlet-multinomial die").
var MakeDirMult = sp.New("make_dir_mult", makeDirMultPSP{}, NewNoAux)

var _ sp.AAAPSP = collapsedDirMultPSP{}
var _ sp.EnumerablePSP = collapsedDirMultPSP{}
