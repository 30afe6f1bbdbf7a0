package kernel

import (
	"fmt"
	"math"

	"github.com/probsys/trellis/internal/particle"
	"github.com/probsys/trellis/internal/regen"
	"github.com/probsys/trellis/internal/scaffold"
	"github.com/probsys/trellis/internal/trace"
)

// PGibbs runs a particle Gibbs sweep over a scaffold: numParticles-1 fresh
// particles are regenerated from the prior alongside one "retained"
// particle that replays the trace's current state exactly, the particles
// are resampled proportional to their weights, and the winner's state is
// committed back onto the base trace (original_source infer.py's
// PGibbsOperator / constructAncestorPath / restoreAncestorPath, spec §4.H
// "Particle Gibbs"). Per spec §9 open question (i), each step resamples
// once at the end of the scaffold's resampling set rather than after every
// node (T=1), the simpler of the two documented orderings.
func PGibbs(tr *trace.Trace, sel Selector, numParticles int) (Result, error) {
	if numParticles < 2 {
		return Result{}, fmt.Errorf("particle Gibbs requires at least 2 particles, got %d", numParticles)
	}
	principals, _, err := sel.Select(tr)
	if err != nil {
		return Result{}, err
	}
	sc := scaffold.Build(tr, principals)

	retained, weightRetained, err := regen.DetachAndExtract(tr, sc)
	if err != nil {
		return Result{}, err
	}
	// Trace is now torus (detached); every trial below, including the
	// final commit, resimulates from this same baseline.

	particles := make([]*particle.Particle, numParticles)
	weights := make([]float64, numParticles)

	baseParticle := particle.NewRetained(tr, sc, retained)
	particles[0] = baseParticle
	weights[0] = weightRetained

	for i := 1; i < numParticles; i++ {
		p, err := particle.NewFresh(tr, sc)
		if err != nil {
			return Result{}, err
		}
		particles[i] = p
		weights[i] = p.Weight()
	}

	logTotal := regen.LogSumExp(weights)
	probs := make([]float64, numParticles)
	for i, w := range weights {
		probs[i] = expClamped(w - logTotal)
	}
	winner := sampleCategorical(tr.RNG(), probs)

	if err := particles[winner].CommitTo(tr, sc); err != nil {
		return Result{}, err
	}
	if winner != 0 {
		// The retained particle's snapshot is superseded by the winner's;
		// its brush can now be freed (spec §3 brush lifecycle).
		regen.DiscardDetached(tr, sc)
	}

	return Result{Accepted: winner != 0, LogAcceptRate: weights[winner] - weightRetained}, nil
}

func expClamped(x float64) float64 {
	if x > 0 {
		return 1
	}
	return math.Exp(x)
}

func sampleCategorical(rng interface{ Float64() float64 }, probs []float64) int {
	u := rng.Float64()
	cum := 0.0
	for i, p := range probs {
		cum += p
		if u <= cum {
			return i
		}
	}
	return len(probs) - 1
}
