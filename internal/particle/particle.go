// Package particle implements the particle abstraction used by the particle
// Gibbs kernel (spec §4.H "Particle Gibbs", design note §9). A true
// copy-on-write overlay per particle would let every particle's
// resimulation run independently before a single merge step; no such
// overlay exists here. Because an SP's sufficient-statistics aux is shared mutable
// state addressed by maker node id rather than itself graph-structured,
// this package instead runs particles sequentially against the one shared
// trace — detach, resimulate, record weight, detach again to roll the aux
// back to baseline before the next trial — and only the winning particle's
// snapshot is regenerated for keeps. The distribution over which particle
// wins is identical to the textbook parallel-branches formulation; only the
// mechanics of getting there are serialized (documented as an Open Question
// resolution in DESIGN.md).
package particle

import (
	"github.com/probsys/trellis/internal/omegadb"
	"github.com/probsys/trellis/internal/regen"
	"github.com/probsys/trellis/internal/scaffold"
	"github.com/probsys/trellis/internal/trace"
)

// Particle is one trial's outcome: a snapshot of the scaffold's resampling
// set after one regen pass, its weight, and whether it is the retained
// (current-state) particle.
type Particle struct {
	db        *omegadb.DB
	weight    float64
	retained  bool
}

// NewRetained wraps the already-computed weight and snapshot of the
// current-state particle (the "retained" path in particle Gibbs, which must
// always be a candidate so the chain remains ergodic).
func NewRetained(tr *trace.Trace, sc *scaffold.Scaffold, db *omegadb.DB) *Particle {
	return &Particle{db: db, retained: true}
}

// NewFresh runs one fresh resimulation trial over sc, which the caller must
// already have detached: regenerate fresh, then detach again (snapshotting
// the result) to roll the shared aux back to baseline so the next trial
// starts from the same place.
func NewFresh(tr *trace.Trace, sc *scaffold.Scaffold) (*Particle, error) {
	weight, err := regen.RegenAndAttach(tr, sc, false, nil)
	if err != nil {
		return nil, err
	}
	db, _, err := regen.DetachAndExtract(tr, sc)
	if err != nil {
		return nil, err
	}
	return &Particle{db: db, weight: weight}, nil
}

// Weight returns the trial's log weight (0 for the retained particle, whose
// weight was already folded into the caller's accounting before
// construction).
func (p *Particle) Weight() float64 { return p.weight }

// CommitTo regenerates sc on tr from this particle's snapshot, making it the
// trace's new current state (original_source infer.py's restoreAncestorPath
// for the winning particle).
func (p *Particle) CommitTo(tr *trace.Trace, sc *scaffold.Scaffold) error {
	_, err := regen.RegenAndAttach(tr, sc, true, p.db)
	return err
}
