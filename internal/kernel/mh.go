// Package kernel implements the transition kernels that drive `infer`: a
// single-site Metropolis-Hastings sweep, a mean-field variational kernel, a
// particle Gibbs kernel, and a rejection kernel, grounded in
// original_source/backend/lite/infer.py's MHOperator, MeanfieldOperator,
// PGibbsOperator, and the rejection variant mentioned alongside them.
package kernel

import (
	"fmt"
	"math"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/regen"
	"github.com/probsys/trellis/internal/scaffold"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
)

// Selector picks the principal node(s) a single kernel step operates on.
// BlockSelector (scope/block) and SingleSiteSelector (one random choice) are
// the two concrete implementations (spec §4.D "samplePrincipalNode" /
// "sampleBlock").
type Selector interface {
	// Select returns the principal nodes for one kernel application and
	// the log-density of having made that selection (needed for the MH
	// acceptance ratio's symmetric selection terms to cancel correctly
	// when the selector is not uniform over a fixed set).
	Select(tr *trace.Trace) ([]node.ID, float64, error)
}

// SingleSiteSelector samples one principal node uniformly from the entire
// random-choice registry (spec §4.D BlockScaffoldIndexer degenerate case,
// original_source infer.py's default indexer when no scope is given).
type SingleSiteSelector struct{}

func (SingleSiteSelector) Select(tr *trace.Trace) ([]node.ID, float64, error) {
	id, err := tr.SamplePrincipalNode()
	if err != nil {
		return nil, 0, err
	}
	return []node.ID{id}, tr.LogDensityOfPrincipalNode(), nil
}

// BlockSelector samples a block uniformly from a named scope and returns
// every node registered under it (original_source infer.py
// BlockScaffoldIndexer).
type BlockSelector struct{ Scope string }

func (s BlockSelector) Select(tr *trace.Trace) ([]node.ID, float64, error) {
	block, err := tr.SampleBlock(s.Scope)
	if err != nil {
		return nil, 0, err
	}
	nodes := tr.NodesInBlock(s.Scope, block)
	if len(nodes) == 0 {
		return nil, 0, fmt.Errorf("block %q in scope %q is empty", block, s.Scope)
	}
	return nodes, tr.LogDensityOfBlock(s.Scope), nil
}

// Result reports what a single kernel step did, for the engine driver's
// logging and `infer` statistics.
type Result struct {
	Accepted      bool
	LogAcceptRate float64
}

// MH runs one single-site (or block, depending on sel) Metropolis-Hastings
// step: detach the scaffold, regenerate it fresh, and accept or reject by
// the standard MH ratio (spec §4.G, §4.H "Single-site MH").
func MH(tr *trace.Trace, sel Selector) (Result, error) {
	principals, _, err := sel.Select(tr)
	if err != nil {
		return Result{}, err
	}
	sc := scaffold.Build(tr, principals)

	db, weightOld, err := regen.DetachAndExtract(tr, sc)
	if err != nil {
		return Result{}, err
	}

	weightNew, err := regen.RegenAndAttach(tr, sc, false, db)
	if err != nil {
		return Result{}, err
	}

	logAlpha := weightNew - weightOld
	if logAlpha >= 0 || math.Log(tr.RNG().Float64()) < logAlpha {
		regen.DiscardDetached(tr, sc)
		return Result{Accepted: true, LogAcceptRate: logAlpha}, nil
	}

	// Reject: unwind the fresh regen and restore from the snapshot.
	if _, _, err := regen.DetachAndExtract(tr, sc); err != nil {
		return Result{}, err
	}
	if _, err := regen.RegenAndAttach(tr, sc, true, db); err != nil {
		return Result{}, err
	}
	return Result{Accepted: false, LogAcceptRate: logAlpha}, nil
}

// Rejection runs a rejection-sampling step at a single principal node whose
// PSP supplies a LogDensityBound (spec §4.H "Rejection"; spec §8 "Rejection
// MH applied to a node whose PSP lacks a LogDensityBound must fail early
// with a clear error").
func Rejection(tr *trace.Trace, sel Selector, maxAttempts int) (Result, error) {
	principals, _, err := sel.Select(tr)
	if err != nil {
		return Result{}, err
	}
	if len(principals) != 1 {
		return Result{}, fmt.Errorf("rejection kernel requires a single-node selection, got %d", len(principals))
	}
	sc := scaffold.Build(tr, principals)

	db, _, err := regen.DetachAndExtract(tr, sc)
	if err != nil {
		return Result{}, err
	}

	id := principals[0]
	psp, err := tr.PSPAt(id)
	if err != nil {
		return Result{}, err
	}
	if _, ok := psp.(sp.BoundedPSP); !ok {
		return Result{}, fmt.Errorf("rejection kernel: PSP at %s has no log-density bound", id)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := regen.RegenAndAttach(tr, sc, false, db); err != nil {
			return Result{}, err
		}
		accept, err := rejectionAccept(tr, id)
		if err != nil {
			return Result{}, err
		}
		if accept {
			regen.DiscardDetached(tr, sc)
			return Result{Accepted: true}, nil
		}
		if _, _, err := regen.DetachAndExtract(tr, sc); err != nil {
			return Result{}, err
		}
	}
	return Result{}, fmt.Errorf("rejection kernel: exceeded %d attempts at node %s", maxAttempts, id)
}

// rejectionAccept draws a uniform threshold against the PSP's declared
// log-density bound and accepts the just-simulated value if its actual
// log-density clears it (spec §4.H "Rejection").
func rejectionAccept(tr *trace.Trace, id node.ID) (bool, error) {
	psp, err := tr.PSPAt(id)
	if err != nil {
		return false, err
	}
	bounded, ok := psp.(sp.BoundedPSP)
	if !ok {
		return false, fmt.Errorf("rejection kernel: PSP at %s has no log-density bound", id)
	}
	args := tr.ArgsAt(id)
	aux := tr.SPAuxAt(id)
	bound, err := bounded.LogDensityBound(args, aux)
	if err != nil {
		return false, err
	}
	actual, err := tr.LogDensityAt(id, tr.ValueAt(id))
	if err != nil {
		return false, err
	}
	threshold := bound + math.Log(tr.RNG().Float64())
	return actual >= threshold, nil
}
