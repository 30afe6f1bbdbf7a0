package kernel

import (
	"fmt"
	"math"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
)

// Meanfield runs a fixed number of stochastic-gradient steps optimizing a
// per-node variational family against the node's own log-density, then
// draws one sample from the optimized family and accepts it with an
// importance-weighted MH correction restricted to the node's immediate
// absorbing children (original_source infer.py's MeanfieldOperator /
// registerVariationalLKernels, spec §4.H "Mean-field"). Unlike MH's scaffold
// walk, the proposal distribution here is the optimized variational family
// rather than the prior, so the acceptance ratio carries an extra -logQ
// term; this kernel deliberately stays local to the principal node and its
// direct children rather than re-deriving a full scaffold, since a
// downstream deterministic dependent simply recomputes from the node's new
// value (spec §9 open question, resolved: mean-field operates node-local).
func Meanfield(tr *trace.Trace, sel Selector, steps int, stepSize float64) (Result, error) {
	principals, _, err := sel.Select(tr)
	if err != nil {
		return Result{}, err
	}
	if len(principals) != 1 {
		return Result{}, fmt.Errorf("mean-field kernel requires a single-node selection, got %d", len(principals))
	}
	id := principals[0]

	psp, err := tr.PSPAt(id)
	if err != nil {
		return Result{}, err
	}
	vpsp, ok := psp.(sp.VariationalPSP)
	if !ok {
		return Result{}, fmt.Errorf("mean-field kernel: PSP at %s has no variational family", id)
	}

	vk := vpsp.NewVariationalKernel(tr.ArgsAt(id))
	for i := 0; i < steps; i++ {
		val, _, err := vk.Simulate(tr.RNG())
		if err != nil {
			return Result{}, err
		}
		grad, err := vk.GradientOfLogDensity(val)
		if err != nil {
			return Result{}, err
		}
		gain := 1.0 / float64(i+1)
		vk.UpdateParameters(grad, gain, stepSize)
	}

	oldVal := tr.ValueAt(id)
	weightOld, err := localWeight(tr, id)
	if err != nil {
		return Result{}, err
	}
	if err := tr.UnincorporateAt(id); err != nil {
		return Result{}, err
	}

	proposal, logQ, err := vk.Simulate(tr.RNG())
	if err != nil {
		return Result{}, err
	}
	tr.SetValueAt(id, proposal)
	if err := tr.IncorporateAt(id); err != nil {
		return Result{}, err
	}
	weightNew, err := localWeight(tr, id)
	if err != nil {
		return Result{}, err
	}

	logAlpha := (weightNew - logQ) - weightOld
	if logAlpha >= 0 || math.Log(tr.RNG().Float64()) < logAlpha {
		return Result{Accepted: true, LogAcceptRate: logAlpha}, nil
	}

	if err := tr.UnincorporateAt(id); err != nil {
		return Result{}, err
	}
	tr.SetValueAt(id, oldVal)
	if err := tr.IncorporateAt(id); err != nil {
		return Result{}, err
	}
	return Result{Accepted: false, LogAcceptRate: logAlpha}, nil
}

// localWeight is the log-density this node's current value contributes
// under its own PSP, plus the log-density every immediate child assigns to
// its own (unchanged) value given this node's value as one of its
// arguments.
func localWeight(tr *trace.Trace, id node.ID) (float64, error) {
	own, err := tr.LogDensityAt(id, tr.ValueAt(id))
	if err != nil {
		return 0, err
	}
	total := own
	for _, c := range tr.ChildrenOf(id) {
		child := tr.Node(c)
		if child == nil || child.Kind != node.Output {
			continue
		}
		w, err := tr.LogDensityAt(c, tr.ValueAt(c))
		if err != nil {
			continue
		}
		total += w
	}
	return total, nil
}
