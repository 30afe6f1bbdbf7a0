// Package regen implements the reversible detach/regen surgery at the heart
// of single-site and block inference (spec §4.G): detachAndExtract tears
// down a scaffold's resampling set while recording everything needed to
// restore it, and regenAndAttach rebuilds it either fresh (a new proposal)
// or from a prior snapshot (restoring a rejected proposal or rerunning the
// current state's weight). Closely grounded on
// original_source/backend/lite/regen.py, whose regenAndAttach/detachAndExtract
// and their helpers (attach, regenParents, regen, evalFamily, apply,
// processMadeSP, applyPSP, evalRequests, constrain) this package mirrors one
// for one.
package regen

import (
	"fmt"
	"math"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/omegadb"
	"github.com/probsys/trellis/internal/scaffold"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
	"github.com/probsys/trellis/internal/value"
)

// DetachAndExtract tears down every resampling node in sc, in reverse
// dependency order, accumulating the log-density each absorbing/AAA border
// node assigned to the value being removed (the "old" weight the caller
// must subtract when computing an MH acceptance ratio), and recording every
// removed node's state into a fresh OmegaDB (spec §4.G).
func DetachAndExtract(tr *trace.Trace, sc *scaffold.Scaffold) (*omegadb.DB, float64, error) {
	db := omegadb.New()
	weight := 0.0

	drg := sc.DRG()
	for i := len(drg) - 1; i >= 0; i-- {
		id := drg[i]
		n := tr.Node(id)
		if n == nil {
			continue
		}
		w, err := detachNode(tr, sc, db, n)
		if err != nil {
			return nil, 0, err
		}
		weight += w
	}

	// Detach brush nodes without removing them. A brush subtree may be the
	// family some Request node in this very scaffold will need to restore
	// if the upcoming proposal is rejected (spec §4.F), so physical
	// removal is deferred to DiscardDetached rather than done here
	// unconditionally.
	for id, class := range sc.Class {
		if class != scaffold.Brush {
			continue
		}
		n := tr.Node(id)
		if n == nil {
			continue // already removed by an earlier DiscardDetached call
		}
		if err := detachBrushNode(tr, db, n); err != nil {
			return nil, 0, err
		}
	}

	return db, weight, nil
}

// DiscardDetached physically removes every brush node DetachAndExtract
// non-destructively detached for sc (spec §3 brush lifecycle: "destroyed
// when the last family holding it is detached"). Call this once the caller
// knows the state DetachAndExtract recorded will never be restored from
// again: an accepted MH/rejection proposal, or a particle-Gibbs winner that
// was not the retained particle.
func DiscardDetached(tr *trace.Trace, sc *scaffold.Scaffold) {
	for id, class := range sc.Class {
		if class != scaffold.Brush {
			continue
		}
		unwindBrush(tr, id)
	}
}

func detachNode(tr *trace.Trace, sc *scaffold.Scaffold, db *omegadb.DB, n *node.Node) (float64, error) {
	weight := 0.0

	switch n.Kind {
	case node.Request:
		if n.Req != nil {
			db.ExtractRequest(n.ID, *n.Req)
			if out := tr.Node(n.OutputNode); out != nil {
				recordESRParents(db, n.ID, *n.Req, out.ESRParents)
				for _, esr := range n.Req.ESRs {
					if parent, ok := db.ESRParent(n.ID, esr.Key); ok {
						tr.UnregisterESREdge(parent, n.OutputNode)
					}
				}
			}
		}
		if err := tr.UnincorporateAt(n.ID); err != nil {
			return 0, err
		}
		n.Req = nil

	case node.Output:
		if n.IsObservation {
			w, err := tr.LogDensityAt(n.ID, n.ObservedValue)
			if err == nil {
				weight += w
			}
		}
		if err := tr.UnincorporateAt(n.ID); err != nil {
			return 0, err
		}
		db.ExtractValue(n.ID, n.Value, n.IsObservation, n.ObservedValue)
		if madeSP, ok := tr.MadeSPAt(n.ID); ok {
			db.ExtractMadeSP(n.ID, madeSP, tr.MadeSPAuxAt(n.ID))
			tr.ClearMadeSPAt(n.ID)
		}
		if tr.IsRandomChoice(n.ID) {
			tr.UnregisterRandomChoice(n.ID)
		}
		for _, tag := range n.Scopes {
			tr.UnregisterBlock(tag.Scope, tag.Block, n.ID)
		}
		n.Value = nil

	case node.Constant, node.Lookup:
		db.ExtractValue(n.ID, n.Value, false, nil)
	}

	// Absorbing/AAA border weight is accumulated once per regenCount: the
	// value is still in place when the *last* resampling parent detaches
	// from it, since detach walks parents-before-children in reverse.
	for _, c := range tr.ChildrenOf(n.ID) {
		if sc.RegenCount[c] == 0 {
			continue
		}
		if sc.Class[c] != scaffold.Absorbing && sc.Class[c] != scaffold.AAA {
			continue
		}
		w, err := tr.LogDensityAt(c, tr.ValueAt(c))
		if err != nil {
			continue
		}
		weight += w
	}

	return weight, nil
}

// recordESRParents indexes each ESR's currently-wired parent by (request
// node, ESR key) before the request node's own state is cleared, so a later
// restore of this same scaffold can look the family up instead of
// resimulating it (spec §4.F). Only the trailing len(req.ESRs) entries of
// parents are this request's own current wiring; detachNode unregisters
// those edges right after recording them, and evalRequests wires a restored
// or fresh parent back in their place.
func recordESRParents(db *omegadb.DB, reqID node.ID, req sp.Request, parents []node.ID) {
	if len(req.ESRs) == 0 || len(parents) < len(req.ESRs) {
		return
	}
	tail := parents[len(parents)-len(req.ESRs):]
	for i, esr := range req.ESRs {
		db.ExtractESRParent(reqID, esr.Key, tail[i])
	}
}

// detachBrushNode detaches one brush node's value/request state the same
// way detachNode does for a resampling node, but leaves it present in the
// trace rather than removing it: unwindBrush (via DiscardDetached) does the
// actual removal once the caller is sure it will not be restored from. Each
// case guards against being re-run on a node an earlier DetachAndExtract
// pass over the same scaffold already detached.
func detachBrushNode(tr *trace.Trace, db *omegadb.DB, n *node.Node) error {
	switch n.Kind {
	case node.Request:
		if n.Req == nil {
			return nil
		}
		db.ExtractRequest(n.ID, *n.Req)
		if err := tr.UnincorporateAt(n.ID); err != nil {
			return err
		}
		n.Req = nil

	case node.Output:
		if n.Value == nil {
			return nil
		}
		if err := tr.UnincorporateAt(n.ID); err != nil {
			return err
		}
		db.ExtractValue(n.ID, n.Value, n.IsObservation, n.ObservedValue)
		if madeSP, ok := tr.MadeSPAt(n.ID); ok {
			db.ExtractMadeSP(n.ID, madeSP, tr.MadeSPAuxAt(n.ID))
			tr.ClearMadeSPAt(n.ID)
		}
		if tr.IsRandomChoice(n.ID) {
			tr.UnregisterRandomChoice(n.ID)
		}
		for _, tag := range n.Scopes {
			tr.UnregisterBlock(tag.Scope, tag.Block, n.ID)
		}
		n.Value = nil

	case node.Constant, node.Lookup:
		db.ExtractValue(n.ID, n.Value, false, nil)
	}
	return nil
}

// unwindBrush physically removes a single brush node, tearing down any
// bookkeeping detachBrushNode left in place (random-choice registration,
// block tags, made-SP) if it had not already run. Called only from
// DiscardDetached, once the caller knows this node's detached snapshot will
// never be restored from.
func unwindBrush(tr *trace.Trace, id node.ID) {
	n := tr.Node(id)
	if n == nil {
		return
	}
	if n.Kind == node.Output {
		if tr.IsRandomChoice(id) {
			tr.UnincorporateAt(id)
			tr.UnregisterRandomChoice(id)
		}
		for _, tag := range n.Scopes {
			tr.UnregisterBlock(tag.Scope, tag.Block, id)
		}
		if madeSP, ok := tr.MadeSPAt(id); ok {
			_ = madeSP
			tr.ClearMadeSPAt(id)
		}
	}
	tr.RemoveNode(id)
}

// RegenAndAttach rebuilds every resampling node in sc, in dependency order.
// If restore is true, values are taken from db (a rejected proposal's
// rollback, or a re-weighing of the unchanged current state); otherwise
// each resampling node is freshly resimulated, and border nodes are merely
// absorbed (their log-density recomputed against the new parent values).
// Returns the accumulated "new" weight (spec §4.G).
func RegenAndAttach(tr *trace.Trace, sc *scaffold.Scaffold, restore bool, db *omegadb.DB) (float64, error) {
	weight := 0.0

	for _, id := range sc.DRG() {
		n := tr.Node(id)
		if n == nil {
			return 0, fmt.Errorf("regenAndAttach: missing resampling node %s", id)
		}
		w, err := regenNode(tr, n, restore, db)
		if err != nil {
			return 0, err
		}
		weight += w
	}

	for id, class := range sc.Class {
		if class != scaffold.Absorbing && class != scaffold.AAA {
			continue
		}
		if sc.RegenCount[id] == 0 {
			continue
		}
		w, err := attachBorder(tr, id, class)
		if err != nil {
			return 0, err
		}
		weight += w
	}

	return weight, nil
}

func regenNode(tr *trace.Trace, n *node.Node, restore bool, db *omegadb.DB) (float64, error) {
	switch n.Kind {
	case node.Constant, node.Lookup:
		if entry, ok := db.Value(n.ID); ok {
			n.Value = entry.Value
		}
		return 0, nil

	case node.Request:
		return regenRequest(tr, n, restore, db)

	case node.Output:
		return regenOutput(tr, n, restore, db)
	}
	return 0, nil
}

func regenRequest(tr *trace.Trace, n *node.Node, restore bool, db *omegadb.DB) (float64, error) {
	psp, err := tr.PSPAt(n.ID)
	if err != nil {
		return 0, err
	}
	args := tr.ArgsAt(n.ID)
	aux := tr.SPAuxAt(n.ID)

	var req sp.Request
	if restore {
		if entry, ok := db.Request(n.ID); ok {
			req = entry.Req
		}
	} else {
		val, err := psp.Simulate(args, aux, tr.RNG())
		if err != nil {
			return 0, err
		}
		r, ok := sp.UnwrapRequest(val)
		if !ok {
			return 0, fmt.Errorf("regen: request-PSP at %s did not return a Request", n.ID)
		}
		req = r
	}
	n.Req = &req
	if err := tr.IncorporateAt(n.ID); err != nil {
		return 0, err
	}
	return evalRequests(tr, n, req, restore, db)
}

// evalRequests wires each ESR's target as an ESR parent of the request's
// sibling output node (spec §4.F). On a restore pass, an ESR whose target
// was recorded by recordESRParents at detach time is restored from the
// still-present (non-destructively detached) family rather than
// resimulated, mirroring original_source regen.py's evalRequests restore
// branch ("omegaDB.getESRParent(trace.spAt(node), esr.id)"). Otherwise a
// fresh family is evaluated, and any stale mapping from a prior cycle is
// unregistered first so ESRParents does not accumulate duplicates across
// repeated detach/regen cycles of the same request node.
func evalRequests(tr *trace.Trace, reqNode *node.Node, req sp.Request, restore bool, db *omegadb.DB) (float64, error) {
	weight := 0.0
	for _, esr := range req.ESRs {
		if restore && db != nil {
			if parent, ok := db.ESRParent(reqNode.ID, esr.Key); ok {
				w, err := restoreEsrParent(tr, db, parent)
				if err != nil {
					return 0, err
				}
				weight += w
				tr.RegisterESREdge(parent, reqNode.OutputNode)
				if esr.Scope != "" {
					tr.RegisterBlock(esr.Scope, esr.Block, parent)
				}
				continue
			}
		}

		if db != nil {
			if old, ok := db.ESRParent(reqNode.ID, esr.Key); ok {
				tr.UnregisterESREdge(old, reqNode.OutputNode)
			}
		}

		expr, ok := esr.Exp.(*node.Expr)
		if !ok {
			return 0, fmt.Errorf("evalRequests: ESR.Exp is not a *node.Expr")
		}
		env, ok := esr.Env.(*value.Environment)
		if !ok {
			return 0, fmt.Errorf("evalRequests: ESR.Env is not a *value.Environment")
		}
		familyOutput, w, err := EvalFamily(tr, expr, env)
		if err != nil {
			return 0, err
		}
		weight += w
		tr.RegisterESREdge(familyOutput, reqNode.OutputNode)
		if esr.Scope != "" {
			tr.RegisterBlock(esr.Scope, esr.Block, familyOutput)
		}
	}
	return weight, nil
}

// restoreEsrParent restores one previously-resolved ESR family in place,
// recursing up through its operator/operands/request before its own value,
// mirroring original_source regen.py's restore. It is idempotent: a node
// already carrying a live value (or, for a Request node, a live Req) is
// left untouched, since it was already restored by an earlier call (shared
// operator/operand subtrees) or was never detached to begin with (a border
// node referenced as an ESR parent).
func restoreEsrParent(tr *trace.Trace, db *omegadb.DB, id node.ID) (float64, error) {
	n := tr.Node(id)
	if n == nil {
		return 0, fmt.Errorf("restoreEsrParent: missing node %s", id)
	}

	switch n.Kind {
	case node.Constant, node.Lookup:
		if n.Value != nil {
			return 0, nil
		}
		if entry, ok := db.Value(id); ok {
			n.Value = entry.Value
		}
		return 0, nil

	case node.Request:
		if n.Req != nil {
			return 0, nil
		}
		weight := 0.0
		if w, err := restoreEsrParent(tr, db, n.Operator); err == nil {
			weight += w
		} else {
			return 0, err
		}
		for _, operand := range n.Operands {
			w, err := restoreEsrParent(tr, db, operand)
			if err != nil {
				return 0, err
			}
			weight += w
		}
		entry, ok := db.Request(id)
		if !ok {
			return 0, fmt.Errorf("restoreEsrParent: no recorded request for %s", id)
		}
		n.Req = &entry.Req
		if err := tr.IncorporateAt(id); err != nil {
			return 0, err
		}
		w, err := evalRequests(tr, n, entry.Req, true, db)
		if err != nil {
			return 0, err
		}
		weight += w
		return weight, nil

	case node.Output:
		if n.Value != nil {
			return 0, nil
		}
		weight := 0.0
		if w, err := restoreEsrParent(tr, db, n.Operator); err == nil {
			weight += w
		} else {
			return 0, err
		}
		for _, operand := range n.Operands {
			w, err := restoreEsrParent(tr, db, operand)
			if err != nil {
				return 0, err
			}
			weight += w
		}
		if w, err := restoreEsrParent(tr, db, n.ReqNode); err == nil {
			weight += w
		} else {
			return 0, err
		}

		entry, ok := db.Value(id)
		if !ok {
			return 0, fmt.Errorf("restoreEsrParent: no recorded value for %s", id)
		}
		n.Value = entry.Value
		n.IsObservation = entry.IsObservation
		n.ObservedValue = entry.ObservedValue
		if err := tr.IncorporateAt(id); err != nil {
			return 0, err
		}
		psp, err := tr.PSPAt(id)
		if err != nil {
			return 0, err
		}
		n.IsRandom = psp.IsRandom()
		if n.IsRandom && !n.IsObservation {
			tr.RegisterRandomChoice(id)
		}
		for _, tag := range n.Scopes {
			tr.RegisterBlock(tag.Scope, tag.Block, id)
		}
		if err := processMadeSP(tr, n, true, db); err != nil {
			return 0, err
		}
		return weight, nil
	}

	return 0, nil
}

func regenOutput(tr *trace.Trace, n *node.Node, restore bool, db *omegadb.DB) (float64, error) {
	psp, err := tr.PSPAt(n.ID)
	if err != nil {
		return 0, err
	}
	args := tr.ArgsAt(n.ID)
	aux := tr.SPAuxAt(n.ID)

	var val value.Value
	weight := 0.0

	switch {
	case restore:
		if entry, ok := db.Value(n.ID); ok {
			val = entry.Value
			n.IsObservation = entry.IsObservation
			n.ObservedValue = entry.ObservedValue
		}
	case n.IsObservation:
		val = n.ObservedValue
		w, err := psp.LogDensity(val, args, aux)
		if err != nil {
			return 0, err
		}
		weight += w
	default:
		if _, ok := psp.(sp.ESRRefPSP); ok {
			val = tr.GroundValueAt(n.ID)
			break
		}
		v, err := psp.Simulate(args, aux, tr.RNG())
		if err != nil {
			return 0, err
		}
		val = v
	}

	n.Value = val
	if err := tr.IncorporateAt(n.ID); err != nil {
		return 0, err
	}
	n.IsRandom = psp.IsRandom()
	if n.IsRandom && !n.IsObservation {
		tr.RegisterRandomChoice(n.ID)
	}
	for _, tag := range n.Scopes {
		tr.RegisterBlock(tag.Scope, tag.Block, n.ID)
	}

	if err := processMadeSP(tr, n, restore, db); err != nil {
		return 0, err
	}

	return weight, nil
}

// processMadeSP installs the SP a maker node's output just produced (spec
// §4.C), restoring its aux from the OmegaDB snapshot on a restore pass.
func processMadeSP(tr *trace.Trace, n *node.Node, restore bool, db *omegadb.DB) error {
	made, ok := n.Value.(sp.MadeSPValue)
	if !ok {
		return nil
	}
	if restore {
		if entry, ok := db.MadeSP(n.ID); ok {
			tr.SetMadeSPAt(n.ID, entry.SP, entry.Aux)
			return nil
		}
	}
	tr.SetMadeSPAt(n.ID, made.SP, made.SP.NewAux())
	return nil
}

// EvalFamily evaluates a fresh expression tree against env, building and
// wiring every node it needs (spec §4.D evalFamily). It is exported because
// the engine driver uses it directly for top-level assume/observe/predict,
// not only as a helper of evalRequests.
func EvalFamily(tr *trace.Trace, expr *node.Expr, env *value.Environment) (node.ID, float64, error) {
	core := expr.Unwrap()
	scopeTags := expr.Scopes()

	switch core.Kind {
	case node.ExprLiteral, node.ExprQuote:
		id := tr.CreateConstantNode(expr, env, core.Literal)
		return id, 0, nil

	case node.ExprVariable:
		ref, err := env.FindSymbol(core.Symbol)
		if err != nil {
			return 0, 0, err
		}
		source, ok := ref.(node.ID)
		if !ok {
			return 0, 0, fmt.Errorf("evalFamily: environment binding for %q is not a node.ID", core.Symbol)
		}
		id := tr.CreateLookupNode(expr, env, source)
		tr.SetValueAt(id, tr.ValueAt(source))
		return id, 0, nil

	case node.ExprApplication:
		weight := 0.0
		opID, w, err := EvalFamily(tr, core.Operator, env)
		if err != nil {
			return 0, 0, err
		}
		weight += w

		operandIDs := make([]node.ID, len(core.Operands))
		for i, oexpr := range core.Operands {
			oid, ow, err := EvalFamily(tr, oexpr, env)
			if err != nil {
				return 0, 0, err
			}
			weight += ow
			operandIDs[i] = oid
		}

		reqID, outID := tr.CreateApplicationNodes(expr, env, opID, operandIDs)
		for _, tag := range scopeTags {
			tr.RegisterBlock(tag.Scope, tag.Block, reqID)
			tr.RegisterBlock(tag.Scope, tag.Block, outID)
		}

		reqNode := tr.Node(reqID)
		rw, err := regenRequest(tr, reqNode, false, nil)
		if err != nil {
			return 0, 0, err
		}
		weight += rw

		outNode := tr.Node(outID)
		ow, err := regenOutput(tr, outNode, false, nil)
		if err != nil {
			return 0, 0, err
		}
		weight += ow

		return outID, weight, nil

	default:
		return 0, 0, fmt.Errorf("evalFamily: unsupported expression kind %s", core.Kind)
	}
}

// attachBorder re-evaluates an absorbing or AAA border node's log-density
// (or, for AAA, resamples its maker's parameter in closed form) against its
// possibly-new parent values, without disturbing its own value.
func attachBorder(tr *trace.Trace, id node.ID, class scaffold.Classification) (float64, error) {
	psp, err := tr.PSPAt(id)
	if err != nil {
		return 0, err
	}
	args := tr.ArgsAt(id)
	aux := tr.SPAuxAt(id)
	val := tr.ValueAt(id)

	if class == scaffold.AAA {
		if aaa, ok := psp.(sp.AAAPSP); ok && aaa.ChildrenCanAAA() {
			newVal, err := aaa.AAAKernel(args, aux, tr.RNG())
			if err != nil {
				return 0, err
			}
			tr.SetValueAt(id, newVal)
			if err := tr.IncorporateAt(id); err != nil {
				return 0, err
			}
			return 0, nil
		}
	}

	w, err := psp.LogDensity(val, args, aux)
	if err != nil {
		return 0, err
	}
	if err := tr.IncorporateAt(id); err != nil {
		return 0, err
	}
	return w, nil
}

// Constrain marks an Output node as an observation, forcing its value to
// val and unregistering it from the random-choice registry (spec §4.I
// "observe"). If the PSP applying at id is an ESRRefPSP, the constraint is
// redirected to the ESR parent it forwards, mirroring original_source
// regen.py's ESRRefOutputPSP special case in `constrain`.
func Constrain(tr *trace.Trace, id node.ID, val value.Value) error {
	if ref, ok := tr.ESRRefIndex(id); ok {
		n := tr.Node(id)
		if n != nil && ref < len(n.ESRParents) {
			return Constrain(tr, n.ESRParents[ref], val)
		}
	}
	n := tr.Node(id)
	if n == nil {
		return fmt.Errorf("constrain: no such node %s", id)
	}
	if err := tr.UnincorporateAt(id); err != nil {
		return err
	}
	if tr.IsRandomChoice(id) {
		tr.UnregisterRandomChoice(id)
	}
	n.Value = val
	n.IsObservation = true
	n.ObservedValue = val
	return tr.IncorporateAt(id)
}

// Unconstrain reverses Constrain, restoring id to a random choice if its PSP
// is random (spec §4.I "forget" on an observation).
func Unconstrain(tr *trace.Trace, id node.ID) error {
	n := tr.Node(id)
	if n == nil {
		return fmt.Errorf("unconstrain: no such node %s", id)
	}
	psp, err := tr.PSPAt(id)
	if err != nil {
		return err
	}
	if err := tr.UnincorporateAt(id); err != nil {
		return err
	}
	n.IsObservation = false
	n.ObservedValue = nil
	if err := tr.IncorporateAt(id); err != nil {
		return err
	}
	if psp.IsRandom() {
		tr.RegisterRandomChoice(id)
	}
	return nil
}

// logSumExp is used by the particle Gibbs kernel for normalizing a set of
// log weights; kept here since regen is already the
// lowest common package above trace that every kernel imports.
func logSumExp(logs []float64) float64 {
	if len(logs) == 0 {
		return math.Inf(-1)
	}
	max := logs[0]
	for _, l := range logs[1:] {
		if l > max {
			max = l
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	sum := 0.0
	for _, l := range logs {
		sum += math.Exp(l - max)
	}
	return max + math.Log(sum)
}

// LogSumExp is the exported form of logSumExp, used by internal/kernel.
func LogSumExp(logs []float64) float64 { return logSumExp(logs) }
