// Package scaffold implements scaffold construction (spec §4.E): given a set
// of principal nodes, classify every node reachable from them into the
// domain of random generation (resampling), the absorbing/AAA border, and
// brush, and compute each border node's regenCount. The DRG walk stops at
// the first random-choice node it meets past the principals (that node
// anchors the border instead of being swallowed into resampling), built
// directly on the adapted pgraph.Graph's OutgoingGraphVertices (through
// trace.ChildrenOf) and TopologicalSort, exactly as mgmt's engine/graph.Engine walks its
// resource graph with the same primitives to decide what must be
// (re)converged.
package scaffold

import (
	"sort"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
)

// Classification tags a node's role within a scaffold (spec §4.E).
type Classification int

const (
	// Resampling nodes are torn down (detached) and freshly resimulated
	// by every regen pass over this scaffold: the DRG.
	Resampling Classification = iota
	// Absorbing border nodes keep their value but must have their
	// log-density re-evaluated against possibly-changed parent values.
	Absorbing
	// AAA border nodes are maker nodes whose made-SP can be resampled in
	// closed form from the sufficient statistics of their (resampling)
	// children, rather than merely absorbed (spec §3 "AAA").
	AAA
	// Brush nodes exist only because some resampling Request node
	// requested them; they are torn down unconditionally and only
	// recreated if the post-proposal request asks for them again.
	Brush
)

func (c Classification) String() string {
	switch c {
	case Resampling:
		return "resampling"
	case Absorbing:
		return "absorbing"
	case AAA:
		return "aaa"
	case Brush:
		return "brush"
	default:
		return "unknown"
	}
}

// Scaffold is the result of scaffold construction: every node's
// classification plus, for border nodes, its regenCount (spec §4.E).
type Scaffold struct {
	Principals []node.ID
	Class      map[node.ID]Classification
	// RegenCount is the number of distinct resampling parents feeding a
	// border node (its in-degree from the DRG); regen applies the absorb/AAA
	// step once per regenAndAttach pass to every border node whose count is
	// nonzero (spec §4.E).
	RegenCount map[node.ID]int
	// order is the DRG in an order consistent with forward dependency,
	// used by regen to drive the Constant of resimulation.
	order []node.ID
}

// DRG returns the resampling-set nodes in dependency order (parents before
// children), the order regen.RegenAndAttach must resimulate them in.
func (s *Scaffold) DRG() []node.ID { return append([]node.ID(nil), s.order...) }

// IsBrush reports whether id was classified as brush.
func (s *Scaffold) IsBrush(id node.ID) bool { return s.Class[id] == Brush }

// Build constructs a scaffold from a set of principal nodes (spec §4.E).
// trace supplies the dependency graph, SP classification (maker/AAA), and
// ESR-parent edges needed to trace brush.
func Build(tr *trace.Trace, principals []node.ID) *Scaffold {
	g := tr.Graph()

	s := &Scaffold{
		Principals: append([]node.ID(nil), principals...),
		Class:      make(map[node.ID]Classification),
		RegenCount: make(map[node.ID]int),
	}

	// DRG: starting from the principals, walk forward and add every
	// descendant reached only through non-absorbing parents; stop at the
	// first random-choice node encountered past a principal (it anchors
	// the border instead of being pulled into resampling) (spec §4.E
	// "Construction algorithm").
	drg := make(map[node.ID]struct{})
	frontier := make([]node.ID, 0, len(principals))
	for _, p := range principals {
		if _, already := drg[p]; already {
			continue
		}
		drg[p] = struct{}{}
		frontier = append(frontier, p)
	}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, c := range tr.ChildrenOf(id) {
			if _, already := drg[c]; already {
				continue
			}
			if isAbsorbingCandidate(tr, c) {
				continue // border node; classified below, recursion stops here
			}
			drg[c] = struct{}{}
			frontier = append(frontier, c)
		}
	}

	// Brush: Request nodes in the DRG pull their ESR-descendants (nodes
	// reachable only via "esr" edges from that request's output) into
	// Brush, since those subexpressions will be re-requested fresh by
	// every resimulation of the request (original_source regen.py
	// detachAndExtract: brush is "everything downstream of a changed
	// request that only exists because of that request").
	brush := make(map[node.ID]struct{})
	for id := range drg {
		n := tr.Node(id)
		if n == nil || n.Kind != node.Request {
			continue
		}
		out := tr.Node(n.OutputNode)
		if out == nil {
			continue
		}
		for _, esrParent := range out.ESRParents {
			if _, already := drg[esrParent]; already {
				continue
			}
			markBrush(tr, esrParent, brush)
		}
	}

	for id := range drg {
		s.Class[id] = Resampling
	}
	for id := range brush {
		s.Class[id] = Brush
	}

	// Border: nodes outside the DRG with at least one parent inside it.
	borderCount := make(map[node.ID]int)
	for id := range drg {
		for _, c := range tr.ChildrenOf(id) {
			if _, inDRG := drg[c]; inDRG {
				continue
			}
			if _, inBrush := brush[c]; inBrush {
				continue
			}
			borderCount[c]++
		}
	}
	for id, count := range borderCount {
		s.RegenCount[id] = count
		if isAAACapable(tr, id) {
			s.Class[id] = AAA
		} else {
			s.Class[id] = Absorbing
		}
	}

	// order: topologically sort the whole graph, then keep only DRG
	// members, preserving their relative (parent-before-child) order.
	sorted, _ := g.TopologicalSort()
	for _, v := range sorted {
		if id, ok := v.(node.ID); ok {
			if _, inDRG := drg[id]; inDRG {
				s.order = append(s.order, id)
			}
		}
	}
	if len(s.order) == 0 {
		// TopologicalSort found a cycle (should not happen in a valid
		// trace); fall back to a deterministic sorted order so regen
		// still makes forward progress instead of silently no-opping.
		ids := make([]node.ID, 0, len(drg))
		for id := range drg {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		s.order = ids
	}

	return s
}

func markBrush(tr *trace.Trace, id node.ID, brush map[node.ID]struct{}) {
	if _, ok := brush[id]; ok {
		return
	}
	brush[id] = struct{}{}
	for _, c := range tr.ChildrenOf(id) {
		markBrush(tr, c, brush)
	}
}

// isAbsorbingCandidate reports whether id, discovered as a child of a DRG
// node, should anchor the border instead of being swallowed into
// resampling: an Output node whose applied PSP actually consumes
// randomness. Deterministic Output nodes and Lookup/Request/Constant nodes
// are not candidates — their values are pure functions of their parents and
// must be recomputed (propagated) rather than merely re-weighed.
func isAbsorbingCandidate(tr *trace.Trace, id node.ID) bool {
	n := tr.Node(id)
	if n == nil || n.Kind != node.Output {
		return false
	}
	psp, err := tr.PSPAt(id)
	if err != nil {
		return false
	}
	return psp.IsRandom()
}

func isAAACapable(tr *trace.Trace, id node.ID) bool {
	n := tr.Node(id)
	if n == nil || n.Kind != node.Output {
		return false
	}
	psp, err := tr.PSPAt(id)
	if err != nil {
		return false
	}
	aaa, ok := psp.(sp.AAAPSP)
	return ok && aaa.ChildrenCanAAA()
}

// sortedNodeIDs is a small helper kept for deterministic iteration in tests.
func sortedNodeIDs(m map[node.ID]struct{}) []node.ID {
	out := make([]node.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
