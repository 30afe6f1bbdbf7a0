// Package trace implements the trace graph (spec §3 "Trace", §4.D): the
// owner of the node arena, the SP auxiliary-statistics store, the
// random-choice registry, and the two-level scope/block index. It is built
// on an adapted copy of the teacher's generic pgraph.Graph, exactly as
// mgmt's engine/graph.Engine builds its resource execution graph on
// pgraph — here the graph tracks node dependency edges instead of resource
// convergence edges.
package trace

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	errwrap "github.com/pkg/errors"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
	"github.com/probsys/trellis/pgraph"
)

// edgeLabel is the minimal pgraph.Edge implementation used for every edge in
// the trace dependency graph; edges carry no payload beyond their kind, used
// only for diagnostics (Graphviz-style dumps are explicitly out of scope).
type edgeLabel string

func (e edgeLabel) String() string { return string(e) }

// Trace owns the node graph, SP auxiliary state, random-choice registry, and
// scope/block index (spec §3 "Trace", invariants 1-5).
type Trace struct {
	Logf  func(format string, v ...interface{})
	Debug bool

	rng *rand.Rand

	nextID node.ID
	nodes  map[node.ID]*node.Node
	graph  *pgraph.Graph // vertices are node.ID; edges point parent -> child

	randomChoices map[node.ID]struct{}

	// scopes is the two-level scope index: scope -> block -> node set
	// (spec §3 "a two-level scope index").
	scopes map[string]map[string]map[node.ID]struct{}

	makerSPs  map[node.ID]*sp.SP
	makerAux  map[node.ID]sp.Aux
	hasAEKern map[node.ID]struct{}
}

// New builds an empty trace seeded with rngSeed (spec §5 ordering: "Given
// the same seed and the same preceding program, two runs produce identical
// outputs").
func New(rngSeed int64) *Trace {
	g, _ := pgraph.NewGraph("trace")
	return &Trace{
		Logf:          func(string, ...interface{}) {},
		rng:           rand.New(rand.NewSource(rngSeed)),
		nodes:         make(map[node.ID]*node.Node),
		graph:         g,
		randomChoices: make(map[node.ID]struct{}),
		scopes:        make(map[string]map[string]map[node.ID]struct{}),
		makerSPs:      make(map[node.ID]*sp.SP),
		makerAux:      make(map[node.ID]sp.Aux),
		hasAEKern:     make(map[node.ID]struct{}),
	}
}

// Reseed replaces the trace's random generator (supplemented feature,
// SPEC_FULL.md "Named RNG with explicit reseed", grounded in
// original_source/backend/lite/utils.py + test/conformance/test_determinism.py).
func (t *Trace) Reseed(seed int64) { t.rng = rand.New(rand.NewSource(seed)) }

// RNG exposes the trace's single pseudo-random generator. Every kernel
// threads its randomness through this one generator (spec §5 ordering (c)).
func (t *Trace) RNG() *rand.Rand { return t.rng }

func (t *Trace) logf(format string, v ...interface{}) {
	if t.Debug {
		t.Logf(format, v...)
	}
}

// Node returns the node with the given id, or nil if it does not exist (or
// has been detached).
func (t *Trace) Node(id node.ID) *node.Node { return t.nodes[id] }

func (t *Trace) allocID() node.ID {
	t.nextID++
	return t.nextID
}

func (t *Trace) addNode(n *node.Node) {
	t.nodes[n.ID] = n
	t.graph.AddVertex(n.ID)
	for _, p := range n.Parents() {
		if parent := t.nodes[p]; parent != nil {
			t.graph.AddEdge(p, n.ID, edgeLabel("depends-on"))
		}
	}
}

// --- spec §4.D graph construction operations ---

// CreateConstantNode builds and registers a Constant node carrying v.
func (t *Trace) CreateConstantNode(expr *node.Expr, env *value.Environment, v value.Value) node.ID {
	id := t.allocID()
	n := node.NewConstant(id, expr, env, v)
	t.addNode(n)
	return id
}

// CreateLookupNode builds and registers a Lookup node mirroring source.
func (t *Trace) CreateLookupNode(expr *node.Expr, env *value.Environment, source node.ID) node.ID {
	id := t.allocID()
	n := node.NewLookup(id, expr, env, source)
	t.addNode(n)
	return id
}

// CreateApplicationNodes builds the request/output pair for an application
// and wires operator->request/output, operands->request/output,
// request->output (spec §4.D).
func (t *Trace) CreateApplicationNodes(expr *node.Expr, env *value.Environment, operator node.ID, operands []node.ID) (reqID, outID node.ID) {
	reqID = t.allocID()
	outID = t.allocID()

	req := node.NewRequest(reqID, expr, env, operator, operands, outID)
	out := node.NewOutput(outID, expr, env, operator, operands, reqID)

	t.nodes[reqID] = req
	t.nodes[outID] = out
	t.graph.AddVertex(reqID, outID)

	wire := func(parent, child node.ID) {
		if p := t.nodes[parent]; p != nil {
			t.graph.AddEdge(parent, child, edgeLabel("depends-on"))
		}
	}
	wire(operator, reqID)
	wire(operator, outID)
	for _, o := range operands {
		wire(o, reqID)
		wire(o, outID)
	}
	wire(reqID, outID)
	return reqID, outID
}

// RegisterESREdge wires parent -> requester's output node, as the last step
// of evalRequests resolving one ESR (spec §4.D; original_source regen.py
// evalRequests: "trace.addESREdge(esrParent,node.outputNode)").
func (t *Trace) RegisterESREdge(esrParent, requesterOutput node.ID) {
	out := t.nodes[requesterOutput]
	if out == nil {
		return
	}
	out.AddESRParent(esrParent)
	t.graph.AddEdge(esrParent, requesterOutput, edgeLabel("esr"))
}

// UnregisterESREdge reverses RegisterESREdge: used when a request node's
// fresh resimulation supersedes a previously-resolved ESR target with a new
// one, so the superseded target's edge does not linger and get mistaken for
// a second, still-live ESR parent (spec §4.F).
func (t *Trace) UnregisterESREdge(esrParent, requesterOutput node.ID) {
	out := t.nodes[requesterOutput]
	if out == nil {
		return
	}
	out.RemoveESRParent(esrParent)
	t.graph.DeleteEdge(esrParent, requesterOutput)
}

// RemoveNode deletes a node from the graph and arena entirely (used when
// detach unwinds brush, spec §3 lifecycle: "destroyed when the last family
// holding it is detached").
func (t *Trace) RemoveNode(id node.ID) {
	delete(t.nodes, id)
	t.graph.DeleteVertex(id)
	delete(t.randomChoices, id)
	delete(t.makerSPs, id)
	delete(t.makerAux, id)
	delete(t.hasAEKern, id)
}

// Graph exposes the underlying dependency graph for scaffold construction.
func (t *Trace) Graph() *pgraph.Graph { return t.graph }

// ChildrenOf returns the nodes that directly depend on id (the reverse of
// Parents), read straight off the pgraph dependency graph that addNode and
// RegisterESREdge keep current. Scaffold construction and any border-weight
// walk must go through this rather than a node-local edge cache, since
// node.Node records only its parents, not its children.
func (t *Trace) ChildrenOf(id node.ID) []node.ID {
	vs := t.graph.OutgoingGraphVertices(id)
	out := make([]node.ID, 0, len(vs))
	for _, v := range vs {
		if cid, ok := v.(node.ID); ok {
			out = append(out, cid)
		}
	}
	return out
}

// --- value / aux access ---

// ValueAt returns the current value of a node.
func (t *Trace) ValueAt(id node.ID) value.Value {
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	if n.Kind == node.Lookup {
		return t.ValueAt(n.Source)
	}
	return n.Value
}

// SetValueAt mutates a node's value in place (spec §3 lifecycle: "Values are
// mutated only through setValueAt").
func (t *Trace) SetValueAt(id node.ID, v value.Value) {
	if n := t.nodes[id]; n != nil {
		n.Value = v
	}
}

// GroundValueAt dereferences through an ESRRef output PSP (if any) to the
// value actually backing this node, mirroring original_source regen.py's
// groundValueAt used by `attach`.
func (t *Trace) GroundValueAt(id node.ID) value.Value {
	if ref, ok := t.ESRRefIndex(id); ok {
		n := t.nodes[id]
		if n != nil && ref < len(n.ESRParents) {
			return t.GroundValueAt(n.ESRParents[ref])
		}
	}
	return t.ValueAt(id)
}

// ESRRefIndex reports whether the output-PSP applied at id is an ESRRefPSP,
// and if so which ESR parent it forwards.
func (t *Trace) ESRRefIndex(id node.ID) (int, bool) {
	psp, err := t.PSPAt(id)
	if err != nil {
		return 0, false
	}
	ref, ok := psp.(sp.ESRRefPSP)
	if !ok {
		return 0, false
	}
	return ref.ESRRefIndex(), true
}

// ArgsAt collects the operand values of an application node.
func (t *Trace) ArgsAt(id node.ID) []value.Value {
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	args := make([]value.Value, len(n.Operands))
	for i, o := range n.Operands {
		args[i] = t.ValueAt(o)
	}
	return args
}

// SPAt resolves the SP whose output-PSP applies at an Output or Request
// node, by dereferencing its operator node's value as an SPRef.
func (t *Trace) SPAt(id node.ID) (*sp.SP, error) {
	n := t.nodes[id]
	if n == nil {
		return nil, fmt.Errorf("no such node %s", id)
	}
	opVal := t.ValueAt(n.Operator)
	ref, err := value.AsSPRef(opVal)
	if err != nil {
		return nil, errwrap.Wrapf(err, "SPAt(%s): operator is not an SP reference", id)
	}
	makerID := node.ID(ref.MakerNodeID)
	s, ok := t.makerSPs[makerID]
	if !ok {
		return nil, fmt.Errorf("SPAt(%s): no SP installed at maker node %s", id, makerID)
	}
	return s, nil
}

// PSPAt returns the specific PSP (request-PSP for a Request node, output-PSP
// for an Output node) that applies at id.
func (t *Trace) PSPAt(id node.ID) (sp.PSP, error) {
	n := t.nodes[id]
	if n == nil {
		return nil, fmt.Errorf("no such node %s", id)
	}
	s, err := t.SPAt(id)
	if err != nil {
		return nil, err
	}
	if n.Kind == node.Request {
		return s.RequestPSP, nil
	}
	return s.OutputPSP, nil
}

// SPAuxAt returns the sufficient-statistics aux for the SP applying at id
// (the aux lives on the maker node, shared by every application of that
// made-SP).
func (t *Trace) SPAuxAt(id node.ID) sp.Aux {
	n := t.nodes[id]
	if n == nil {
		return nil
	}
	ref, err := value.AsSPRef(t.ValueAt(n.Operator))
	if err != nil {
		return nil
	}
	return t.makerAux[node.ID(ref.MakerNodeID)]
}

// LogDensityAt returns the log-density of val under the output-PSP applying
// at id, given its current operand values.
func (t *Trace) LogDensityAt(id node.ID, val value.Value) (float64, error) {
	psp, err := t.PSPAt(id)
	if err != nil {
		return 0, err
	}
	return psp.LogDensity(val, t.ArgsAt(id), t.SPAuxAt(id))
}

// IncorporateAt incorporates the node's current value into its SP's aux.
func (t *Trace) IncorporateAt(id node.ID) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("no such node %s", id)
	}
	psp, err := t.PSPAt(id)
	if err != nil {
		return err
	}
	val := n.Value
	if n.Kind == node.Request {
		val = sp.WrapRequest(*n.Req)
	}
	return psp.Incorporate(val, t.ArgsAt(id), t.SPAuxAt(id))
}

// UnincorporateAt unincorporates the node's current value from its SP's aux.
func (t *Trace) UnincorporateAt(id node.ID) error {
	n := t.nodes[id]
	if n == nil {
		return fmt.Errorf("no such node %s", id)
	}
	psp, err := t.PSPAt(id)
	if err != nil {
		return err
	}
	val := n.Value
	if n.Kind == node.Request {
		val = sp.WrapRequest(*n.Req)
	}
	return psp.Unincorporate(val, t.ArgsAt(id), t.SPAuxAt(id))
}

// --- maker bookkeeping ---

// SetMadeSPAt installs the SP made by evaluating the maker node id, and
// rewrites its value to an SPRef pointing back at itself (spec §4.C
// "evaluating it sets the node's made-SP, replaces its value by an SPRef").
func (t *Trace) SetMadeSPAt(id node.ID, made *sp.SP, aux sp.Aux) {
	t.makerSPs[id] = made
	t.makerAux[id] = aux
	t.SetValueAt(id, value.SPRef{MakerNodeID: value.SPRefNodeID(id)})
}

// MadeSPAt returns the SP made at maker node id, if any.
func (t *Trace) MadeSPAt(id node.ID) (*sp.SP, bool) {
	s, ok := t.makerSPs[id]
	return s, ok
}

// MadeSPAuxAt returns the aux for the SP made at maker node id.
func (t *Trace) MadeSPAuxAt(id node.ID) sp.Aux { return t.makerAux[id] }

// SetMadeSPAuxAt replaces the aux for the SP made at maker node id (used by
// regen-restore to reinstall an OmegaDB snapshot).
func (t *Trace) SetMadeSPAuxAt(id node.ID, aux sp.Aux) { t.makerAux[id] = aux }

// ClearMadeSPAt removes a maker's installed SP (used when a maker node
// itself is detached as brush).
func (t *Trace) ClearMadeSPAt(id node.ID) {
	delete(t.makerSPs, id)
	delete(t.makerAux, id)
}

// --- random-choice registry (spec invariant 3) ---

// RegisterRandomChoice adds id to the random-choice registry.
func (t *Trace) RegisterRandomChoice(id node.ID) { t.randomChoices[id] = struct{}{} }

// UnregisterRandomChoice removes id from the random-choice registry.
func (t *Trace) UnregisterRandomChoice(id node.ID) { delete(t.randomChoices, id) }

// IsRandomChoice reports registry membership.
func (t *Trace) IsRandomChoice(id node.ID) bool {
	_, ok := t.randomChoices[id]
	return ok
}

// RandomChoices returns every node currently in the registry, in a
// deterministic order (sorted by id) so that callers needing a stable
// enumeration (tests, SamplePrincipalNode's fallback) never depend on map
// iteration order.
func (t *Trace) RandomChoices() []node.ID {
	out := make([]node.ID, 0, len(t.randomChoices))
	for id := range t.randomChoices {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SamplePrincipalNode samples uniformly from the random-choice registry
// (spec §4.D).
func (t *Trace) SamplePrincipalNode() (node.ID, error) {
	choices := t.RandomChoices()
	if len(choices) == 0 {
		return 0, fmt.Errorf("no random choices to sample from")
	}
	return choices[t.rng.Intn(len(choices))], nil
}

// LogDensityOfPrincipalNode is the log-density of the principal-node
// selection step: log(1/N) where N is the registry size at the time of
// selection (spec §4.D).
func (t *Trace) LogDensityOfPrincipalNode() float64 {
	n := len(t.randomChoices)
	if n == 0 {
		return 0
	}
	return -logf(float64(n))
}

func logf(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Log(x)
}

// --- scope / block index (spec §3, §4.D) ---

// RegisterBlock adds node id to (scope, block). Called by evalFamily when an
// application is tagged with scope_include, and by evalRequests when an ESR
// carries a scope/block of its own (original_source regen.py evalRequests:
// "if esr.block: trace.registerBlock(esr.block,esr.subblock,esrParent)").
func (t *Trace) RegisterBlock(scope, block string, id node.ID) {
	if scope == "" {
		return
	}
	if t.scopes[scope] == nil {
		t.scopes[scope] = make(map[string]map[node.ID]struct{})
	}
	if t.scopes[scope][block] == nil {
		t.scopes[scope][block] = make(map[node.ID]struct{})
	}
	t.scopes[scope][block][id] = struct{}{}
}

// UnregisterBlock removes node id from (scope, block), called when a node
// tagged with a scope is detached as brush.
func (t *Trace) UnregisterBlock(scope, block string, id node.ID) {
	if t.scopes[scope] == nil || t.scopes[scope][block] == nil {
		return
	}
	delete(t.scopes[scope][block], id)
}

// BlocksInScope lists the block names present in scope, sorted for
// determinism.
func (t *Trace) BlocksInScope(scope string) []string {
	blocks := t.scopes[scope]
	out := make([]string, 0, len(blocks))
	for b := range blocks {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// NodesInBlock returns the nodes registered under (scope, block).
func (t *Trace) NodesInBlock(scope, block string) []node.ID {
	nodes := t.scopes[scope][block]
	out := make([]node.ID, 0, len(nodes))
	for n := range nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SampleBlock samples a block name uniformly from those registered in scope
// (spec §4.D).
func (t *Trace) SampleBlock(scope string) (string, error) {
	blocks := t.BlocksInScope(scope)
	if len(blocks) == 0 {
		return "", fmt.Errorf("no blocks registered in scope %q", scope)
	}
	return blocks[t.rng.Intn(len(blocks))], nil
}

// LogDensityOfBlock is the log-density of the block-selection step.
func (t *Trace) LogDensityOfBlock(scope string) float64 {
	n := len(t.scopes[scope])
	if n == 0 {
		return 0
	}
	return -logf(float64(n))
}
