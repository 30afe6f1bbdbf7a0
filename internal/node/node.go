package node

import (
	"fmt"

	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
)

// ID is a stable, arena-index identity for a node, per design note §9:
// "Use arena-allocated nodes referenced by stable indices; every edge is an
// index pair; no shared-ownership cycles arise." IDs are never reused within
// a trace's lifetime even if the node they named is later detached, so a
// dangling reference is always detectable rather than silently aliasing a
// different node.
type ID uint64

// String lets an ID satisfy pgraph.Vertex directly: the trace's dependency
// graph uses node IDs as its vertices.
func (id ID) String() string { return fmt.Sprintf("n%d", uint64(id)) }

// Kind tags the four node variants of spec §3 "Node".
type Kind int

const (
	// Constant carries a literal or quoted value and has no parents.
	Constant Kind = iota
	// Lookup mirrors the value of a source node.
	Lookup
	// Request is the output of a request-PSP application: a list of ESRs.
	Request
	// Output is the output of an output-PSP application.
	Output
)

func (k Kind) String() string {
	switch k {
	case Constant:
		return "constant"
	case Lookup:
		return "lookup"
	case Request:
		return "request"
	case Output:
		return "output"
	default:
		return "unknown"
	}
}

// Node is a single vertex of the trace graph (spec §3 "Node", §4.B).
//
// Not every field is meaningful for every Kind; see the per-kind comments.
type Node struct {
	ID   ID
	Kind Kind

	// Expr/Env are the expression and environment this node's family was
	// evaluated from. Needed to re-derive operand values and to rebuild the
	// node during regen after a detach.
	Expr *Expr
	Env  *value.Environment

	// Value holds the node's current value for Constant, Lookup, and Output
	// nodes. It is nil for an un-valued (detached / torus) node and for
	// Request nodes (whose payload lives in Req instead).
	Value value.Value

	// Req holds the request-PSP's output for a Request node.
	Req *sp.Request

	// Lookup: Source is the node this one mirrors.
	Source ID

	// Output: Operator/Operands are the application's argument nodes;
	// ReqNode is the sibling request node produced alongside this output
	// node; ESRParents are the parent nodes supplied by that request.
	Operator   ID
	Operands   []ID
	ReqNode    ID
	ESRParents []ID

	// Request: OutputNode is the sibling output node of this request.
	OutputNode ID

	// Scopes are the scope/block tags present on this node's source
	// expression (spec §3 "the scope tags present on its source
	// expression"); populated for Request and Output nodes alike, since
	// evalFamily tags both siblings of an application (design note, regen.py
	// evalFamily: "requestNode.scopes = expScopes(exp); outputNode.scopes =
	// expScopes(exp)").
	Scopes []ScopeTag

	// IsObservation/ObservedValue record a `constrain` call on an Output
	// node (spec §4.I "observe").
	IsObservation bool
	ObservedValue value.Value

	// IsRandom records, for an Output node, whether the PSP applied there
	// is random — set once the node has been valued by applyPSP, since it
	// depends on which PSP the operator resolved to.
	IsRandom bool
}

// NewConstant builds a Constant node carrying v.
func NewConstant(id ID, expr *Expr, env *value.Environment, v value.Value) *Node {
	return &Node{ID: id, Kind: Constant, Expr: expr, Env: env, Value: v}
}

// NewLookup builds a Lookup node mirroring source.
func NewLookup(id ID, expr *Expr, env *value.Environment, source ID) *Node {
	return &Node{ID: id, Kind: Lookup, Expr: expr, Env: env, Source: source}
}

// NewRequest builds an unvalued Request node for the given application.
func NewRequest(id ID, expr *Expr, env *value.Environment, operator ID, operands []ID, outputNode ID) *Node {
	return &Node{
		ID: id, Kind: Request, Expr: expr, Env: env,
		Operator: operator, Operands: append([]ID(nil), operands...),
		OutputNode: outputNode, Scopes: expr.Scopes(),
	}
}

// NewOutput builds an unvalued Output node for the given application.
func NewOutput(id ID, expr *Expr, env *value.Environment, operator ID, operands []ID, reqNode ID) *Node {
	return &Node{
		ID: id, Kind: Output, Expr: expr, Env: env,
		Operator: operator, Operands: append([]ID(nil), operands...),
		ReqNode: reqNode, Scopes: expr.Scopes(),
	}
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Kind, n.ID)
}

// Parents returns every node this one directly depends on (spec §4.B: "list
// parents (which depends on variant)").
func (n *Node) Parents() []ID {
	switch n.Kind {
	case Constant:
		return nil
	case Lookup:
		return []ID{n.Source}
	case Request:
		parents := []ID{n.Operator}
		parents = append(parents, n.Operands...)
		return parents
	case Output:
		parents := []ID{n.Operator}
		parents = append(parents, n.Operands...)
		parents = append(parents, n.ReqNode)
		parents = append(parents, n.ESRParents...)
		return parents
	default:
		return nil
	}
}

// AddESRParent records a new ESR parent edge on an Output node (spec §4.D
// "createApplicationNodes" wiring, extended post-hoc as requests resolve).
func (n *Node) AddESRParent(parent ID) {
	n.ESRParents = append(n.ESRParents, parent)
}

// RemoveESRParent reverses AddESRParent, used when a request node's fresh
// resimulation supersedes a previously-resolved ESR target with a new one.
func (n *Node) RemoveESRParent(parent ID) {
	for i, p := range n.ESRParents {
		if p == parent {
			n.ESRParents = append(n.ESRParents[:i], n.ESRParents[i+1:]...)
			return
		}
	}
}
