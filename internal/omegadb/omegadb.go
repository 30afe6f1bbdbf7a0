// Package omegadb implements the detached-value snapshot store (spec §4.F
// "OmegaDB"): the map from a detached node's identity back to the value,
// request, and SP-aux state it carried at the moment of detachment, so that
// a later regenAndAttach along the same scaffold can either restore it
// exactly (for a resampling node whose proposal is rejected, or for an
// absorbing/border node that must not change) or discard it (for a brush
// node that is being resimulated fresh).
package omegadb

import (
	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
)

// ValueEntry is the detached state of a single Constant/Lookup/Output node.
type ValueEntry struct {
	Value         value.Value
	IsObservation bool
	ObservedValue value.Value
}

// RequestEntry is the detached state of a Request node.
type RequestEntry struct {
	Req sp.Request
}

// SPEntry is the detached state of a maker node: the made SP itself (the
// SP pointer is retained verbatim) plus a snapshot of its aux.
type SPEntry struct {
	SP  *sp.SP
	Aux sp.Aux
}

// ESRParentKey identifies one ESR's resolved family for restore-time lookup
// (spec §4.F "lookup by ... (SP, ESR key)"): the requesting node plus the
// ESR's own key. A made-SP's aux is installed once, at its maker node, and
// shared by every call site that applies it, so two different applications
// of the same compound-procedure value share one SP pointer; since
// primitives.compoundRequestPSP assigns every ESR the same key (spec §6
// "one ESR per call"), keying on the SP pointer alone would collide across
// call sites sharing a procedure value. The requesting node's own id is the
// disambiguator actually available here (Simulate has no node-identity
// parameter to derive a richer key from).
type ESRParentKey struct {
	ReqNode node.ID
	Key     interface{}
}

// DB is a single detach/regen round's snapshot store (spec §4.F). A fresh DB
// is created per regen cycle; it is never shared across cycles.
type DB struct {
	values     map[node.ID]ValueEntry
	requests   map[node.ID]RequestEntry
	makerSPs   map[node.ID]SPEntry
	esrParents map[ESRParentKey]node.ID
}

// New returns an empty OmegaDB.
func New() *DB {
	return &DB{
		values:     make(map[node.ID]ValueEntry),
		requests:   make(map[node.ID]RequestEntry),
		makerSPs:   make(map[node.ID]SPEntry),
		esrParents: make(map[ESRParentKey]node.ID),
	}
}

// ExtractValue records a node's value-bearing state at the moment it is
// detached.
func (db *DB) ExtractValue(id node.ID, v value.Value, isObservation bool, observed value.Value) {
	db.values[id] = ValueEntry{Value: v, IsObservation: isObservation, ObservedValue: observed}
}

// HasValue reports whether id has a recorded value snapshot.
func (db *DB) HasValue(id node.ID) bool {
	_, ok := db.values[id]
	return ok
}

// Value returns the recorded value snapshot for id.
func (db *DB) Value(id node.ID) (ValueEntry, bool) {
	v, ok := db.values[id]
	return v, ok
}

// ExtractRequest records a Request node's state at the moment it is
// detached, so regen can tell which ESRs were already resolved (and must be
// either restored or re-evaluated identically) without re-running the
// request-PSP.
func (db *DB) ExtractRequest(id node.ID, req sp.Request) {
	db.requests[id] = RequestEntry{Req: req}
}

// Request returns the recorded request snapshot for id.
func (db *DB) Request(id node.ID) (RequestEntry, bool) {
	r, ok := db.requests[id]
	return r, ok
}

// ExtractMadeSP records a maker node's made-SP and aux at the moment it is
// detached, whether as a resampling node or as brush.
func (db *DB) ExtractMadeSP(id node.ID, s *sp.SP, aux sp.Aux) {
	db.makerSPs[id] = SPEntry{SP: s, Aux: aux.Copy()}
}

// MadeSP returns the recorded maker snapshot for id.
func (db *DB) MadeSP(id node.ID) (SPEntry, bool) {
	s, ok := db.makerSPs[id]
	return s, ok
}

// ExtractESRParent records which node a request node's ESR resolved to at
// the moment the request node is detached, so a later restore can look it
// up by (requesting node, ESR key) instead of resimulating the ESR
// (spec §4.F; original_source regen.py evalRequests' restore branch:
// "omegaDB.getESRParent(trace.spAt(node), esr.id)").
func (db *DB) ExtractESRParent(reqNode node.ID, key interface{}, parent node.ID) {
	db.esrParents[ESRParentKey{ReqNode: reqNode, Key: key}] = parent
}

// ESRParent returns the recorded ESR-parent node for (reqNode, key).
func (db *DB) ESRParent(reqNode node.ID, key interface{}) (node.ID, bool) {
	id, ok := db.esrParents[ESRParentKey{ReqNode: reqNode, Key: key}]
	return id, ok
}
