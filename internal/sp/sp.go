// Package sp defines the stochastic-procedure contract every primitive
// distribution or higher-order procedure in the trace must satisfy (spec
// §3 "SP (stochastic procedure)" and §4.C). Only the interface is specified
// here; concrete distributions (binomial, Dirichlet-multinomial, ...) are an
// external collaborator per spec §1 scope.
package sp

import (
	"math/rand"

	"github.com/probsys/trellis/internal/value"
)

// Aux is an opaque, PSP-owned sufficient-statistics object. Each maker node
// in the trace owns exactly one Aux instance for its made-SP, mutated only
// through Incorporate/Unincorporate.
type Aux interface {
	// Copy returns an independent snapshot, used by OmegaDB when a scaffold
	// detaches a maker so regen-restore can roll back to exactly this state.
	Copy() Aux
}

// PSP is "primitive stochastic procedure": one half of an SP (either its
// request-PSP or its output-PSP). The contract in spec §4.C.
type PSP interface {
	// Simulate draws a value from the conditional distribution given the
	// operand values and the current aux. Must be pure apart from rng.
	Simulate(args []value.Value, aux Aux, rng *rand.Rand) (value.Value, error)

	// LogDensity returns log p(val | args); math.Inf(-1) if impossible.
	// Must stay consistent with Simulate up to a constant (spec §4.C).
	LogDensity(val value.Value, args []value.Value, aux Aux) (float64, error)

	// Incorporate and Unincorporate update the sufficient statistics in aux;
	// they must be exact inverses of one another for any val/args pair that
	// was previously incorporated (spec invariant 2).
	Incorporate(val value.Value, args []value.Value, aux Aux) error
	Unincorporate(val value.Value, args []value.Value, aux Aux) error

	// IsRandom reports whether applying this PSP consumes randomness (and
	// therefore whether its application node belongs in the random-choice
	// registry, spec invariant 3).
	IsRandom() bool
}

// EnumerablePSP is implemented by a PSP whose support is finite; used by
// enumeration-based kernels and exhaustive round-trip tests (spec §4.C).
type EnumerablePSP interface {
	PSP
	EnumerateValues(args []value.Value, aux Aux) ([]value.Value, error)
}

// BoundedPSP is implemented by a PSP that can supply a finite upper bound on
// its log-density, required by rejection-sampling kernels (spec §4.C, §8
// "Rejection MH ... must fail early with a clear error" when absent).
type BoundedPSP interface {
	PSP
	LogDensityBound(args []value.Value, aux Aux) (float64, error)
}

// GradientPSP is implemented by a PSP that can provide the gradient of its
// log-density with respect to its value, the narrow AD hook used by
// variational (mean-field) kernels (spec §1 Non-goals: "AD beyond the narrow
// hook used by variational kernels").
type GradientPSP interface {
	PSP
	GradientOfLogDensity(val value.Value, args []value.Value, aux Aux) ([]float64, error)
}

// AAAPSP is implemented by a maker-PSP that declares childrenCanAAA: its
// made-SP can be resimulated in closed form given the sufficient statistics
// already incorporated by its children (spec §3 "AAA"). Grounded in
// original_source/backend/lite/dirichlet.py's CollapsedDirMultOutputPSP,
// whose getAAALKernel resamples the collapsed parameter exactly from the
// Dirichlet-multinomial posterior with zero MH weight contribution.
type AAAPSP interface {
	PSP
	ChildrenCanAAA() bool
	// AAAKernel resamples the made-SP's parameter directly from its exact
	// posterior given aux; the returned weight contribution is always 0 by
	// construction (spec §4.C, §4.G).
	AAAKernel(args []value.Value, aux Aux, rng *rand.Rand) (value.Value, error)
}

// VariationalPSP is implemented by a PSP whose made random choice has a
// mean-field variational family; the kernel in internal/kernel drives it by
// repeated calls to its VariationalKernel's Simulate/UpdateParameters (spec
// §4.H "Mean-field").
type VariationalPSP interface {
	PSP
	// NewVariationalKernel returns a fresh per-node kernel seeded from the
	// PSP's prior; its parameters are then optimized in place.
	NewVariationalKernel(args []value.Value) VariationalKernel
}

// VariationalKernel is the per-node optimizable proposal distribution used
// by the mean-field kernel.
type VariationalKernel interface {
	// Simulate draws a proposal value and the log weight qf this proposal
	// differs from the prior's (the proposal correction, spec §4.G).
	Simulate(rng *rand.Rand) (value.Value, float64, error)
	// GradientOfLogDensity is the narrow AD hook: d/dparams log q(val).
	GradientOfLogDensity(val value.Value) ([]float64, error)
	// UpdateParameters performs one stochastic-gradient-ascent step.
	UpdateParameters(gradient []float64, gain float64, stepSize float64)
}

// ESR is an Exposed Simulation Request: a sub-expression an SP's request-PSP
// wants evaluated and wired into the trace as a node (spec glossary "ESR").
// Exp and Env are opaque here (sp cannot import the node/value.Environment
// types without creating an import cycle, since node imports sp for Request);
// the trace/regen package that executes requests knows the concrete types to
// assert them back to (node.Expr and *value.Environment).
type ESR struct {
	Key   interface{} // identifies this ESR among its siblings
	Exp   interface{} // the sub-expression to evaluate (a *node.Expr)
	Env   interface{} // the environment to evaluate it in (a *value.Environment)
	Scope string      // "" if this ESR does not register a scope/block
	Block string
}

// LSR is a Latent Simulation Request: like an ESR, but its result is hidden
// in an SP-owned latent DB rather than becoming a trace node (spec glossary
// "LSR"). Per spec §9 open question (ii), the latent DB contract is
// intentionally opaque and SP-specific.
type LSR struct {
	Key interface{}
}

// Request is the value produced by evaluating a request-PSP: the list of
// ESRs and LSRs it wants evaluated (spec §3 "Request").
type Request struct {
	ESRs    []ESR
	Latents []LSR
}

// NullRequestPSP is the request-PSP of any SP that never issues
// sub-expression requests (the overwhelming majority of primitives).
var NullRequestPSP PSP = nullRequestPSP{}

type nullRequestPSP struct{}

func (nullRequestPSP) Simulate(args []value.Value, aux Aux, rng *rand.Rand) (value.Value, error) {
	return requestValue{}, nil
}
func (nullRequestPSP) LogDensity(val value.Value, args []value.Value, aux Aux) (float64, error) {
	return 0, nil
}
func (nullRequestPSP) Incorporate(value.Value, []value.Value, Aux) error   { return nil }
func (nullRequestPSP) Unincorporate(value.Value, []value.Value, Aux) error { return nil }
func (nullRequestPSP) IsRandom() bool                                      { return false }

// requestValue wraps a Request so it can flow through the same value.Value
// plumbing that carries the request node's "value" in spec §3 ("its value
// is a list of ESRs"); it is never visible to the probabilistic program.
type requestValue struct{ req Request }

func (requestValue) Kind() string        { return "request" }
func (requestValue) Equal(value.Value) bool { return false }
func (requestValue) String() string      { return "<request>" }

// WrapRequest lifts a Request into the value.Value interface so it can be
// stored as a request node's value.
func WrapRequest(r Request) value.Value { return requestValue{req: r} }

// UnwrapRequest extracts the Request previously stored by WrapRequest.
func UnwrapRequest(v value.Value) (Request, bool) {
	rv, ok := v.(requestValue)
	if !ok {
		return Request{}, false
	}
	return rv.req, true
}

// Maker is the factory half of an SP that itself makes other SPs (spec §4.C
// "A maker-PSP returns a VentureSPRecord"). It is only meaningful when
// OutputPSP.Simulate for this SP returns a value that is itself a made SP
// (a MadeSPValue, detected by internal/regen's processMadeSP).
type Maker interface {
	// NewAux constructs the initial (empty) aux for a freshly made SP.
	NewAux() Aux
}

// SP pairs a request-PSP and an output-PSP (spec §3). The zero value is not
// usable; construct with New.
type SP struct {
	Name       string
	RequestPSP PSP
	OutputPSP  PSP
	NewAux     func() Aux
}

// New builds an SP with the null request-PSP, the common case for ordinary
// (non-requesting) primitives.
func New(name string, output PSP, newAux func() Aux) *SP {
	return &SP{Name: name, RequestPSP: NullRequestPSP, OutputPSP: output, NewAux: newAux}
}

// NewRequesting builds an SP with a non-null request-PSP, for higher-order
// procedures (e.g. compound lambdas made by `make_csp`) that evaluate
// sub-expressions as part of their own application.
func NewRequesting(name string, request, output PSP, newAux func() Aux) *SP {
	return &SP{Name: name, RequestPSP: request, OutputPSP: output, NewAux: newAux}
}

// ESRRefPSP is implemented by an output-PSP that does not compute its own
// value but simply forwards the value already computed for one of its
// node's ESR parents (e.g. the output of a compound-procedure call).
// Trace.GroundValueAt, regen.Constrain and regen's output regeneration
// dereference through it, mirroring original_source/backend/lite/regen.py's
// groundValueAt and the ESRRefOutputPSP special case in `constrain`.
type ESRRefPSP interface {
	PSP
	// ESRRefIndex is the position in the node's ESRParents slice whose
	// value this PSP forwards.
	ESRRefIndex() int
}

// MadeSPValue wraps an SP that was itself produced as a runtime value by
// another SP's Simulate (e.g. a maker like make_dir_mult or make_csp).
// internal/regen's processMadeSP detects this and installs the made-SP
// on the trace at the maker node, per spec §4.C.
type MadeSPValue struct {
	SP *SP
}

func (MadeSPValue) Kind() string           { return "made-sp" }
func (MadeSPValue) Equal(value.Value) bool { return false }
func (m MadeSPValue) String() string       { return "<made-sp " + m.SP.Name + ">" }
