package primitives

import (
	"fmt"
	"math/rand"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/value"
)

// ifPSP is a strict ternary: both branches must already be evaluated values
// by the time it is applied. True Venture `if` only evaluates the taken
// branch, which needs a lazy core form; since a full lazy evaluator is out
// of scope (spec §1 Non-goals region, "no CPS/lazy evaluation required"),
// this is the eager simplification, documented as a scope decision.
type ifPSP struct{}

func (ifPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	if len(args) != 3 {
		return nil, errArity("if", 3, len(args))
	}
	cond, err := value.AsBool(args[0])
	if err != nil {
		return nil, err
	}
	if cond {
		return args[1], nil
	}
	return args[2], nil
}

func (ifPSP) LogDensity(value.Value, []value.Value, sp.Aux) (float64, error) { return 0, nil }
func (ifPSP) Incorporate(value.Value, []value.Value, sp.Aux) error           { return nil }
func (ifPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error         { return nil }
func (ifPSP) IsRandom() bool                                                 { return false }

// If is the strict ternary SP described above.
var If = sp.New("if", ifPSP{}, NewNoAux)

// --- make_csp (compound lambda) ---

// compoundRequestPSP is the request-PSP of a made compound procedure: on
// each call it substitutes the call's argument values directly into the
// closure body (a call-by-value simplification of Venture's
// environment-extension-by-node-reference; spec §6 "lambda via an SP"
// requires only that lambda application be expressible as an SP, not that
// it share the reference-node mechanics of primitive application).
type compoundRequestPSP struct {
	params []string
	body   *node.Expr
	env    *value.Environment
}

func (c compoundRequestPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	if len(args) != len(c.params) {
		return nil, errArity("compound procedure", len(c.params), len(args))
	}
	bound := substitute(c.body, c.params, args)
	return sp.WrapRequest(sp.Request{
		ESRs: []sp.ESR{{Key: 0, Exp: bound, Env: c.env}},
	}), nil
}

func (compoundRequestPSP) LogDensity(value.Value, []value.Value, sp.Aux) (float64, error) { return 0, nil }
func (compoundRequestPSP) Incorporate(value.Value, []value.Value, sp.Aux) error           { return nil }
func (compoundRequestPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error         { return nil }
func (compoundRequestPSP) IsRandom() bool                                                 { return false }

// substitute returns a copy of expr with every ExprVariable reference to one
// of params replaced by a Lit of the corresponding argument value.
func substitute(expr *node.Expr, params []string, args []value.Value) *node.Expr {
	if expr == nil {
		return nil
	}
	switch expr.Kind {
	case node.ExprVariable:
		for i, p := range params {
			if p == expr.Symbol {
				return node.Lit(args[i])
			}
		}
		return expr
	case node.ExprLiteral, node.ExprQuote:
		return expr
	case node.ExprApplication:
		operands := make([]*node.Expr, len(expr.Operands))
		for i, o := range expr.Operands {
			operands[i] = substitute(o, params, args)
		}
		return node.App(substitute(expr.Operator, params, args), operands...)
	case node.ExprScopeInclude:
		return node.ScopeInclude(expr.Scope, expr.Block, substitute(expr.Inner, params, args))
	default:
		return expr
	}
}

// esrRefOutputPSP forwards the value of the ESR at a fixed index (spec
// glossary ESRRefPSP use, grounded in original_source
// regen.py's ESRRefOutputPSP). The only requesting SP built in this package,
// the compound procedure made by make_csp, uses index 0 since it issues
// exactly one ESR per call.
type esrRefOutputPSP struct{ index int }

func (r esrRefOutputPSP) ESRRefIndex() int { return r.index }

func (esrRefOutputPSP) Simulate([]value.Value, sp.Aux, *rand.Rand) (value.Value, error) {
	return nil, fmt.Errorf("esrRefOutputPSP.Simulate should never be called directly; internal/regen dereferences through ESRRefIndex")
}
func (esrRefOutputPSP) LogDensity(value.Value, []value.Value, sp.Aux) (float64, error) { return 0, nil }
func (esrRefOutputPSP) Incorporate(value.Value, []value.Value, sp.Aux) error           { return nil }
func (esrRefOutputPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error         { return nil }
func (esrRefOutputPSP) IsRandom() bool                                                 { return false }

var _ sp.ESRRefPSP = esrRefOutputPSP{}

type makeCspPSP struct{}

func (makeCspPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	if len(args) != 2 {
		return nil, errArity("make_csp", 2, len(args))
	}
	paramsVal, err := value.ToSlice(args[0])
	if err != nil {
		return nil, fmt.Errorf("make_csp: parameter list must be a proper list: %w", err)
	}
	params := make([]string, len(paramsVal))
	for i, pv := range paramsVal {
		sym, err := asSymbol(pv)
		if err != nil {
			return nil, err
		}
		params[i] = sym
	}
	quoted, ok := args[1].(value.QuotedExpr)
	if !ok {
		return nil, fmt.Errorf("make_csp: body argument must be a quoted expression")
	}
	body, ok := quoted.Expr.(*node.Expr)
	if !ok {
		return nil, fmt.Errorf("make_csp: quoted body is not an expression")
	}
	closureEnv := GlobalEnvironment()
	made := sp.NewRequesting("compound-procedure",
		compoundRequestPSP{params: params, body: body, env: closureEnv},
		esrRefOutputPSP{index: 0},
		NewNoAux,
	)
	return sp.MadeSPValue{SP: made}, nil
}

func (makeCspPSP) LogDensity(value.Value, []value.Value, sp.Aux) (float64, error) { return 0, nil }
func (makeCspPSP) Incorporate(value.Value, []value.Value, sp.Aux) error           { return nil }
func (makeCspPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error         { return nil }
func (makeCspPSP) IsRandom() bool                                                 { return false }

func asSymbol(v value.Value) (string, error) {
	if s, ok := v.(value.Symbol); ok {
		return string(s), nil
	}
	return "", fmt.Errorf("make_csp: expected symbol parameter, got %s", v.Kind())
}

// MakeCsp is `make_csp`: builds a compound procedure value from a parameter
// list and a quoted body (spec §6 "lambda via an SP (make_csp)").
var MakeCsp = sp.New("make_csp", makeCspPSP{}, NewNoAux)

// globalEnv is the environment a compound procedure's free variables (every
// identifier in its body that is not one of its own parameters) resolve
// against. Because sp.PSP.Simulate intentionally has no environment
// parameter (only a primitive's already-evaluated argument values, spec
// §4.C), a compound procedure cannot capture its true lexical enclosing
// environment; it captures the single top-level environment instead. This
// covers every program whose lambdas only reference other top-level
// `assume`d names (the common case, and the one spec §8's scenarios use) but
// not one with a lambda nested inside a `let`-like local scope -- documented
// as a scope decision in DESIGN.md.
var globalEnv = value.NewEnvironment()

// SetGlobalEnvironment is called once by the engine during setup, after the
// top-level environment used for `assume` directives has been created.
func SetGlobalEnvironment(env *value.Environment) { globalEnv = env }

// GlobalEnvironment returns the environment compound procedures close over.
func GlobalEnvironment() *value.Environment { return globalEnv }

// --- mem ---

// memAux caches argument-key -> previously simulated value, giving repeated
// calls to a memoized procedure with equal arguments the same result within
// one trace. This is a value-level cache
// rather than Venture's node-sharing mem (which would reuse the same
// downstream random-choice node, not just its value) -- a simplification
// documented in DESIGN.md.
type memAux struct {
	inner *sp.SP
	cache map[string]value.Value
}

func (a *memAux) Copy() sp.Aux {
	cache := make(map[string]value.Value, len(a.cache))
	for k, v := range a.cache {
		cache[k] = v
	}
	return &memAux{inner: a.inner, cache: cache}
}

func memKey(args []value.Value) string {
	s := ""
	for _, a := range args {
		s += a.String() + "|"
	}
	return s
}

type memOutputPSP struct{}

func (memOutputPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	a := aux.(*memAux)
	key := memKey(args)
	if v, ok := a.cache[key]; ok {
		return v, nil
	}
	v, err := a.inner.OutputPSP.Simulate(args, a.inner.NewAux(), rng)
	if err != nil {
		return nil, err
	}
	a.cache[key] = v
	return v, nil
}

func (memOutputPSP) LogDensity(val value.Value, args []value.Value, aux sp.Aux) (float64, error) {
	a := aux.(*memAux)
	return a.inner.OutputPSP.LogDensity(val, args, a.inner.NewAux())
}

func (memOutputPSP) Incorporate(val value.Value, args []value.Value, aux sp.Aux) error {
	a := aux.(*memAux)
	key := memKey(args)
	if _, ok := a.cache[key]; ok {
		return nil
	}
	a.cache[key] = val
	return nil
}

func (memOutputPSP) Unincorporate(val value.Value, args []value.Value, aux sp.Aux) error {
	a := aux.(*memAux)
	delete(a.cache, memKey(args))
	return nil
}

func (memOutputPSP) IsRandom() bool { return true }

type makeMemPSP struct{}

func (makeMemPSP) Simulate(args []value.Value, aux sp.Aux, rng *rand.Rand) (value.Value, error) {
	if len(args) != 1 {
		return nil, errArity("mem", 1, len(args))
	}
	inner, ok := args[0].(sp.MadeSPValue)
	if !ok {
		return nil, fmt.Errorf("mem: argument must be a procedure value")
	}
	newAux := func() sp.Aux { return &memAux{inner: inner.SP, cache: make(map[string]value.Value)} }
	made := sp.New("memoized-procedure", memOutputPSP{}, newAux)
	return sp.MadeSPValue{SP: made}, nil
}

func (makeMemPSP) LogDensity(value.Value, []value.Value, sp.Aux) (float64, error) { return 0, nil }
func (makeMemPSP) Incorporate(value.Value, []value.Value, sp.Aux) error           { return nil }
func (makeMemPSP) Unincorporate(value.Value, []value.Value, sp.Aux) error         { return nil }
func (makeMemPSP) IsRandom() bool                                                 { return false }

// Mem is `mem`: memoizes a procedure value by its argument values.
var Mem = sp.New("mem", makeMemPSP{}, NewNoAux)
