// Package engine is the top-level directive driver (spec §4.I): it owns one
// trace, executes assume/observe/predict/forget/infer (plus the
// supplemented freeze/report) against it, and exposes the Logf-closure
// logging idiom, prometheus metrics, and abort control (checked between
// infer steps) the teacher's engine/graph.Engine and cli/run.go wire up the
// same way.
package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/probsys/trellis/event"
	"github.com/probsys/trellis/internal/budget"
	"github.com/probsys/trellis/internal/directive"
	"github.com/probsys/trellis/internal/kernel"
	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/primitives"
	"github.com/probsys/trellis/internal/regen"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
	"github.com/probsys/trellis/internal/value"
	"github.com/probsys/trellis/util/errwrap"
)

// Metrics are the prometheus collectors an Engine updates as it runs,
// grounded in the teacher's use of github.com/prometheus/client_golang for
// resource-convergence counters.
type Metrics struct {
	DirectivesTotal *prometheus.CounterVec
	MHAccepts       prometheus.Counter
	MHRejects       prometheus.Counter
	RandomChoices   prometheus.Gauge
}

// NewMetrics constructs and registers a fresh Metrics set against reg (pass
// prometheus.NewRegistry() for an isolated test registry, or
// prometheus.DefaultRegisterer to expose them process-wide).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DirectivesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trellis_directives_total",
			Help: "Count of directives executed, by kind.",
		}, []string{"kind"}),
		MHAccepts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trellis_mh_accepts_total",
			Help: "Count of accepted Metropolis-Hastings proposals.",
		}),
		MHRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trellis_mh_rejects_total",
			Help: "Count of rejected Metropolis-Hastings proposals.",
		}),
		RandomChoices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trellis_random_choices",
			Help: "Current size of the random-choice registry.",
		}),
	}
	reg.MustRegister(m.DirectivesTotal, m.MHAccepts, m.MHRejects, m.RandomChoices)
	return m
}

// Engine drives a single trace through a program of directives.
type Engine struct {
	Logf func(format string, v ...interface{})

	tr       *trace.Trace
	env      *value.Environment
	outputs  map[string]node.ID // directive id -> its node (assume/observe/predict)
	metrics  *Metrics
	controls chan event.Msg
}

// New builds an Engine over a fresh trace seeded with rngSeed, with the
// global top-level environment every `assume` extends.
func New(rngSeed int64, metrics *Metrics) *Engine {
	env := value.NewEnvironment()
	primitives.SetGlobalEnvironment(env)
	e := &Engine{
		Logf:     func(string, ...interface{}) {},
		tr:       trace.New(rngSeed),
		env:      env,
		outputs:  make(map[string]node.ID),
		metrics:  metrics,
		controls: make(chan event.Msg, 1),
	}
	e.tr.Logf = func(format string, v ...interface{}) { e.Logf(format, v...) }
	e.bindBuiltins()
	return e
}

// bindBuiltins wires the small library in internal/primitives into the
// top-level environment under their conventional surface names (spec §1
// scope: the primitive library itself is external; this is the engine
// supplying that external collaborator for its own test programs and for
// any caller's directives).
func (e *Engine) bindBuiltins() {
	e.bindBuiltin("flip", primitives.Flip)
	e.bindBuiltin("normal", primitives.Normal)
	e.bindBuiltin("if", primitives.If)
	e.bindBuiltin("make_dir_mult", primitives.MakeDirMult)
	e.bindBuiltin("make_csp", primitives.MakeCsp)
	e.bindBuiltin("mem", primitives.Mem)
}

// bindBuiltin installs a primitive SP at a fresh constant node (immediately
// overwritten to an SPRef, exactly as any other maker application's output
// node is, spec §4.C) and binds name to it in the top-level environment.
func (e *Engine) bindBuiltin(name string, s *sp.SP) {
	id := e.tr.CreateConstantNode(node.Lit(value.Nil{}), e.env, value.Nil{})
	e.tr.SetMadeSPAt(id, s, s.NewAux())
	e.env = e.env.BindOne(name, id)
}

// Close releases the Engine's resources; currently a no-op placeholder kept
// so callers that manage a pool of engines have a symmetric lifecycle hook.
func (e *Engine) Close() {}

// Trace exposes the underlying trace for tests and the report directive.
func (e *Engine) Trace() *trace.Trace { return e.tr }

func (e *Engine) recordDirective(kind directive.Kind) {
	if e.metrics != nil {
		e.metrics.DirectivesTotal.WithLabelValues(string(kind)).Inc()
		e.metrics.RandomChoices.Set(float64(len(e.tr.RandomChoices())))
	}
}

// Execute runs a single directive against the engine's trace (spec §4.I).
// parse is the caller-supplied surface-syntax-to-*node.Expr translator,
// since a parser is out of scope (spec §1): callers that want to drive the
// engine from YAML-encoded surface text must supply one; tests and
// programmatic callers that build *node.Expr trees directly can pass nil
// for directives whose Expression field is unused.
func (e *Engine) Execute(d directive.Directive, parse func(surface string) (*node.Expr, error)) (value.Value, error) {
	e.Logf("directive %s (%s)", d.ID, d.Kind)
	e.recordDirective(d.Kind)
	switch d.Kind {
	case directive.Assume:
		return e.assume(d, parse)
	case directive.Observe:
		return nil, e.observe(d, parse)
	case directive.Predict:
		return e.predict(d, parse)
	case directive.Forget:
		return nil, e.forget(d)
	case directive.Infer:
		return nil, e.infer(d)
	case directive.Freeze:
		return nil, e.freeze(d)
	case directive.Report:
		return e.report(d)
	default:
		return nil, fmt.Errorf("unknown directive kind %q", d.Kind)
	}
}

func (e *Engine) assume(d directive.Directive, parse func(string) (*node.Expr, error)) (value.Value, error) {
	expr, err := parse(d.Expression)
	if err != nil {
		return nil, errwrap.Wrapf(err, "assume %s", d.ID)
	}
	outID, _, err := regen.EvalFamily(e.tr, expr, e.env)
	if err != nil {
		return nil, err
	}
	e.env = e.env.BindOne(d.Symbol, outID)
	e.outputs[d.ID] = outID
	return e.tr.ValueAt(outID), nil
}

func (e *Engine) observe(d directive.Directive, parse func(string) (*node.Expr, error)) error {
	expr, err := parse(d.Expression)
	if err != nil {
		return errwrap.Wrapf(err, "observe %s", d.ID)
	}
	outID, _, err := regen.EvalFamily(e.tr, expr, e.env)
	if err != nil {
		return err
	}
	valExpr, err := parse(d.Value)
	if err != nil {
		return errwrap.Wrapf(err, "observe %s value", d.ID)
	}
	litID, _, err := regen.EvalFamily(e.tr, valExpr, e.env)
	if err != nil {
		return err
	}
	e.outputs[d.ID] = outID
	return regen.Constrain(e.tr, outID, e.tr.ValueAt(litID))
}

func (e *Engine) predict(d directive.Directive, parse func(string) (*node.Expr, error)) (value.Value, error) {
	expr, err := parse(d.Expression)
	if err != nil {
		return nil, errwrap.Wrapf(err, "predict %s", d.ID)
	}
	outID, _, err := regen.EvalFamily(e.tr, expr, e.env)
	if err != nil {
		return nil, err
	}
	e.outputs[d.ID] = outID
	return e.tr.ValueAt(outID), nil
}

func (e *Engine) forget(d directive.Directive) error {
	id, ok := e.outputs[d.DirectiveID]
	if !ok {
		return fmt.Errorf("forget: no such directive %q", d.DirectiveID)
	}
	n := e.tr.Node(id)
	if n != nil && n.IsObservation {
		if err := regen.Unconstrain(e.tr, id); err != nil {
			return err
		}
	}
	delete(e.outputs, d.DirectiveID)
	return nil
}

// freeze removes a directive's node from the random-choice registry, so
// single-site inference no longer selects it as a principal (spec
// SUPPLEMENTED FEATURES "freeze"). Its node kind and current value are left
// unchanged; it is not turned into a constant node.
func (e *Engine) freeze(d directive.Directive) error {
	id, ok := e.outputs[d.DirectiveID]
	if !ok {
		return fmt.Errorf("freeze: no such directive %q", d.DirectiveID)
	}
	if e.tr.IsRandomChoice(id) {
		e.tr.UnregisterRandomChoice(id)
	}
	return nil
}

// report returns the current value of a previously-issued directive (spec
// SUPPLEMENTED FEATURES "report").
func (e *Engine) report(d directive.Directive) (value.Value, error) {
	id, ok := e.outputs[d.DirectiveID]
	if !ok {
		return nil, fmt.Errorf("report: no such directive %q", d.DirectiveID)
	}
	return e.tr.ValueAt(id), nil
}

// Abort signals a running infer loop to stop after its current step (spec
// §5 "no mid-step cancellation").
func (e *Engine) Abort() {
	select {
	case e.controls <- event.Msg{Kind: event.KindAbort}:
	default:
	}
}

func (e *Engine) infer(d directive.Directive) error {
	b := budget.New(d.MaxIterations, time.Duration(d.MaxSeconds)*time.Second)
	if d.Transitions > 0 {
		b = budget.New(d.Transitions, 0)
	}
	b.Start(time.Now())

	var sel kernel.Selector = kernel.SingleSiteSelector{}
	if d.Scope != "" {
		sel = kernel.BlockSelector{Scope: d.Scope}
	}

	for !b.Done(time.Now()) {
		select {
		case msg := <-e.controls:
			if msg.Kind == event.KindAbort {
				msg.ACK()
				return nil
			}
			msg.ACK()
		default:
		}

		var res kernel.Result
		var err error
		switch d.Operator {
		case "", "mh":
			res, err = kernel.MH(e.tr, sel)
		case "meanfield":
			res, err = kernel.Meanfield(e.tr, sel, 10, 0.1)
		case "pgibbs":
			particles := d.Particles
			if particles < 2 {
				particles = 5
			}
			res, err = kernel.PGibbs(e.tr, sel, particles)
		case "rejection":
			res, err = kernel.Rejection(e.tr, sel, 1000)
		default:
			return fmt.Errorf("infer: unknown operator %q", d.Operator)
		}
		if err != nil {
			return err
		}
		if e.metrics != nil {
			if res.Accepted {
				e.metrics.MHAccepts.Inc()
			} else {
				e.metrics.MHRejects.Inc()
			}
		}
		b.Tick()
	}
	return nil
}
