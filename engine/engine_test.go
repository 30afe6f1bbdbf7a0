package engine

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/directive"
	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/surface"
	"github.com/probsys/trellis/internal/value"
)

func newTestEngine() *Engine {
	return New(1, NewMetrics(prometheus.NewRegistry()))
}

func parseFn(s string) (*node.Expr, error) { return surface.Parse(s) }

func TestAssumeObservePredictForget(t *testing.T) {
	e := newTestEngine()

	_, err := e.Execute(directive.Directive{
		ID: "d1", Kind: directive.Assume, Symbol: "coin", Expression: "(flip 0.5)",
	}, parseFn)
	require.NoError(t, err)

	_, err = value.AsBool(e.Trace().ValueAt(e.outputs["d1"]))
	assert.NoError(t, err)

	predVal, err := e.Execute(directive.Directive{
		ID: "d2", Kind: directive.Predict, Expression: "coin",
	}, parseFn)
	require.NoError(t, err)
	assert.Equal(t, e.Trace().ValueAt(e.outputs["d1"]), predVal)

	_, err = e.Execute(directive.Directive{
		ID: "d3", Kind: directive.Observe, Expression: "(flip 0.5)", Value: "true",
	}, parseFn)
	require.NoError(t, err)
	assert.True(t, e.Trace().Node(e.outputs["d3"]).IsObservation)

	_, err = e.Execute(directive.Directive{
		Kind: directive.Forget, DirectiveID: "d3",
	}, parseFn)
	require.NoError(t, err)
	_, exists := e.outputs["d3"]
	assert.False(t, exists)
}

func TestFreezeAndReport(t *testing.T) {
	e := newTestEngine()
	_, err := e.Execute(directive.Directive{
		ID: "d1", Kind: directive.Assume, Symbol: "coin", Expression: "(flip 0.5)",
	}, parseFn)
	require.NoError(t, err)
	require.True(t, e.Trace().IsRandomChoice(e.outputs["d1"]))

	_, err = e.Execute(directive.Directive{Kind: directive.Freeze, DirectiveID: "d1"}, parseFn)
	require.NoError(t, err)
	assert.False(t, e.Trace().IsRandomChoice(e.outputs["d1"]))

	val, err := e.Execute(directive.Directive{Kind: directive.Report, DirectiveID: "d1"}, parseFn)
	require.NoError(t, err)
	assert.Equal(t, e.Trace().ValueAt(e.outputs["d1"]), val)
}

func TestInferRunsBoundedMHSweep(t *testing.T) {
	e := newTestEngine()
	_, err := e.Execute(directive.Directive{
		ID: "d1", Kind: directive.Assume, Symbol: "coin", Expression: "(flip 0.5)",
	}, parseFn)
	require.NoError(t, err)

	_, err = e.Execute(directive.Directive{
		Kind: directive.Infer, Operator: "mh", Transitions: 20,
	}, parseFn)
	require.NoError(t, err)

	_, err = value.AsBool(e.Trace().ValueAt(e.outputs["d1"]))
	assert.NoError(t, err)
}

// TestInferDieAssumeDraw exercises make_dir_mult end to end, bypassing
// the surface parser for the Dirichlet concentration argument since
// Simplex has no surface literal syntax (spec §1 scope: the minimal reader
// covers the core forms, not every primitive's argument types).
func TestInferDieAssumeDraw(t *testing.T) {
	e := newTestEngine()
	dieParse := func(s string) (*node.Expr, error) {
		if s == "(make_dir_mult ALPHA)" {
			return node.App(node.Var("make_dir_mult"), node.Lit(value.Simplex{1, 1, 1})), nil
		}
		return surface.Parse(s)
	}

	_, err := e.Execute(directive.Directive{
		ID: "d1", Kind: directive.Assume, Symbol: "die", Expression: "(make_dir_mult ALPHA)",
	}, dieParse)
	require.NoError(t, err)

	_, err = e.Execute(directive.Directive{
		ID: "d2", Kind: directive.Assume, Symbol: "draw1", Expression: "(die)",
	}, dieParse)
	require.NoError(t, err)

	_, err = e.Execute(directive.Directive{
		Kind: directive.Infer, Operator: "mh", Transitions: 10,
	}, dieParse)
	require.NoError(t, err)

	_, err = value.AsAtom(e.Trace().ValueAt(e.outputs["d2"]))
	assert.NoError(t, err)
}

func TestExecuteUnknownDirectiveKind(t *testing.T) {
	e := newTestEngine()
	_, err := e.Execute(directive.Directive{Kind: directive.Kind("bogus")}, parseFn)
	assert.Error(t, err)
}

func TestInferUnknownOperatorErrors(t *testing.T) {
	e := newTestEngine()
	_, err := e.Execute(directive.Directive{
		ID: "d1", Kind: directive.Assume, Symbol: "coin", Expression: "(flip 0.5)",
	}, parseFn)
	require.NoError(t, err)

	_, err = e.Execute(directive.Directive{
		Kind: directive.Infer, Operator: "nonsense", Transitions: 1,
	}, parseFn)
	assert.Error(t, err)
}

func TestAbortStopsInferEarly(t *testing.T) {
	e := newTestEngine()
	_, err := e.Execute(directive.Directive{
		ID: "d1", Kind: directive.Assume, Symbol: "coin", Expression: "(flip 0.5)",
	}, parseFn)
	require.NoError(t, err)

	e.Abort()
	_, err = e.Execute(directive.Directive{
		Kind: directive.Infer, Operator: "mh", MaxIterations: 1000000,
	}, parseFn)
	require.NoError(t, err)
}
