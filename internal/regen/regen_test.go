package regen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/primitives"
	"github.com/probsys/trellis/internal/scaffold"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
	"github.com/probsys/trellis/internal/value"
)

func bindBuiltin(tr *trace.Trace, env *value.Environment, name string, s *sp.SP) *value.Environment {
	id := tr.CreateConstantNode(node.Lit(value.Nil{}), env, value.Nil{})
	tr.SetMadeSPAt(id, s, s.NewAux())
	return env.BindOne(name, id)
}

func TestEvalFamilyLiteral(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	id, w, err := EvalFamily(tr, node.Lit(value.Number(7)), env)
	require.NoError(t, err)
	assert.Equal(t, 0.0, w)
	assert.Equal(t, value.Number(7), tr.ValueAt(id))
}

func TestEvalFamilyVariable(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	src := tr.CreateConstantNode(node.Lit(value.Number(2)), env, value.Number(2))
	env = env.BindOne("x", src)

	id, _, err := EvalFamily(tr, node.Var("x"), env)
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), tr.ValueAt(id))
}

func TestEvalFamilyApplicationFlip(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flip", primitives.Flip)

	id, _, err := EvalFamily(tr, node.App(node.Var("flip")), env)
	require.NoError(t, err)

	_, err = value.AsBool(tr.ValueAt(id))
	assert.NoError(t, err)
	assert.True(t, tr.IsRandomChoice(id))
}

func TestConstrainAndUnconstrain(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flip", primitives.Flip)

	id, _, err := EvalFamily(tr, node.App(node.Var("flip")), env)
	require.NoError(t, err)
	require.True(t, tr.IsRandomChoice(id))

	require.NoError(t, Constrain(tr, id, value.Bool(true)))
	assert.False(t, tr.IsRandomChoice(id))
	assert.Equal(t, value.Bool(true), tr.ValueAt(id))

	require.NoError(t, Unconstrain(tr, id))
	assert.True(t, tr.IsRandomChoice(id))
}

func TestDetachAndRegenRoundTripRestoresValue(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flip", primitives.Flip)

	id, _, err := EvalFamily(tr, node.App(node.Var("flip")), env)
	require.NoError(t, err)
	before := tr.ValueAt(id)

	sc := scaffold.Build(tr, []node.ID{id})
	db, _, err := DetachAndExtract(tr, sc)
	require.NoError(t, err)

	_, err = RegenAndAttach(tr, sc, true, db)
	require.NoError(t, err)

	assert.Equal(t, before, tr.ValueAt(id))
	assert.True(t, tr.IsRandomChoice(id))
}

// TestEvalRequestsRestoresESRFamilyOnReject exercises a compound-procedure
// call (an ESR-requesting application, spec §6 "lambda via an SP") through
// the same detach/regen-fresh/detach/regen-restore cycle MH.MH runs on a
// rejected proposal, and checks that restoring from the original OmegaDB
// snapshot reattaches the SAME previously-resolved call body rather than
// resimulating a new one, and that the call's ESRParents wiring does not
// accumulate a stale entry across the cycle (original_source
// regen.py evalRequests' restore branch).
func TestEvalRequestsRestoresESRFamilyOnReject(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "make_csp", primitives.MakeCsp)
	env = bindBuiltin(tr, env, "normal", primitives.Normal)
	primitives.SetGlobalEnvironment(env)
	defer primitives.SetGlobalEnvironment(value.NewEnvironment())

	bodyExpr := node.App(node.Var("normal"), node.Lit(value.Number(0)), node.Lit(value.Number(1)))
	makerExpr := node.App(node.Var("make_csp"), node.Lit(value.List()), node.Quote(value.QuotedExpr{Expr: bodyExpr}))
	fID, _, err := EvalFamily(tr, makerExpr, env)
	require.NoError(t, err)

	env = env.BindOne("f", fID)
	callID, _, err := EvalFamily(tr, node.App(node.Var("f")), env)
	require.NoError(t, err)
	before := tr.ValueAt(callID)

	callNode := tr.Node(callID)
	require.NotNil(t, callNode)
	reqID := callNode.ReqNode
	beforeESRParent := callNode.ESRParents[len(callNode.ESRParents)-1]

	sc := scaffold.Build(tr, []node.ID{reqID})
	db, _, err := DetachAndExtract(tr, sc)
	require.NoError(t, err)

	// Forward proposal: resimulate the call fresh, exactly as MH's first
	// RegenAndAttach(sc, false, db) does before checking the acceptance
	// ratio.
	_, err = RegenAndAttach(tr, sc, false, db)
	require.NoError(t, err)
	require.Len(t, callNode.ESRParents, 1, "a superseded ESR edge must be unregistered, not merely appended past")
	assert.NotEqual(t, beforeESRParent, callNode.ESRParents[0])

	// Reject: detach the fresh attempt (its own snapshot is discarded) and
	// restore from the original db.
	_, _, err = DetachAndExtract(tr, sc)
	require.NoError(t, err)
	_, err = RegenAndAttach(tr, sc, true, db)
	require.NoError(t, err)

	assert.Equal(t, before, tr.ValueAt(callID))
	require.Len(t, callNode.ESRParents, 1)
	assert.Equal(t, beforeESRParent, callNode.ESRParents[0])
}

func TestLogSumExp(t *testing.T) {
	got := LogSumExp([]float64{0, 0})
	assert.InDelta(t, 0.6931471805599453, got, 1e-9)

	assert.True(t, LogSumExp(nil) < 0)
}
