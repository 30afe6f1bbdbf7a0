package scaffold_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/primitives"
	"github.com/probsys/trellis/internal/regen"
	"github.com/probsys/trellis/internal/scaffold"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
	"github.com/probsys/trellis/internal/value"
)

// bindBuiltin mirrors engine.bindBuiltin closely enough for a standalone
// trace fixture without importing the engine package.
func bindBuiltin(tr *trace.Trace, env *value.Environment, name string, s *sp.SP) *value.Environment {
	id := tr.CreateConstantNode(node.Lit(value.Nil{}), env, value.Nil{})
	tr.SetMadeSPAt(id, s, s.NewAux())
	return env.BindOne(name, id)
}

// TestBuildScaffoldAnchorsAAABorderAtDraws exercises resampling the maker
// node itself (die) as principal: its draws are genuine random choices
// (collapsedDirMultPSP.IsRandom()==true) and so anchor the border rather
// than being swallowed into the DRG, and since that same PSP also declares
// ChildrenCanAAA, each draw is classified AAA rather than merely Absorbing
// (spec §4.E "for absorbing nodes, stop"; §3 "AAA").
func TestBuildScaffoldAnchorsAAABorderAtDraws(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "make_dir_mult", primitives.MakeDirMult)

	makerExpr := node.App(node.Var("make_dir_mult"), node.Lit(value.Simplex{1, 1, 1}))
	dieID, _, err := regen.EvalFamily(tr, makerExpr, env)
	require.NoError(t, err)

	env = env.BindOne("die", dieID)
	drawExpr := node.App(node.Var("die"))
	draw1, _, err := regen.EvalFamily(tr, drawExpr, env)
	require.NoError(t, err)

	sc := scaffold.Build(tr, []node.ID{dieID})

	assert.Equal(t, scaffold.Resampling, sc.Class[dieID])
	assert.Equal(t, scaffold.AAA, sc.Class[draw1])
	// draw1's DRG parents: the lookup of die and draw1's own request node.
	assert.Equal(t, 2, sc.RegenCount[draw1])
	assert.Contains(t, sc.DRG(), dieID)
	assert.NotContains(t, sc.DRG(), draw1, "a border node, even when AAA-capable, is not torn down as part of the DRG")
}

// TestBuildScaffoldAnchorsAbsorbingBorderAtDownstreamNormal is the
// two-node HMM-style chain the reviewed gap called out: x is the
// principal, y is a genuine downstream random choice (normalPSP.IsRandom()
// ==true, not AAA-capable), so y must anchor the border as Absorbing
// rather than be pulled into resampling.
func TestBuildScaffoldAnchorsAbsorbingBorderAtDownstreamNormal(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "normal", primitives.Normal)

	xExpr := node.App(node.Var("normal"), node.Lit(value.Number(0)), node.Lit(value.Number(1)))
	xID, _, err := regen.EvalFamily(tr, xExpr, env)
	require.NoError(t, err)

	env = env.BindOne("x", xID)
	yExpr := node.App(node.Var("normal"), node.Var("x"), node.Lit(value.Number(1)))
	yID, _, err := regen.EvalFamily(tr, yExpr, env)
	require.NoError(t, err)

	sc := scaffold.Build(tr, []node.ID{xID})

	assert.Equal(t, scaffold.Resampling, sc.Class[xID])
	assert.Equal(t, scaffold.Absorbing, sc.Class[yID])
	// y's DRG parents: the lookup of x and y's own request node.
	assert.Equal(t, 2, sc.RegenCount[yID])
	assert.Contains(t, sc.DRG(), xID)
	assert.NotContains(t, sc.DRG(), yID)
}

func TestBuildScaffoldSingleNodeNoBorder(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flip", primitives.Flip)

	id, _, err := regen.EvalFamily(tr, node.App(node.Var("flip")), env)
	require.NoError(t, err)

	sc := scaffold.Build(tr, []node.ID{id})
	assert.Equal(t, scaffold.Resampling, sc.Class[id])
	assert.Empty(t, sc.RegenCount)
}
