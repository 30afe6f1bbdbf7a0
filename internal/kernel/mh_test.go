package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probsys/trellis/internal/node"
	"github.com/probsys/trellis/internal/primitives"
	"github.com/probsys/trellis/internal/regen"
	"github.com/probsys/trellis/internal/sp"
	"github.com/probsys/trellis/internal/trace"
	"github.com/probsys/trellis/internal/value"
)

func bindBuiltin(tr *trace.Trace, env *value.Environment, name string, s *sp.SP) *value.Environment {
	id := tr.CreateConstantNode(node.Lit(value.Nil{}), env, value.Nil{})
	tr.SetMadeSPAt(id, s, s.NewAux())
	return env.BindOne(name, id)
}

func TestMHAlwaysAcceptsWithNoBorder(t *testing.T) {
	tr := trace.New(1)
	env := value.NewEnvironment()
	env = bindBuiltin(tr, env, "flip", primitives.Flip)

	_, _, err := regen.EvalFamily(tr, node.App(node.Var("flip")), env)
	require.NoError(t, err)

	result, err := MH(tr, SingleSiteSelector{})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, 0.0, result.LogAcceptRate)
}

func TestMHBlockSelectorEmptyBlockErrors(t *testing.T) {
	tr := trace.New(1)
	_, _, err := BlockSelector{Scope: "nope"}.Select(tr)
	assert.Error(t, err)
}

func TestSingleSiteSelectorErrorsOnEmptyRegistry(t *testing.T) {
	tr := trace.New(1)
	_, _, err := SingleSiteSelector{}.Select(tr)
	assert.Error(t, err)
}
