// Package primitives supplies the small set of concrete stochastic
// procedures needed to drive the spec §8 end-to-end scenarios (the
// Dirichlet-multinomial die, flips/normals for the HMM scenarios, and the
// mem/if/lambda control-flow SPs every surface program needs). A full
// library of primitive distributions is explicitly out of scope (spec §1):
// this package is the minimal external collaborator the engine's tests
// exercise it through, grounded in original_source/backend/lite/dirichlet.py
// (CollapsedDirMultOutputPSP), original_source/backend/lite/discrete.py
// (BernoulliOutputPSP), and original_source/backend/lite/continuous.py
// (NormalOutputPSP).
package primitives

import "github.com/probsys/trellis/internal/sp"

// NoAux is the aux for any PSP with no sufficient statistics to track.
type NoAux struct{}

func (NoAux) Copy() sp.Aux { return NoAux{} }

// NewNoAux is a sp.SP.NewAux implementation for stateless primitives.
func NewNoAux() sp.Aux { return NoAux{} }
