// Package directive defines the engine-facing program the driver executes:
// assume/observe/predict/forget/infer plus the supplemented freeze/report
// directives (SPEC_FULL.md "Supplemented features"), and their YAML
// (de)serialization via the teacher's gopkg.in/yaml.v2 dependency and
// identity via google/uuid, exactly as mgmt's own directive-ish resource
// definitions are YAML-decoded at load time.
package directive

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

// Kind tags which directive a Directive value carries.
type Kind string

const (
	Assume  Kind = "assume"
	Observe Kind = "observe"
	Predict Kind = "predict"
	Forget  Kind = "forget"
	Infer   Kind = "infer"
	Freeze  Kind = "freeze"
	Report  Kind = "report"
)

// Directive is one entry of a program: a single engine-level instruction
// (spec §4.I). Expression is a surface-syntax string; the engine is
// responsible for parsing/desugaring it into a *node.Expr before evaluating
// it (spec §1 scope: the parser itself is out of scope; callers that need
// one supply it at the engine boundary).
type Directive struct {
	ID         string `yaml:"id"`
	Kind       Kind   `yaml:"kind"`
	Symbol     string `yaml:"symbol,omitempty"`     // assume
	Expression string `yaml:"expression,omitempty"` // assume/observe/predict
	Value      string `yaml:"value,omitempty"`      // observe (literal value text)
	DirectiveID string `yaml:"directive_id,omitempty"` // forget/freeze/report

	// Infer parameters (spec §4.H, §5 "budget").
	Transitions   int    `yaml:"transitions,omitempty"`
	Scope         string `yaml:"scope,omitempty"`
	Operator      string `yaml:"operator,omitempty"` // "mh" | "meanfield" | "pgibbs" | "rejection"
	Particles     int    `yaml:"particles,omitempty"`
	MaxIterations int    `yaml:"max_iterations,omitempty"`
	MaxSeconds    int    `yaml:"max_seconds,omitempty"`
}

// NewID mints a fresh directive identity (SPEC_FULL.md supplemented feature:
// stable UUIDs for assume/observe/predict directives so freeze/report/forget
// can name them later, grounded in the teacher's pervasive use of
// github.com/google/uuid for resource/event identity).
func NewID() string { return uuid.New().String() }

// Program is an ordered list of directives, the unit cmd/trellis decodes
// from a YAML file and executes directive by directive.
type Program struct {
	Directives []Directive `yaml:"directives"`
}

// Decode parses a YAML program document.
func Decode(data []byte) (*Program, error) {
	var p Program
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode program: %w", err)
	}
	return &p, nil
}

// Encode serializes a program back to YAML, the inverse of Decode.
func Encode(p *Program) ([]byte, error) {
	return yaml.Marshal(p)
}
