// Package value implements the immutable runtime values of the trace (spec
// §4.A). Values are a closed sum type; every variant carries its own typed
// accessor that returns a descriptive error on mismatch, grounded in the
// reflection-over-tagged-unions pattern in design note §9 ("Reflection over
// Venture values").
package value

import (
	"fmt"
	"math/big"
	"strings"

	errwrap "github.com/pkg/errors"
)

// Value is the sum type of every runtime value a node can carry. Equality is
// structural (Equal), not pointer identity, and every concrete variant is
// immutable once constructed.
type Value interface {
	// Kind names the concrete variant, for error messages and dispatch.
	Kind() string
	// Equal reports structural equality with another Value.
	Equal(Value) bool
	String() string
}

// Number is a real-valued scalar.
type Number float64

func (Number) Kind() string { return "number" }
func (n Number) Equal(o Value) bool {
	on, ok := o.(Number)
	return ok && on == n
}
func (n Number) String() string { return fmt.Sprintf("%g", float64(n)) }

// Bool is a boolean value.
type Bool bool

func (Bool) Kind() string { return "boolean" }
func (b Bool) Equal(o Value) bool {
	ob, ok := o.(Bool)
	return ok && ob == b
}
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

// Atom is a tagged integer used as a discrete label (e.g. a category index).
type Atom int

func (Atom) Kind() string { return "atom" }
func (a Atom) Equal(o Value) bool {
	oa, ok := o.(Atom)
	return ok && oa == a
}
func (a Atom) String() string { return fmt.Sprintf("atom<%d>", int(a)) }

// Symbol is a variable name used in environments and quoted expressions.
type Symbol string

func (Symbol) Kind() string { return "symbol" }
func (s Symbol) Equal(o Value) bool {
	os, ok := o.(Symbol)
	return ok && os == s
}
func (s Symbol) String() string { return string(s) }

// Nil is the empty-list / no-value sentinel.
type Nil struct{}

func (Nil) Kind() string    { return "nil" }
func (Nil) Equal(o Value) bool {
	_, ok := o.(Nil)
	return ok
}
func (Nil) String() string { return "()" }

// Pair is a cons cell: the building block of lists.
type Pair struct {
	Car Value
	Cdr Value
}

func (Pair) Kind() string { return "pair" }
func (p Pair) Equal(o Value) bool {
	op, ok := o.(Pair)
	return ok && p.Car.Equal(op.Car) && p.Cdr.Equal(op.Cdr)
}
func (p Pair) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(p.Car.String())
	b.WriteString(" . ")
	b.WriteString(p.Cdr.String())
	b.WriteString(")")
	return b.String()
}

// List builds a proper list out of vs, terminated by Nil.
func List(vs ...Value) Value {
	var out Value = Nil{}
	for i := len(vs) - 1; i >= 0; i-- {
		out = Pair{Car: vs[i], Cdr: out}
	}
	return out
}

// ToSlice flattens a proper list into a Go slice. It errors on an improper
// list (one whose final Cdr is not Nil).
func ToSlice(v Value) ([]Value, error) {
	var out []Value
	for {
		switch t := v.(type) {
		case Nil:
			return out, nil
		case Pair:
			out = append(out, t.Car)
			v = t.Cdr
		default:
			return nil, fmt.Errorf("improper list, found %s tail", v.Kind())
		}
	}
}

// Vector is a fixed-size, indexable, homogeneous-in-use array of values.
type Vector []Value

func (Vector) Kind() string { return "vector" }
func (v Vector) Equal(o Value) bool {
	ov, ok := o.(Vector)
	if !ok || len(ov) != len(v) {
		return false
	}
	for i := range v {
		if !v[i].Equal(ov[i]) {
			return false
		}
	}
	return true
}
func (v Vector) String() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return "#(" + strings.Join(parts, " ") + ")"
}

// Simplex is a probability vector: non-negative entries summing to one
// (within float tolerance), used as the support for discrete distributions
// such as the Dirichlet-multinomial die of spec §8 scenario 1.
type Simplex []float64

func (Simplex) Kind() string { return "simplex" }
func (s Simplex) Equal(o Value) bool {
	os, ok := o.(Simplex)
	if !ok || len(os) != len(s) {
		return false
	}
	for i := range s {
		if s[i] != os[i] {
			return false
		}
	}
	return true
}
func (s Simplex) String() string {
	parts := make([]string, len(s))
	for i, e := range s {
		parts[i] = fmt.Sprintf("%g", e)
	}
	return "simplex(" + strings.Join(parts, " ") + ")"
}

// Sum returns the total mass of the simplex (should be ~1 for a valid one).
func (s Simplex) Sum() float64 {
	total := 0.0
	for _, v := range s {
		total += v
	}
	return total
}

// Matrix is a dense row-major 2D array of floats.
type Matrix struct {
	Rows, Cols int
	Data       []float64 // row-major, len == Rows*Cols
}

func (Matrix) Kind() string { return "matrix" }
func (m Matrix) Equal(o Value) bool {
	om, ok := o.(Matrix)
	if !ok || om.Rows != m.Rows || om.Cols != m.Cols {
		return false
	}
	for i := range m.Data {
		if m.Data[i] != om.Data[i] {
			return false
		}
	}
	return true
}
func (m Matrix) String() string { return fmt.Sprintf("matrix(%dx%d)", m.Rows, m.Cols) }

// At returns the entry at (row, col).
func (m Matrix) At(row, col int) float64 { return m.Data[row*m.Cols+col] }

// BigInt wraps arbitrary precision integers used by some collapsed
// conjugate-prior sufficient statistics (counts can otherwise overflow in
// long-running chains).
type BigInt struct{ *big.Int }

func (BigInt) Kind() string { return "bigint" }
func (b BigInt) Equal(o Value) bool {
	ob, ok := o.(BigInt)
	return ok && b.Cmp(ob.Int) == 0
}
func (b BigInt) String() string { return b.Int.String() }

// SPRefNodeID identifies the maker node a made-SP was produced by, without
// holding a pointer cycle back into the node graph (design note §9: "The
// SPRef from a made-SP's application back to its maker is handled by a
// tagged variant, not by shared ownership").
type SPRefNodeID uint64

// SPRef is a runtime value that indirectly references the SP made by a
// maker node, by that node's stable id.
type SPRef struct {
	MakerNodeID SPRefNodeID
}

func (SPRef) Kind() string { return "sp-ref" }
func (r SPRef) Equal(o Value) bool {
	or, ok := o.(SPRef)
	return ok && or.MakerNodeID == r.MakerNodeID
}
func (r SPRef) String() string { return fmt.Sprintf("<sp@%d>", r.MakerNodeID) }

// QuotedExpr is a runtime value carrying an unevaluated expression as data,
// the representation `(quote e)` produces for a compound e (spec §6
// "quote"). Expr is opaque here for the same reason sp.ESR.Exp is: value
// cannot import the node package without creating an import cycle (node
// imports value); callers that build or consume a QuotedExpr (the engine,
// and the make_csp primitive) know to assert it back to *node.Expr.
type QuotedExpr struct {
	Expr interface{}
}

func (QuotedExpr) Kind() string         { return "quoted-expr" }
func (QuotedExpr) Equal(Value) bool     { return false }
func (QuotedExpr) String() string       { return "<quoted-expr>" }

// AsNumber type-asserts v to Number or returns a descriptive error.
func AsNumber(v Value) (Number, error) {
	n, ok := v.(Number)
	if !ok {
		return 0, errwrap.Wrapf(typeError("number", v), "AsNumber")
	}
	return n, nil
}

// AsBool type-asserts v to Bool or returns a descriptive error.
func AsBool(v Value) (Bool, error) {
	b, ok := v.(Bool)
	if !ok {
		return false, errwrap.Wrapf(typeError("boolean", v), "AsBool")
	}
	return b, nil
}

// AsAtom type-asserts v to Atom or returns a descriptive error.
func AsAtom(v Value) (Atom, error) {
	a, ok := v.(Atom)
	if !ok {
		return 0, errwrap.Wrapf(typeError("atom", v), "AsAtom")
	}
	return a, nil
}

// AsSimplex type-asserts v to Simplex or returns a descriptive error.
func AsSimplex(v Value) (Simplex, error) {
	s, ok := v.(Simplex)
	if !ok {
		return nil, errwrap.Wrapf(typeError("simplex", v), "AsSimplex")
	}
	return s, nil
}

// AsSPRef type-asserts v to SPRef or returns a descriptive error.
func AsSPRef(v Value) (SPRef, error) {
	r, ok := v.(SPRef)
	if !ok {
		return SPRef{}, errwrap.Wrapf(typeError("sp-ref", v), "AsSPRef")
	}
	return r, nil
}

func typeError(want string, got Value) error {
	if got == nil {
		return fmt.Errorf("expected %s, got <nil>", want)
	}
	return fmt.Errorf("expected %s, got %s", want, got.Kind())
}
