// Package budget tracks how much more inference work an `infer` directive
// is allowed to do before it must stop (spec §5 "an iteration budget or
// wall-time budget"). It is a direct simplification of the teacher's
// converger package: converger watches a fleet of concurrently-converging
// resources over channels and goroutines, which the spec's single-threaded,
// single-process inference loop (design note: "no mid-step cancellation",
// §5) has no use for. What survives is the same idea stripped of
// concurrency: a budget that is consulted once per outer loop iteration and
// reports whether to keep going.
package budget

import "time"

// Budget bounds one `infer` directive's iteration count and/or wall-clock
// time. A zero value in either field means that bound is not enforced.
type Budget struct {
	MaxIterations int
	MaxDuration   time.Duration

	iterations int
	started    time.Time
	startSet   bool
}

// New returns a Budget with the given bounds. Either may be zero to disable
// that bound.
func New(maxIterations int, maxDuration time.Duration) *Budget {
	return &Budget{MaxIterations: maxIterations, MaxDuration: maxDuration}
}

// Start resets the wall-clock clock; call it immediately before the first
// iteration of an `infer` directive.
func (b *Budget) Start(now time.Time) {
	b.started = now
	b.startSet = true
	b.iterations = 0
}

// Tick records that one more iteration has completed.
func (b *Budget) Tick() { b.iterations++ }

// Iterations returns the number of iterations recorded so far.
func (b *Budget) Iterations() int { return b.iterations }

// Done reports whether the budget is exhausted as of now.
func (b *Budget) Done(now time.Time) bool {
	if b.MaxIterations > 0 && b.iterations >= b.MaxIterations {
		return true
	}
	if b.MaxDuration > 0 && b.startSet && now.Sub(b.started) >= b.MaxDuration {
		return true
	}
	return false
}

// Unbounded reports whether this budget has neither an iteration nor a
// duration bound (an `infer` directive run this way relies entirely on an
// external Abort signal, spec §4.I "infer").
func (b *Budget) Unbounded() bool { return b.MaxIterations <= 0 && b.MaxDuration <= 0 }
