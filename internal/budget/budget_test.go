package budget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIterationBudgetExhausts(t *testing.T) {
	b := New(3, 0)
	b.Start(time.Now())
	for i := 0; i < 3; i++ {
		assert.False(t, b.Done(time.Now()))
		b.Tick()
	}
	assert.True(t, b.Done(time.Now()))
	assert.Equal(t, 3, b.Iterations())
}

func TestDurationBudgetExhausts(t *testing.T) {
	b := New(0, 10*time.Millisecond)
	b.Start(time.Now())
	assert.False(t, b.Done(time.Now()))
	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Done(time.Now()))
}

func TestUnboundedBudgetNeverDone(t *testing.T) {
	b := New(0, 0)
	b.Start(time.Now())
	assert.True(t, b.Unbounded())
	assert.False(t, b.Done(time.Now()))
}

func TestBoundedBudgetIsNotUnbounded(t *testing.T) {
	b := New(5, 0)
	assert.False(t, b.Unbounded())
}
