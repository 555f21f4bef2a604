package timerwheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetAndTick_Fires(t *testing.T) {
	w := New()
	w.Set(1, 5.0)

	expired := w.Tick(3.0)
	assert.Empty(t, expired)

	expired = w.Tick(2.0)
	assert.Equal(t, []uint16{1}, expired)

	// Once fired, it's gone.
	expired = w.Tick(100.0)
	assert.Empty(t, expired)
}

func TestCancel_NeverSetIsNoOp(t *testing.T) {
	w := New()
	w.Cancel(99)
	expired := w.Tick(1000.0)
	assert.Empty(t, expired)
}

func TestSetCancelTick_DoesNotFire(t *testing.T) {
	w := New()
	w.Set(1, 5.0)
	w.Cancel(1)

	expired := w.Tick(10.0)
	assert.Empty(t, expired)
}

func TestSetReplacesExistingID(t *testing.T) {
	w := New()
	w.Set(1, 5.0)
	w.Set(1, 10.0) // replace with a longer duration

	// Only 5s of the original duration would have fired by now, but the
	// replacement resets the clock: 7s isn't enough for a 10s timer.
	expired := w.Tick(7.0)
	assert.Empty(t, expired)

	expired = w.Tick(3.0)
	assert.Equal(t, []uint16{1}, expired)
}

func TestTick_MultipleTimersInsertionOrder(t *testing.T) {
	w := New()
	w.Set(5, 1.0)
	w.Set(2, 1.0)
	w.Set(8, 1.0)

	expired := w.Tick(1.0)
	assert.Equal(t, []uint16{5, 2, 8}, expired)
}

func TestTick_OnlySomeExpire(t *testing.T) {
	w := New()
	w.Set(1, 1.0)
	w.Set(2, 5.0)

	expired := w.Tick(2.0)
	assert.Equal(t, []uint16{1}, expired)

	expired = w.Tick(3.0)
	assert.Equal(t, []uint16{2}, expired)
}
