package completion

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var first, second atomic.Int32
	d.Trigger(func() { first.Add(1) })
	d.Trigger(func() { second.Add(1) })

	time.Sleep(150 * time.Millisecond)
	if first.Load() != 0 {
		t.Error("superseded trigger fired")
	}
	if second.Load() != 1 {
		t.Errorf("latest trigger fired %d times, want 1", second.Load())
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired atomic.Int32
	d.Trigger(func() { fired.Add(1) })
	d.Stop()

	time.Sleep(150 * time.Millisecond)
	if fired.Load() != 0 {
		t.Error("stopped trigger fired")
	}
}

func TestDebouncerFiresAfterQuiet(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	done := make(chan struct{})
	d.Trigger(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced callback never fired")
	}
}
