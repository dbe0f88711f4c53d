package circuit

import (
	"sync"
	"testing"
	"time"
)

// TestTripAndClearIndependent tests that breakers trip and clear independently
func TestTripAndClearIndependent(t *testing.T) {
	bs := NewBreakerSet()

	bs.Trip(BreakerDrawdown, "drawdown exceeded")
	bs.Trip(BreakerErrorRate, "too many failures")

	if !bs.IsActive(BreakerDrawdown) || !bs.IsActive(BreakerErrorRate) {
		t.Fatal("expected both breakers active")
	}

	bs.Clear(BreakerDrawdown)

	if bs.IsActive(BreakerDrawdown) {
		t.Error("drawdown breaker should be cleared")
	}
	if !bs.IsActive(BreakerErrorRate) {
		t.Error("error rate breaker should remain active")
	}
}

// TestAnyActiveStableOrder tests that AnyActive returns the first name in
// lexicographic order when several breakers are tripped
func TestAnyActiveStableOrder(t *testing.T) {
	bs := NewBreakerSet()

	if _, _, active := bs.AnyActive(); active {
		t.Fatal("empty set should report no active breaker")
	}

	bs.Trip(BreakerTradeRate, "rate limit")
	bs.Trip(BreakerDailyLoss, "daily loss limit")

	name, reason, active := bs.AnyActive()
	if !active {
		t.Fatal("expected an active breaker")
	}
	if name != BreakerDailyLoss {
		t.Errorf("expected %s first, got %s", BreakerDailyLoss, name)
	}
	if reason != "daily loss limit" {
		t.Errorf("unexpected reason %q", reason)
	}
}

// TestTripCallbackFiresOnce tests that re-tripping an active breaker updates
// the reason without re-firing the callback
func TestTripCallbackFiresOnce(t *testing.T) {
	bs := NewBreakerSet()

	var mu sync.Mutex
	trips := 0
	bs.OnTrip(func(name, reason string) {
		mu.Lock()
		trips++
		mu.Unlock()
	})

	bs.Trip(BreakerDrawdown, "first")
	bs.Trip(BreakerDrawdown, "second")

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := trips
		mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("trip callback never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	n := trips
	mu.Unlock()
	if n != 1 {
		t.Errorf("expected 1 trip callback, got %d", n)
	}

	if _, reason, _ := bs.AnyActive(); reason != "second" {
		t.Errorf("expected updated reason, got %q", reason)
	}
}

// TestClearAll tests that ClearAll fires the clear callback per breaker
func TestClearAll(t *testing.T) {
	bs := NewBreakerSet()

	var mu sync.Mutex
	cleared := make(map[string]bool)
	bs.OnClear(func(name string) {
		mu.Lock()
		cleared[name] = true
		mu.Unlock()
	})

	bs.Trip(BreakerDrawdown, "x")
	bs.Trip(BreakerDailyLoss, "y")
	bs.ClearAll()

	if _, _, active := bs.AnyActive(); active {
		t.Fatal("expected no active breakers after ClearAll")
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		done := cleared[BreakerDrawdown] && cleared[BreakerDailyLoss]
		mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("clear callbacks did not fire for all breakers")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestClearInactiveNoCallback tests that clearing an unknown or inactive
// breaker is a no-op
func TestClearInactiveNoCallback(t *testing.T) {
	bs := NewBreakerSet()

	fired := make(chan string, 1)
	bs.OnClear(func(name string) { fired <- name })

	bs.Clear("nonexistent")
	bs.Trip(BreakerDrawdown, "x")
	bs.Clear(BreakerDrawdown)
	bs.Clear(BreakerDrawdown)

	select {
	case name := <-fired:
		if name != BreakerDrawdown {
			t.Errorf("unexpected clear callback for %s", name)
		}
	case <-time.After(time.Second):
		t.Fatal("expected one clear callback")
	}

	select {
	case name := <-fired:
		t.Errorf("unexpected second clear callback for %s", name)
	case <-time.After(50 * time.Millisecond):
	}
}
