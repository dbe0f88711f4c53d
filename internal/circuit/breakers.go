package circuit

import (
	"sort"
	"sync"
	"time"
)

// Well-known breaker names. Each breaker is independently tripped and
// independently cleared.
const (
	BreakerDrawdown  = "drawdown"
	BreakerDailyLoss = "daily_loss"
	BreakerErrorRate = "error_rate"
	BreakerTradeRate = "trade_rate"
)

// breaker holds the state of a single named gate.
type breaker struct {
	active    bool
	reason    string
	trippedAt time.Time
}

// BreakerSet is a registry of named circuit breakers. Once any breaker is
// active, trading is blocked until that breaker is cleared.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*breaker
	onTrip   func(name, reason string)
	onClear  func(name string)
}

// NewBreakerSet creates an empty breaker registry.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*breaker),
	}
}

// OnTrip sets a callback invoked whenever a breaker trips.
func (bs *BreakerSet) OnTrip(handler func(name, reason string)) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.onTrip = handler
}

// OnClear sets a callback invoked whenever a breaker clears.
func (bs *BreakerSet) OnClear(handler func(name string)) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.onClear = handler
}

// Trip activates a breaker with a reason. Tripping an already-active breaker
// updates the reason but does not re-fire the callback.
func (bs *BreakerSet) Trip(name, reason string) {
	bs.mu.Lock()
	b, ok := bs.breakers[name]
	if !ok {
		b = &breaker{}
		bs.breakers[name] = b
	}
	alreadyActive := b.active
	b.active = true
	b.reason = reason
	if !alreadyActive {
		b.trippedAt = time.Now()
	}
	handler := bs.onTrip
	bs.mu.Unlock()

	if !alreadyActive && handler != nil {
		go handler(name, reason)
	}
}

// Clear deactivates a single breaker by name.
func (bs *BreakerSet) Clear(name string) {
	bs.mu.Lock()
	b, ok := bs.breakers[name]
	wasActive := ok && b.active
	if wasActive {
		b.active = false
		b.reason = ""
	}
	handler := bs.onClear
	bs.mu.Unlock()

	if wasActive && handler != nil {
		go handler(name)
	}
}

// ClearAll deactivates every breaker.
func (bs *BreakerSet) ClearAll() {
	bs.mu.Lock()
	var cleared []string
	for name, b := range bs.breakers {
		if b.active {
			b.active = false
			b.reason = ""
			cleared = append(cleared, name)
		}
	}
	handler := bs.onClear
	bs.mu.Unlock()

	if handler != nil {
		for _, name := range cleared {
			go handler(name)
		}
	}
}

// IsActive reports whether a specific breaker is tripped.
func (bs *BreakerSet) IsActive(name string) bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	b, ok := bs.breakers[name]
	return ok && b.active
}

// AnyActive returns the name and reason of an active breaker, if any. When
// several are active the lexicographically first name is returned so the
// answer is stable.
func (bs *BreakerSet) AnyActive() (string, string, bool) {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	var names []string
	for name, b := range bs.breakers {
		if b.active {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", "", false
	}
	sort.Strings(names)
	return names[0], bs.breakers[names[0]].reason, true
}

// Active returns a snapshot map of breaker name to active flag.
func (bs *BreakerSet) Active() map[string]bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	out := make(map[string]bool, len(bs.breakers))
	for name, b := range bs.breakers {
		out[name] = b.active
	}
	return out
}

// Stats returns per-breaker details for observability.
func (bs *BreakerSet) Stats() map[string]interface{} {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	out := make(map[string]interface{}, len(bs.breakers))
	for name, b := range bs.breakers {
		out[name] = map[string]interface{}{
			"active":     b.active,
			"reason":     b.reason,
			"tripped_at": b.trippedAt,
		}
	}
	return out
}
