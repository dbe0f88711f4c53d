package coordinator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// tokenState is the per-address lifecycle:
// idle -> queued -> active -> cooling_down -> idle.
type tokenState int

const (
	stateQueued tokenState = iota
	stateActive
	stateCooling
)

// Config holds coordinator configuration
type Config struct {
	MaxConcurrent int           `json:"max_concurrent"`
	Cooldown      time.Duration `json:"cooldown"`
}

// DefaultConfig returns the coordinator defaults
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 3,
		Cooldown:      5 * time.Minute,
	}
}

// Status is an observability snapshot of the three state sets.
type Status struct {
	Queued  []string `json:"queued"`
	Active  []string `json:"active"`
	Cooling []string `json:"cooling_down"`
}

// Coordinator bounds total concurrent per-token work and enforces a cooldown
// after completion so the same token cannot be re-dispatched too soon. An
// address belongs to at most one of the queued/active/cooling sets at a time.
type Coordinator struct {
	mu         sync.Mutex
	cfg        Config
	queue      []string // FIFO
	states     map[string]tokenState
	cooldownAt map[string]time.Time
	dispatches chan string
	logger     zerolog.Logger
}

// New creates a coordinator. Dispatched addresses are delivered on the
// Dispatches channel; the channel is buffered to the concurrency bound, so a
// send never blocks while the invariant holds.
func New(cfg Config, logger zerolog.Logger) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Coordinator{
		cfg:        cfg,
		states:     make(map[string]tokenState),
		cooldownAt: make(map[string]time.Time),
		dispatches: make(chan string, cfg.MaxConcurrent),
		logger:     logger.With().Str("component", "Coordinator").Logger(),
	}
}

// Dispatches returns the channel of addresses granted an active slot.
func (c *Coordinator) Dispatches() <-chan string {
	return c.dispatches
}

// EnqueueToken requests attention for a token. Duplicates of queued or
// active tokens are no-ops; tokens still cooling down are dropped and must
// be re-enqueued after the cooldown expires.
func (c *Coordinator) EnqueueToken(address string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.states[address]; ok {
		if state == stateCooling && time.Now().After(c.cooldownAt[address]) {
			delete(c.states, address)
			delete(c.cooldownAt, address)
		} else {
			return false
		}
	}

	c.states[address] = stateQueued
	c.queue = append(c.queue, address)
	c.dispatchLocked()
	return true
}

// CompleteToken moves an active token into cooldown. Completing a token that
// is not active is a no-op.
func (c *Coordinator) CompleteToken(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states[address] != stateActive {
		return
	}
	c.states[address] = stateCooling
	c.cooldownAt[address] = time.Now().Add(c.cfg.Cooldown)
	c.dispatchLocked()
}

// dispatchLocked pops queued tokens into active slots while capacity
// remains. Caller holds the lock.
func (c *Coordinator) dispatchLocked() {
	for len(c.queue) > 0 && c.activeCountLocked() < c.cfg.MaxConcurrent {
		address := c.queue[0]
		c.queue = c.queue[1:]
		c.states[address] = stateActive
		c.dispatches <- address
		c.logger.Debug().Str("address", address).Msg("token dispatched")
	}
}

func (c *Coordinator) activeCountLocked() int {
	n := 0
	for _, s := range c.states {
		if s == stateActive {
			n++
		}
	}
	return n
}

// SweepCooldowns releases tokens whose cooldown has expired back to idle.
// Expiry is also checked lazily on enqueue; the sweep just keeps the cooling
// set from growing unbounded.
func (c *Coordinator) SweepCooldowns() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for address, state := range c.states {
		if state == stateCooling && now.After(c.cooldownAt[address]) {
			delete(c.states, address)
			delete(c.cooldownAt, address)
		}
	}
}

// GetStatus returns the current queued/active/cooling sets.
func (c *Coordinator) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{Queued: append([]string(nil), c.queue...)}
	for address, state := range c.states {
		switch state {
		case stateActive:
			status.Active = append(status.Active, address)
		case stateCooling:
			status.Cooling = append(status.Cooling, address)
		}
	}
	return status
}
