package risk

import (
	"fmt"
	"time"

	"solana-sniper-bot/internal/circuit"
)

// StartTradeExecution brackets the start of an attempted trade for
// error-rate accounting. The id must be passed to CompleteTradeExecution
// exactly once; executions never completed are swept as failures after the
// configured timeout.
func (m *Manager) StartTradeExecution(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions[id] = &execution{startedAt: time.Now()}
}

// CompleteTradeExecution closes an execution bracket and feeds the trailing
// error-rate window. Completing an unknown or already-completed id is a
// no-op.
func (m *Manager) CompleteTradeExecution(id string, success bool, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executions[id]; !ok {
		return
	}
	delete(m.executions, id)
	m.recordOutcome(success)

	if !success && errorMsg != "" {
		m.logger.Debug().Str("execution_id", id).Str("error", errorMsg).Msg("trade execution failed")
	}
}

// SweepAbandonedExecutions completes, as failures, executions started longer
// ago than the execution timeout. Returns how many were swept.
func (m *Manager) SweepAbandonedExecutions() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.cfg.ExecutionTimeout)
	swept := 0
	for id, e := range m.executions {
		if e.startedAt.Before(cutoff) {
			delete(m.executions, id)
			m.recordOutcome(false)
			swept++
			m.logger.Warn().Str("execution_id", id).Msg("abandoned trade execution counted as failure")
		}
	}
	return swept
}

// recordOutcome appends to the trailing outcome window and re-evaluates the
// error-rate breaker. Caller holds the lock.
func (m *Manager) recordOutcome(success bool) {
	now := time.Now()
	m.outcomes = append(m.outcomes, outcome{at: now, success: success})

	// Drop outcomes outside the trailing window.
	cutoff := now.Add(-m.cfg.ErrorRateWindow)
	firstValid := 0
	for firstValid < len(m.outcomes) && m.outcomes[firstValid].at.Before(cutoff) {
		firstValid++
	}
	m.outcomes = m.outcomes[firstValid:]

	if len(m.outcomes) < m.cfg.ErrorRateMinSamples {
		return
	}
	failures := 0
	for _, o := range m.outcomes {
		if !o.success {
			failures++
		}
	}
	rate := float64(failures) / float64(len(m.outcomes))
	if rate > m.cfg.MaxErrorRate {
		m.breakers.Trip(circuit.BreakerErrorRate,
			fmt.Sprintf("error rate %.0f%% over %d attempts", rate*100, len(m.outcomes)))
	}
}

// PendingExecutions returns the number of open execution brackets.
func (m *Manager) PendingExecutions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.executions)
}
