package realtime

import (
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/seika-app/pomosync/src/types"
)

// newPolicy builds the reconnect delay policy. Both policies are bounded;
// the attempt cap is enforced by the Manager.
func newPolicy(o Options) backoff.BackOff {
	if o.Backoff == BackoffExponential {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = o.ReconnectInterval
		b.MaxInterval = o.MaxReconnectDelay
		b.Multiplier = 2
		b.RandomizationFactor = o.ReconnectJitter
		b.Reset()
		return b
	}
	return backoff.NewConstantBackOff(o.ReconnectInterval)
}

// nextDelayLocked returns the wait before the next attempt.
func (m *Manager) nextDelayLocked() time.Duration {
	d := m.policy.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return m.opts.MaxReconnectDelay
	}
	return d
}

// scheduleReconnectLocked arms the reconnect timer, or gives up once the
// attempt budget is spent.
func (m *Manager) scheduleReconnectLocked(cause error) {
	if m.attempts >= m.opts.MaxReconnectAttempts {
		m.lastErr = wrapCause(ErrRetriesExhausted, cause)
		m.logger.Error().
			Err(cause).
			Int("attempts", m.attempts).
			Msg("reconnect attempts exhausted")
		m.setStatusLocked(types.StatusError)
		return
	}
	m.attempts++
	delay := m.nextDelayLocked()
	m.lastErr = cause
	m.setStatusLocked(types.StatusReconnecting)
	m.metrics.reconnectScheduled()
	m.reconnectGen++
	gen := m.reconnectGen
	m.reconnectTimer = m.clock.AfterFunc(delay, func() { m.fireReconnect(gen) })

	m.logger.Warn().
		Err(cause).
		Int("attempt", m.attempts).
		Int("max_attempts", m.opts.MaxReconnectAttempts).
		Dur("delay", delay).
		Msg("connection lost, reconnect scheduled")
}

// fireReconnect runs a reconnect attempt unless the timer that scheduled it
// was cancelled or replaced while the callback waited for the lock.
func (m *Manager) fireReconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.reconnectGen || m.status != types.StatusReconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	m.connectLocked()
	events := m.takeEventsLocked()
	m.mu.Unlock()
	m.emit(events)
}

func (m *Manager) cancelReconnectLocked() {
	m.reconnectGen++
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}
