package realtime

import (
	"github.com/jonboulle/clockwork"
	"github.com/seika-app/pomosync/src/types"
)

func (m *Manager) startHeartbeatLocked(gen uint64) {
	if !m.opts.Heartbeat {
		return
	}
	m.stopHeartbeatLocked()
	stop := make(chan struct{})
	m.heartbeatStop = stop
	ticker := m.clock.NewTicker(m.opts.HeartbeatInterval)
	go m.heartbeatLoop(gen, ticker, stop)
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

// heartbeatLoop writes ping frames straight to the live connection. Pings
// are never queued.
func (m *Manager) heartbeatLoop(gen uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			m.mu.Lock()
			if gen != m.connGen || m.conn == nil {
				m.mu.Unlock()
				return
			}
			ping := types.Message{Type: types.TypePing}
			ping.Stamp(m.clock.Now())
			if err := m.conn.WriteJSON(ping); err != nil {
				m.logger.Warn().Err(err).Msg("heartbeat write failed")
			} else {
				m.metrics.outbound()
			}
			m.mu.Unlock()
		}
	}
}
