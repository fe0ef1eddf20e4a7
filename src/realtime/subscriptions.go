package realtime

import (
	"sync"
	"time"

	"github.com/seika-app/pomosync/src/types"
)

// Subscribe registers handler for msgType, or for every frame when msgType
// is types.AnyType. The returned func removes the registration and is safe
// to call more than once.
func (m *Manager) Subscribe(msgType string, handler types.Handler) func() {
	m.subsMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	if m.subs[msgType] == nil {
		m.subs[msgType] = make(map[uint64]types.Handler)
	}
	m.subs[msgType][id] = handler
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			defer m.subsMu.Unlock()
			delete(m.subs[msgType], id)
			if len(m.subs[msgType]) == 0 {
				delete(m.subs, msgType)
			}
		})
	}
}

// OnStatusChange registers a status observer. Observers run after the
// transition, outside the Manager's lock.
func (m *Manager) OnStatusChange(handler StatusHandler) func() {
	m.subsMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.statusSubs[id] = handler
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.statusSubs, id)
			m.subsMu.Unlock()
		})
	}
}

func (m *Manager) emit(events []statusEvent) {
	if len(events) == 0 {
		return
	}
	m.subsMu.RLock()
	handlers := make([]StatusHandler, 0, len(m.statusSubs))
	for _, h := range m.statusSubs {
		handlers = append(handlers, h)
	}
	m.subsMu.RUnlock()

	for _, ev := range events {
		m.logger.Debug().Str("from", string(ev.from)).Str("to", string(ev.to)).Msg("status changed")
		for _, h := range handlers {
			m.safeCall(func() { h(ev.from, ev.to) })
		}
	}
}

// State returns a snapshot of the connection state.
func (m *Manager) State() types.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := types.ConnectionState{
		Status:             m.status,
		ConnectionAttempts: m.attempts,
		CurrentRoom:        m.currentRoom,
		QueueLength:        len(m.queue),
	}
	if !m.lastConnectedAt.IsZero() {
		t := m.lastConnectedAt
		st.LastConnectedAt = &t
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Status returns the current connection status.
func (m *Manager) Status() types.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsConnected reports whether the connection is open.
func (m *Manager) IsConnected() bool {
	return m.Status() == types.StatusConnected
}

// ConnectionAttempts returns the consecutive failed attempt count.
func (m *Manager) ConnectionAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// CurrentRoom returns the joined room, or "".
func (m *Manager) CurrentRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentRoom
}

// QueuedMessages returns a copy of the outbound queue.
func (m *Manager) QueuedMessages() []types.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Message, len(m.queue))
	copy(out, m.queue)
	return out
}

// LastConnectedAt returns when the connection last opened.
func (m *Manager) LastConnectedAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConnectedAt, !m.lastConnectedAt.IsZero()
}

// LastError returns the error behind the latest failure, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}
