package realtime

import (
	"encoding/json"

	"github.com/seika-app/pomosync/src/types"
)

// dispatch decodes one inbound frame and fans it out. Malformed frames are
// logged and dropped; pong frames are consumed here.
func (m *Manager) dispatch(data []byte) {
	m.metrics.inbound()

	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		m.metrics.dropped()
		m.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
		return
	}
	if msg.Type == "" {
		m.metrics.dropped()
		m.logger.Warn().Msg("dropping frame without type")
		return
	}
	if msg.Type == types.TypePong {
		return
	}
	msg.Raw = json.RawMessage(data)

	m.subsMu.RLock()
	handlers := make([]types.Handler, 0, len(m.subs[msg.Type])+len(m.subs[types.AnyType]))
	for _, h := range m.subs[msg.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range m.subs[types.AnyType] {
		handlers = append(handlers, h)
	}
	m.subsMu.RUnlock()

	if len(handlers) == 0 {
		m.logger.Debug().Str("type", msg.Type).Msg("no handler")
		return
	}
	for _, h := range handlers {
		m.safeCall(func() { h(msg) })
	}
}

func (m *Manager) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("handler panicked")
		}
	}()
	fn()
}
