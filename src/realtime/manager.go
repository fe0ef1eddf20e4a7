// Package realtime maintains the persistent session connection: credential
// handshake, bounded reconnection, an outbound queue that survives drops,
// room membership, and typed fan-out of inbound frames.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/seika-app/pomosync/src/transport"
	"github.com/seika-app/pomosync/src/types"
)

var (
	// ErrNoCredential means Connect found no stored credential.
	ErrNoCredential = errors.New("no credential available")
	// ErrAuthRejected means the server refused the credential.
	ErrAuthRejected = errors.New("credential rejected by server")
	// ErrRetriesExhausted means the reconnect budget is spent.
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
)

// Dialer opens a connection to the session server.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (types.Conn, error)
}

// CredentialSource supplies and purges the connection credential.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
	PurgeCredential(ctx context.Context) error
}

// StatusHandler observes status transitions.
type StatusHandler func(from, to types.Status)

type statusEvent struct {
	from, to types.Status
}

// Manager owns at most one live session connection.
type Manager struct {
	id      string
	opts    Options
	dialer  Dialer
	creds   CredentialSource
	clock   clockwork.Clock
	logger  zerolog.Logger
	metrics *Metrics
	policy  backoff.BackOff

	mu              sync.Mutex
	status          types.Status
	attempts        int
	lastConnectedAt time.Time
	lastErr         error
	currentRoom     string
	queue           []types.Message
	conn            types.Conn
	connGen         uint64
	dialCancel      context.CancelFunc
	reconnectTimer  clockwork.Timer
	reconnectGen    uint64
	heartbeatStop   chan struct{}
	events          []statusEvent

	subsMu     sync.RWMutex
	subs       map[string]map[uint64]types.Handler
	statusSubs map[uint64]StatusHandler
	nextSubID  uint64
}

// New creates a disconnected Manager.
func New(opts Options, dialer Dialer, creds CredentialSource, logger zerolog.Logger) *Manager {
	opts = opts.withDefaults()
	id := uuid.New().String()
	return &Manager{
		id:         id,
		opts:       opts,
		dialer:     dialer,
		creds:      creds,
		clock:      opts.Clock,
		logger:     logger.With().Str("component", "realtime").Str("client_id", id).Logger(),
		metrics:    opts.Metrics,
		policy:     newPolicy(opts),
		status:     types.StatusDisconnected,
		subs:       make(map[string]map[uint64]types.Handler),
		statusSubs: make(map[uint64]StatusHandler),
	}
}

// ID returns the instance identifier used in logs.
func (m *Manager) ID() string { return m.id }

// Connect opens the connection. It is a no-op while connecting or connected,
// and moves straight to StatusError when no credential is stored.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.status == types.StatusError || m.status == types.StatusDisconnected {
		m.attempts = 0
		m.policy.Reset()
	}
	m.connectLocked()
	events := m.takeEventsLocked()
	m.mu.Unlock()
	m.emit(events)
}

func (m *Manager) connectLocked() {
	if m.status == types.StatusConnected || m.status == types.StatusConnecting {
		return
	}
	cred, err := m.credentialLocked()
	if err != nil {
		m.cancelReconnectLocked()
		m.lastErr = wrapCause(ErrNoCredential, err)
		m.logger.Error().Err(err).Msg("cannot connect without a credential")
		m.setStatusLocked(types.StatusError)
		return
	}
	rawURL, err := transport.WithCredential(m.opts.ServerURL, m.opts.CredentialParam, cred)
	if err != nil {
		m.cancelReconnectLocked()
		m.lastErr = err
		m.logger.Error().Err(err).Msg("invalid server url")
		m.setStatusLocked(types.StatusError)
		return
	}

	m.cancelReconnectLocked()
	m.connGen++
	gen := m.connGen
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	m.dialCancel = cancel
	m.setStatusLocked(types.StatusConnecting)
	m.logger.Info().Int("attempt", m.attempts).Msg("connecting")

	go m.dial(ctx, cancel, gen, rawURL)
}

func (m *Manager) credentialLocked() (string, error) {
	if m.creds == nil {
		return "", errors.New("no credential source configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.CredentialTimeout)
	defer cancel()
	return m.creds.Credential(ctx)
}

func (m *Manager) dial(ctx context.Context, cancel context.CancelFunc, gen uint64, rawURL string) {
	conn, err := m.dialer.Dial(ctx, rawURL)
	cancel()

	m.mu.Lock()
	if gen != m.connGen || m.status != types.StatusConnecting {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	m.dialCancel = nil
	switch {
	case err == nil:
		m.conn = conn
		m.openLocked(gen)
	case errors.Is(err, transport.ErrHandshakeRejected):
		m.authRejectedLocked(err)
	default:
		m.scheduleReconnectLocked(err)
	}
	events := m.takeEventsLocked()
	m.mu.Unlock()
	m.emit(events)

	if err == nil {
		go m.readLoop(gen, conn)
	}
}

// openLocked runs the on-open sequence. Holding the lock for the whole
// flush keeps later sends from overtaking queued ones.
func (m *Manager) openLocked(gen uint64) {
	m.attempts = 0
	m.policy.Reset()
	m.lastErr = nil
	m.lastConnectedAt = m.clock.Now()
	m.setStatusLocked(types.StatusConnected)
	m.logger.Info().Int("queued", len(m.queue)).Msg("connected")

	flushed := m.flushLocked()
	if m.opts.RejoinOnReconnect && m.currentRoom != "" && !carriesJoin(flushed, m.currentRoom) {
		m.logger.Debug().Str("room_id", m.currentRoom).Msg("rejoining room")
		m.sendLocked(m.roomMessage(types.TypeJoinRoom, m.currentRoom))
	}
	m.startHeartbeatLocked(gen)
}

// flushLocked writes the queue in FIFO order and returns what was written.
// On a write failure the unwritten tail stays queued for the next open.
func (m *Manager) flushLocked() []types.Message {
	pending := m.queue
	m.queue = nil
	for i, msg := range pending {
		if err := m.conn.WriteJSON(msg); err != nil {
			m.logger.Warn().Err(err).Int("remaining", len(pending)-i).Msg("queue flush interrupted")
			m.queue = pending[i:]
			m.metrics.setQueueDepth(len(m.queue))
			return pending[:i]
		}
		m.metrics.outbound()
	}
	m.metrics.setQueueDepth(0)
	return pending
}

func carriesJoin(msgs []types.Message, roomID string) bool {
	for _, msg := range msgs {
		if msg.Type != types.TypeJoinRoom {
			continue
		}
		var p types.RoomPayload
		if err := msg.Decode(&p); err == nil && p.RoomID == roomID {
			return true
		}
	}
	return false
}

func (m *Manager) readLoop(gen uint64, conn types.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		m.dispatch(data)
	}
}

// handleClose applies the close policy: 1000 settles in disconnected, the
// auth codes are terminal, anything else reconnects within budget.
func (m *Manager) handleClose(gen uint64, err error) {
	code := types.CloseAbnormal
	var ce *types.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}

	m.mu.Lock()
	if gen != m.connGen || m.conn == nil {
		m.mu.Unlock()
		return
	}
	_ = m.conn.Close()
	m.conn = nil
	m.stopHeartbeatLocked()

	switch {
	case types.IsAuthClose(code):
		m.authRejectedLocked(err)
	case code == types.CloseNormal:
		m.logger.Info().Msg("server closed the connection")
		m.setStatusLocked(types.StatusDisconnected)
	default:
		m.scheduleReconnectLocked(err)
	}
	events := m.takeEventsLocked()
	m.mu.Unlock()
	m.emit(events)
}

// authRejectedLocked purges the credential and stops for good. The queue is
// kept so a fresh credential can deliver it.
func (m *Manager) authRejectedLocked(cause error) {
	m.cancelReconnectLocked()
	m.lastErr = wrapCause(ErrAuthRejected, cause)
	if m.creds != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.CredentialTimeout)
		if err := m.creds.PurgeCredential(ctx); err != nil {
			m.logger.Error().Err(err).Msg("failed to purge rejected credential")
		}
		cancel()
	}
	m.logger.Error().Err(cause).Int("queued", len(m.queue)).Msg("credential rejected")
	m.setStatusLocked(types.StatusError)
}

// Disconnect cancels the reconnect timer, stops the heartbeat, and closes
// the connection, then clears attempts, room, and queue.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.cancelReconnectLocked()
	m.stopHeartbeatLocked()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.connGen++
	if m.conn != nil {
		if m.currentRoom != "" {
			leave := m.roomMessage(types.TypeLeaveRoom, m.currentRoom)
			leave.Stamp(m.clock.Now())
			if err := m.conn.WriteJSON(leave); err != nil {
				m.logger.Debug().Err(err).Msg("leave_room on disconnect not delivered")
			}
		}
		if err := m.conn.CloseWithCode(types.CloseNormal, "Intentional disconnect"); err != nil {
			m.logger.Debug().Err(err).Msg("close handshake failed")
		}
		m.conn = nil
	}
	m.attempts = 0
	m.policy.Reset()
	m.currentRoom = ""
	m.queue = nil
	m.lastErr = nil
	m.metrics.setQueueDepth(0)
	m.setStatusLocked(types.StatusDisconnected)
	m.logger.Info().Msg("disconnected")
	events := m.takeEventsLocked()
	m.mu.Unlock()
	m.emit(events)
}

// SendMessage stamps msg and writes it, or queues it when the connection is
// not open. It reports whether the message went out immediately.
func (m *Manager) SendMessage(msg types.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendLocked(msg)
}

func (m *Manager) sendLocked(msg types.Message) bool {
	msg.Stamp(m.clock.Now())
	// A non-empty queue while connected means a flush was interrupted; keep
	// FIFO order by queueing behind it.
	if m.conn != nil && m.status == types.StatusConnected && len(m.queue) == 0 {
		err := m.conn.WriteJSON(msg)
		if err == nil {
			m.metrics.outbound()
			return true
		}
		m.logger.Warn().Err(err).Str("type", msg.Type).Msg("write failed, queueing message")
	}
	m.queue = append(m.queue, msg)
	m.metrics.setQueueDepth(len(m.queue))
	m.logger.Debug().Str("type", msg.Type).Int("queued", len(m.queue)).Msg("message queued")
	return false
}

// JoinRoom records roomID as the current room and sends join_room.
func (m *Manager) JoinRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentRoom = roomID
	m.sendLocked(m.roomMessage(types.TypeJoinRoom, roomID))
	m.logger.Info().Str("room_id", roomID).Msg("joining room")
}

// LeaveRoom sends leave_room for the current room and clears it.
func (m *Manager) LeaveRoom() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.currentRoom == "" {
		return
	}
	m.sendLocked(m.roomMessage(types.TypeLeaveRoom, m.currentRoom))
	m.logger.Info().Str("room_id", m.currentRoom).Msg("leaving room")
	m.currentRoom = ""
}

func (m *Manager) roomMessage(msgType, roomID string) types.Message {
	msg, _ := types.NewMessage(msgType, types.RoomPayload{RoomID: roomID, UserID: m.opts.UserID})
	return msg
}

// NotifyVisible is the hook for the application regaining focus.
func (m *Manager) NotifyVisible() { m.passiveConnect("visible") }

// NotifyOnline is the hook for the network coming back.
func (m *Manager) NotifyOnline() { m.passiveConnect("online") }

// passiveConnect reconnects only from a settled disconnected state with a
// credential present, and never races a scheduled reconnect.
func (m *Manager) passiveConnect(trigger string) {
	m.mu.Lock()
	if m.status != types.StatusDisconnected || m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}
	if _, err := m.credentialLocked(); err != nil {
		m.mu.Unlock()
		return
	}
	m.logger.Debug().Str("trigger", trigger).Msg("passive reconnect")
	m.connectLocked()
	events := m.takeEventsLocked()
	m.mu.Unlock()
	m.emit(events)
}

func (m *Manager) setStatusLocked(s types.Status) {
	if m.status == s {
		return
	}
	m.events = append(m.events, statusEvent{from: m.status, to: s})
	m.status = s
	m.metrics.setStatus(s)
}

func (m *Manager) takeEventsLocked() []statusEvent {
	events := m.events
	m.events = nil
	return events
}

func wrapCause(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}
