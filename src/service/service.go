// Package service coordinates timer sharing in a room: it broadcasts the
// local timer over the session connection and keeps a short-lived view of
// peer timers.
package service

import (
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/seika-app/pomosync/src/types"
)

// Messenger is the part of the connection manager the coordinator uses.
type Messenger interface {
	SendMessage(msg types.Message) bool
	JoinRoom(roomID string)
	LeaveRoom()
	CurrentRoom() string
	IsConnected() bool
	Subscribe(msgType string, handler types.Handler) func()
}

// TimerSource supplies the local timer state.
type TimerSource interface {
	TimerData() types.TimerData
}

// Config configures a TimerSync. Start from DefaultConfig: zero durations are
// replaced by NewTimerSync, booleans are not.
type Config struct {
	// UserID identifies the local user; updates from it are ignored.
	UserID string
	// UserName is attached to every broadcast.
	UserName string
	// AutoSync broadcasts on every Tick. True in DefaultConfig.
	AutoSync bool
	// StalenessWindow is the peer expiry age. Default 30s.
	StalenessWindow time.Duration
	// SweepInterval is the eviction period. Default 10s.
	SweepInterval time.Duration
	// Clock defaults to the real clock.
	Clock clockwork.Clock

	OnPeerUpdate func(types.PeerSnapshot)
	OnUserJoined func(types.PeerPayload)
	OnUserLeft   func(types.PeerPayload)
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		AutoSync:        true,
		StalenessWindow: 30 * time.Second,
		SweepInterval:   10 * time.Second,
	}
}

// TimerSync is the sync coordinator.
type TimerSync struct {
	mgr    Messenger
	source TimerSource
	cfg    Config
	clock  clockwork.Clock
	logger zerolog.Logger

	mu     sync.Mutex
	peers  map[string]types.PeerSnapshot
	unsubs []func()
	stop   chan struct{}
}

// NewTimerSync creates a stopped coordinator.
func NewTimerSync(mgr Messenger, source TimerSource, cfg Config, logger zerolog.Logger) *TimerSync {
	def := DefaultConfig()
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = def.StalenessWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &TimerSync{
		mgr:    mgr,
		source: source,
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: logger.With().Str("component", "sync").Logger(),
		peers:  make(map[string]types.PeerSnapshot),
	}
}

// Start subscribes to room traffic and starts the staleness sweep.
func (s *TimerSync) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.unsubs = []func(){
		s.mgr.Subscribe(types.TypeTimerUpdate, s.handleTimerUpdate),
		s.mgr.Subscribe(types.TypeUserJoined, s.handleUserJoined),
		s.mgr.Subscribe(types.TypeUserLeft, s.handleUserLeft),
		s.mgr.Subscribe(types.TypeTimerSyncRequest, s.handleSyncRequest),
	}
	s.stop = make(chan struct{})
	go s.sweepLoop(s.clock.NewTicker(s.cfg.SweepInterval), s.stop)
}

// Stop unsubscribes and stops the sweep.
func (s *TimerSync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
	for _, unsub := range s.unsubs {
		unsub()
	}
	s.unsubs = nil
}

// JoinRoom joins roomID and forgets peers from any previous room.
func (s *TimerSync) JoinRoom(roomID string) {
	s.clearPeers()
	s.mgr.JoinRoom(roomID)
}

// LeaveRoom leaves the current room and forgets its peers.
func (s *TimerSync) LeaveRoom() {
	s.mgr.LeaveRoom()
	s.clearPeers()
}

func (s *TimerSync) clearPeers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = make(map[string]types.PeerSnapshot)
}

// Tick broadcasts the local timer when auto-sync is on, a room is joined,
// and the connection is open.
func (s *TimerSync) Tick() {
	if !s.cfg.AutoSync || !s.mgr.IsConnected() {
		return
	}
	s.broadcast(nil)
}

// SyncTimerState broadcasts the local timer merged with extra. It reports
// false when no room is joined.
func (s *TimerSync) SyncTimerState(extra map[string]any) bool {
	return s.broadcast(extra)
}

func (s *TimerSync) broadcast(extra map[string]any) bool {
	room := s.mgr.CurrentRoom()
	if room == "" {
		return false
	}
	data := s.source.TimerData()
	data.UserName = s.cfg.UserName
	if len(extra) > 0 {
		merged := make(map[string]any, len(data.Extra)+len(extra))
		for k, v := range data.Extra {
			merged[k] = v
		}
		for k, v := range extra {
			merged[k] = v
		}
		data.Extra = merged
	}
	msg, err := types.NewMessage(types.TypeTimerUpdate, types.TimerUpdatePayload{
		RoomID:    room,
		UserID:    s.cfg.UserID,
		TimerData: data,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("encode timer update")
		return false
	}
	s.mgr.SendMessage(msg)
	return true
}

func (s *TimerSync) handleTimerUpdate(msg types.Message) {
	var p types.TimerUpdatePayload
	if err := msg.Decode(&p); err != nil {
		s.logger.Warn().Err(err).Msg("dropping timer update")
		return
	}
	if p.UserID == "" || p.UserID == s.cfg.UserID {
		return
	}
	if room := s.mgr.CurrentRoom(); p.RoomID != "" && p.RoomID != room {
		s.logger.Debug().Str("room_id", p.RoomID).Msg("timer update for another room")
		return
	}

	name := p.TimerData.UserName
	if name == "" {
		name = p.UserID
	}
	snap := types.PeerSnapshot{
		UserID:      p.UserID,
		DisplayName: name,
		TimerData:   p.TimerData,
		LastSeenAt:  s.clock.Now(),
	}
	s.mu.Lock()
	s.peers[p.UserID] = snap
	s.mu.Unlock()

	if s.cfg.OnPeerUpdate != nil {
		s.cfg.OnPeerUpdate(snap)
	}
}

func (s *TimerSync) handleUserJoined(msg types.Message) {
	var p types.PeerPayload
	if err := msg.Decode(&p); err != nil {
		s.logger.Warn().Err(err).Msg("dropping user_joined")
		return
	}
	s.logger.Info().Str("user_id", p.UserID).Str("user_name", p.UserName).Msg("user joined")
	if s.cfg.OnUserJoined != nil {
		s.cfg.OnUserJoined(p)
	}
}

func (s *TimerSync) handleUserLeft(msg types.Message) {
	var p types.PeerPayload
	if err := msg.Decode(&p); err != nil {
		s.logger.Warn().Err(err).Msg("dropping user_left")
		return
	}
	s.mu.Lock()
	delete(s.peers, p.UserID)
	s.mu.Unlock()

	s.logger.Info().Str("user_id", p.UserID).Msg("user left")
	if s.cfg.OnUserLeft != nil {
		s.cfg.OnUserLeft(p)
	}
}

func (s *TimerSync) handleSyncRequest(msg types.Message) {
	var p types.PeerPayload
	if err := msg.Decode(&p); err == nil && p.UserID != "" && p.UserID == s.cfg.UserID {
		return
	}
	s.logger.Debug().Msg("sync requested by peer")
	s.SyncTimerState(nil)
}

func (s *TimerSync) sweepLoop(ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			s.sweep()
		}
	}
}

// sweep evicts peers not heard from within the staleness window.
func (s *TimerSync) sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.peers {
		if now.Sub(p.LastSeenAt) >= s.cfg.StalenessWindow {
			delete(s.peers, id)
			s.logger.Debug().Str("user_id", id).Msg("evicted stale peer")
		}
	}
}

// Peers returns the known peers ordered by user id.
func (s *TimerSync) Peers() []types.PeerSnapshot {
	s.mu.Lock()
	out := make([]types.PeerSnapshot, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, p)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Peer returns the snapshot for userID.
func (s *TimerSync) Peer(userID string) (types.PeerSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[userID]
	return p, ok
}
