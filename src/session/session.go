// Package session runs the pomodoro cycle on top of the timer engine:
// modes, user settings, pomodoro counting and daily study time.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/seika-app/pomosync/src/store"
	"github.com/seika-app/pomosync/src/timer"
	"github.com/seika-app/pomosync/src/types"
)

// Mode is the kind of session being timed.
type Mode string

const (
	ModePomodoro   Mode = "pomodoro"
	ModeShortBreak Mode = "shortBreak"
	ModeLongBreak  Mode = "longBreak"
	ModeFree       Mode = "free"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModePomodoro, ModeShortBreak, ModeLongBreak, ModeFree:
		return m, nil
	}
	return "", fmt.Errorf("unknown session mode %q", s)
}

// Status is the session lifecycle state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// DefaultFreeLimit bounds a free-mode count-up run.
const DefaultFreeLimit = 60 * 60

const storeTimeout = 2 * time.Second

// Config configures a Session.
type Config struct {
	// Store persists settings and daily study time. Required.
	Store store.Store
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// FreeLimit is the count-up bound in seconds for ModeFree.
	// Default DefaultFreeLimit.
	FreeLimit int
	// OnTick receives the timer data after every recomputation.
	OnTick func(types.TimerData)
	// OnComplete is called when a run reaches its bound.
	OnComplete func(Mode)
}

// State is a snapshot of the session.
type State struct {
	Mode              Mode     `json:"mode"`
	Status            Status   `json:"status"`
	CurrentTime       int      `json:"currentTime"`
	TotalTime         int      `json:"totalTime"`
	PomodoroCount     int      `json:"pomodoroCount"`
	DailyStudyMinutes int      `json:"dailyStudyMinutes"`
	Settings          Settings `json:"settings"`
}

// Session owns one timer at a time, rebuilt whenever the mode changes.
type Session struct {
	cfg    Config
	clock  clockwork.Clock
	logger zerolog.Logger

	mu            sync.Mutex
	settings      Settings
	mode          Mode
	status        Status
	total         int
	pomodoroCount int
	studyMinutes  int
	studyDay      string
	timer         *timer.Timer
	run           uint64
	startedAt     time.Time
}

// New loads persisted settings and returns an idle pomodoro session.
// Unreadable settings fall back to defaults and are logged.
func New(cfg Config, logger zerolog.Logger) (*Session, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("session: store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.FreeLimit <= 0 {
		cfg.FreeLimit = DefaultFreeLimit
	}
	s := &Session{
		cfg:    cfg,
		clock:  cfg.Clock,
		logger: logger.With().Str("component", "session").Logger(),
		mode:   ModePomodoro,
		status: StatusIdle,
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	settings, err := loadSettings(ctx, cfg.Store)
	if err != nil {
		s.logger.Warn().Err(err).Msg("using default timer settings")
	}
	s.settings = settings

	now := s.clock.Now()
	minutes, err := loadDailyStudy(ctx, cfg.Store, now)
	if err != nil {
		s.logger.Warn().Err(err).Msg("daily study time reset")
	}
	s.studyMinutes = minutes
	s.studyDay = now.Format(dayLayout)

	s.rebuildLocked()
	return s, nil
}

// rebuildLocked replaces the timer with an idle one for the current mode.
func (s *Session) rebuildLocked() {
	if s.timer != nil {
		s.timer.Close()
	}
	s.run++
	run := s.run
	s.startedAt = time.Time{}

	cfg := timer.Config{
		Clock:      s.clock,
		OnTick:     func(int) { s.handleTick(run) },
		OnComplete: func() { s.handleComplete(run) },
	}
	if s.mode == ModeFree {
		cfg.Mode = timer.CountUp
		cfg.EndValue = s.cfg.FreeLimit
		s.total = 0
	} else {
		cfg.Mode = timer.CountDown
		cfg.InitialTime = s.settings.Seconds(s.mode)
		s.total = cfg.InitialTime
	}
	s.timer = timer.New(cfg)
}

// SetMode switches mode and leaves the session idle at the mode's origin.
func (s *Session) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.status = StatusIdle
	s.rebuildLocked()
	s.logger.Info().Str("mode", string(mode)).Msg("mode changed")
}

// Start begins a full run of the current mode.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeFree {
		s.total = s.cfg.FreeLimit
		s.timer.StartFor(s.cfg.FreeLimit)
	} else {
		s.total = s.settings.Seconds(s.mode)
		s.timer.StartFor(s.total)
	}
	s.startedAt = s.clock.Now()
	s.status = StatusRunning
	s.logger.Info().Str("mode", string(s.mode)).Int("seconds", s.total).Msg("session started")
}

// Pause freezes a running session.
func (s *Session) Pause() {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	s.status = StatusPaused
	tm := s.timer
	s.mu.Unlock()

	// Pause may complete the run synchronously.
	tm.Pause()
}

// Resume continues a paused session.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return
	}
	s.timer.Resume()
	if s.timer.IsRunning() {
		s.status = StatusRunning
	}
}

// Stop halts the run and keeps the current value. An unfinished free-mode
// run counts toward the daily study total; a completed one was already
// counted.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusIdle {
		return
	}
	s.timer.Close()
	if s.mode == ModeFree && (s.status == StatusRunning || s.status == StatusPaused) {
		s.addStudyLocked(s.freeStudySecondsLocked() / 60)
	}
	s.status = StatusIdle
	s.startedAt = time.Time{}
}

// freeStudySecondsLocked is the free-mode time credited to daily study:
// wall time since Start when pauses count, timer time otherwise.
func (s *Session) freeStudySecondsLocked() int {
	if s.settings.CountPauseTime && !s.startedAt.IsZero() {
		return int(s.clock.Since(s.startedAt) / time.Second)
	}
	return s.timer.Time()
}

// Reset halts the run and returns to the mode's origin value.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.Reset()
	s.status = StatusIdle
	s.startedAt = time.Time{}
	if s.mode != ModeFree {
		s.total = s.settings.Seconds(s.mode)
	} else {
		s.total = 0
	}
}

// UpdateSettings persists new settings. Changing the length of the current
// mode resets the session to idle.
func (s *Session) UpdateSettings(ctx context.Context, next Settings) error {
	next = next.normalized()
	if err := saveSettings(ctx, s.cfg.Store, next); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.settings
	s.settings = next
	if s.mode != ModeFree && prev.Seconds(s.mode) != next.Seconds(s.mode) {
		s.status = StatusIdle
		s.rebuildLocked()
	}
	return nil
}

// Settings returns the active settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// CompletePomodoro counts a finished pomodoro and selects the next break:
// a long break every LongBreakInterval pomodoros, otherwise a short one.
func (s *Session) CompletePomodoro() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completePomodoroLocked()
}

func (s *Session) completePomodoroLocked() {
	s.pomodoroCount++
	s.addStudyLocked(s.settings.PomodoroMinutes)
	if s.pomodoroCount%s.settings.LongBreakInterval == 0 {
		s.mode = ModeLongBreak
	} else {
		s.mode = ModeShortBreak
	}
	s.rebuildLocked()
	s.status = StatusCompleted
	s.logger.Info().
		Int("pomodoros", s.pomodoroCount).
		Str("next_mode", string(s.mode)).
		Msg("pomodoro completed")
}

// StartNextSession leaves the completed state, idle at the current mode's
// full length.
func (s *Session) StartNextSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusIdle
	s.rebuildLocked()
}

// PomodoroCount returns the pomodoros completed in this session.
func (s *Session) PomodoroCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pomodoroCount
}

// DailyStudyMinutes returns today's study total.
func (s *Session) DailyStudyMinutes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	return s.studyMinutes
}

// ResetDailyStudy clears today's study total.
func (s *Session) ResetDailyStudy(ctx context.Context) error {
	s.mu.Lock()
	s.studyMinutes = 0
	s.studyDay = s.clock.Now().Format(dayLayout)
	s.mu.Unlock()
	return saveDailyStudy(ctx, s.cfg.Store, 0, s.clock.Now())
}

func (s *Session) rollDayLocked() {
	today := s.clock.Now().Format(dayLayout)
	if today != s.studyDay {
		s.studyDay = today
		s.studyMinutes = 0
	}
}

func (s *Session) addStudyLocked(minutes int) {
	if minutes <= 0 {
		return
	}
	s.rollDayLocked()
	s.studyMinutes += minutes
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := saveDailyStudy(ctx, s.cfg.Store, s.studyMinutes, s.clock.Now()); err != nil {
		s.logger.Warn().Err(err).Msg("failed to persist daily study time")
	}
}

// TimerData returns the shareable timer state.
func (s *Session) TimerData() types.TimerData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timerDataLocked()
}

func (s *Session) timerDataLocked() types.TimerData {
	return types.TimerData{
		CurrentTime: s.timer.Time(),
		TotalTime:   s.total,
		Status:      string(s.status),
		Mode:        string(s.mode),
	}
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollDayLocked()
	return State{
		Mode:              s.mode,
		Status:            s.status,
		CurrentTime:       s.timer.Time(),
		TotalTime:         s.total,
		PomodoroCount:     s.pomodoroCount,
		DailyStudyMinutes: s.studyMinutes,
		Settings:          s.settings,
	}
}

// Close stops the timer.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer.Close()
}

func (s *Session) handleTick(run uint64) {
	s.mu.Lock()
	if run != s.run {
		s.mu.Unlock()
		return
	}
	data := s.timerDataLocked()
	s.mu.Unlock()

	if s.cfg.OnTick != nil {
		s.cfg.OnTick(data)
	}
}

// handleComplete finishes a run that reached its bound. A finished
// pomodoro advances the cycle.
func (s *Session) handleComplete(run uint64) {
	s.mu.Lock()
	if run != s.run {
		s.mu.Unlock()
		return
	}
	mode := s.mode
	switch mode {
	case ModePomodoro:
		s.completePomodoroLocked()
	case ModeFree:
		s.addStudyLocked(s.freeStudySecondsLocked() / 60)
		s.status = StatusCompleted
	default:
		s.status = StatusCompleted
	}
	s.mu.Unlock()

	s.logger.Info().Str("mode", string(mode)).Msg("session run completed")
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(mode)
	}
}
