package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seika-app/pomosync/src/store"
)

// Settings are the user's cycle lengths, persisted under
// store.KeyTimerSettings.
type Settings struct {
	PomodoroMinutes   int `json:"pomodoroMinutes"`
	ShortBreakMinutes int `json:"shortBreakMinutes"`
	LongBreakMinutes  int `json:"longBreakMinutes"`
	LongBreakInterval int `json:"longBreakInterval"`
	// CountPauseTime credits paused time to free-mode study minutes.
	CountPauseTime bool `json:"countPauseTime"`
}

// DefaultSettings returns 25/5/15 minutes with a long break every 4th
// pomodoro.
func DefaultSettings() Settings {
	return Settings{
		PomodoroMinutes:   25,
		ShortBreakMinutes: 5,
		LongBreakMinutes:  15,
		LongBreakInterval: 4,
		CountPauseTime:    true,
	}
}

// normalized replaces non-positive values with defaults.
func (s Settings) normalized() Settings {
	def := DefaultSettings()
	if s.PomodoroMinutes <= 0 {
		s.PomodoroMinutes = def.PomodoroMinutes
	}
	if s.ShortBreakMinutes <= 0 {
		s.ShortBreakMinutes = def.ShortBreakMinutes
	}
	if s.LongBreakMinutes <= 0 {
		s.LongBreakMinutes = def.LongBreakMinutes
	}
	if s.LongBreakInterval <= 0 {
		s.LongBreakInterval = def.LongBreakInterval
	}
	return s
}

// Seconds returns the countdown length of mode, or 0 for ModeFree.
func (s Settings) Seconds(mode Mode) int {
	switch mode {
	case ModePomodoro:
		return s.PomodoroMinutes * 60
	case ModeShortBreak:
		return s.ShortBreakMinutes * 60
	case ModeLongBreak:
		return s.LongBreakMinutes * 60
	default:
		return 0
	}
}

func loadSettings(ctx context.Context, st store.Store) (Settings, error) {
	raw, err := st.Get(ctx, store.KeyTimerSettings)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return DefaultSettings(), fmt.Errorf("read timer settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return DefaultSettings(), fmt.Errorf("decode timer settings: %w", err)
	}
	return s.normalized(), nil
}

func saveSettings(ctx context.Context, st store.Store, s Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode timer settings: %w", err)
	}
	if err := st.Set(ctx, store.KeyTimerSettings, string(data)); err != nil {
		return fmt.Errorf("write timer settings: %w", err)
	}
	return nil
}

// dailyStudy is the persisted study total for one calendar day.
type dailyStudy struct {
	Minutes int    `json:"minutes"`
	Date    string `json:"date,omitempty"`
}

const dayLayout = "2006-01-02"

func loadDailyStudy(ctx context.Context, st store.Store, today time.Time) (int, error) {
	raw, err := st.Get(ctx, store.KeyDailyStudy)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read daily study time: %w", err)
	}
	var d dailyStudy
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return 0, fmt.Errorf("decode daily study time: %w", err)
	}
	if d.Date != "" && d.Date != today.Format(dayLayout) {
		return 0, nil
	}
	return d.Minutes, nil
}

func saveDailyStudy(ctx context.Context, st store.Store, minutes int, today time.Time) error {
	data, err := json.Marshal(dailyStudy{Minutes: minutes, Date: today.Format(dayLayout)})
	if err != nil {
		return err
	}
	if err := st.Set(ctx, store.KeyDailyStudy, string(data)); err != nil {
		return fmt.Errorf("write daily study time: %w", err)
	}
	return nil
}
