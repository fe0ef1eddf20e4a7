// Package timer implements a pausable count-up/count-down clock whose value
// is computed from elapsed wall-clock time rather than by counting ticks, so
// late or skipped ticks never make it fall behind.
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Mode selects the counting direction.
type Mode int

const (
	// CountUp counts from zero toward the target.
	CountUp Mode = iota
	// CountDown counts from the start duration toward zero.
	CountDown
)

func (m Mode) String() string {
	if m == CountDown {
		return "countDown"
	}
	return "countUp"
}

// DefaultEndValue is the count-up target used when none is configured.
const DefaultEndValue = 60

// Config configures a Timer. Every field is optional.
type Config struct {
	// Mode defaults to CountUp.
	Mode Mode
	// InitialTime is the count-down origin in seconds, and the value Reset
	// returns to in CountDown mode. Default 0.
	InitialTime int
	// EndValue is the count-up target in seconds. Default DefaultEndValue.
	EndValue int
	// TickInterval is the recomputation period. Default one second.
	TickInterval time.Duration
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// OnTick receives the value after every recomputation while running.
	OnTick func(seconds int)
	// OnComplete fires once when a run reaches its terminal value.
	OnComplete func()
}

// Snapshot is a copy of the timer state.
type Snapshot struct {
	Mode    Mode
	Time    int
	Target  int
	Running bool
}

// Timer is a drift-resistant clock. All methods are safe for concurrent use.
// Callbacks run on the timer's own goroutine, never while its lock is held.
type Timer struct {
	cfg   Config
	clock clockwork.Clock

	mu          sync.Mutex
	time        int
	target      int
	running     bool
	origin      time.Time
	accumulated time.Duration
	gen         uint64
	stop        chan struct{}
}

// New creates a stopped timer showing the mode's origin value.
func New(cfg Config) *Timer {
	if cfg.EndValue <= 0 {
		cfg.EndValue = DefaultEndValue
	}
	if cfg.InitialTime < 0 {
		cfg.InitialTime = 0
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	t := &Timer{cfg: cfg, clock: cfg.Clock}
	t.time, t.target = t.origins()
	return t
}

// origins returns the mode's resting value and default target.
func (t *Timer) origins() (value, target int) {
	if t.cfg.Mode == CountDown {
		return t.cfg.InitialTime, t.cfg.InitialTime
	}
	return 0, t.cfg.EndValue
}

// Start begins a run using the default duration: the last known value in
// CountDown mode, the configured end value in CountUp mode.
func (t *Timer) Start() {
	t.mu.Lock()
	d := t.time
	if t.cfg.Mode == CountUp {
		d = t.cfg.EndValue
	}
	t.startLocked(d)
	t.mu.Unlock()
}

// StartFor begins a run of the given number of seconds: counting down from
// seconds, or counting up from zero to seconds.
func (t *Timer) StartFor(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	t.mu.Lock()
	t.startLocked(seconds)
	t.mu.Unlock()
}

func (t *Timer) startLocked(seconds int) {
	t.cancelLocked()
	t.target = seconds
	if t.cfg.Mode == CountDown {
		t.time = seconds
	} else {
		t.time = 0
	}
	t.accumulated = 0
	t.runLocked()
}

// Pause freezes the value. It is a no-op when not running.
func (t *Timer) Pause() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	t.accumulated += now.Sub(t.origin)
	t.time = t.valueAt(t.accumulated)
	t.running = false
	t.cancelLocked()
	finished := t.terminal(t.time)
	t.mu.Unlock()

	// A run paused exactly at its bound still completes once.
	if finished && t.cfg.OnComplete != nil {
		t.cfg.OnComplete()
	}
}

// Resume continues a paused run. It is a no-op when running or when the run
// already reached its terminal value.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.terminal(t.time) {
		return
	}
	t.runLocked()
}

// Reset stops the timer and returns it to the mode's origin value.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.running = false
	t.accumulated = 0
	t.time, t.target = t.origins()
}

// Close cancels any scheduled recomputation. The timer keeps its last value.
func (t *Timer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.accumulated += t.clock.Now().Sub(t.origin)
		t.time = t.valueAt(t.accumulated)
		t.running = false
	}
	t.cancelLocked()
}

// Time returns the current value in seconds.
func (t *Timer) Time() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentLocked()
}

// IsRunning reports whether the timer is counting.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Mode returns the counting direction.
func (t *Timer) Mode() Mode { return t.cfg.Mode }

// Snapshot returns a copy of the current state.
func (t *Timer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Mode:    t.cfg.Mode,
		Time:    t.currentLocked(),
		Target:  t.target,
		Running: t.running,
	}
}

func (t *Timer) currentLocked() int {
	if !t.running {
		return t.time
	}
	return t.valueAt(t.accumulated + t.clock.Now().Sub(t.origin))
}

// valueAt maps total running time to a clamped value. Fractional seconds
// are truncated.
func (t *Timer) valueAt(elapsed time.Duration) int {
	secs := int(elapsed / time.Second)
	if t.cfg.Mode == CountDown {
		return max(0, t.target-secs)
	}
	return min(t.target, secs)
}

func (t *Timer) terminal(v int) bool {
	if t.cfg.Mode == CountDown {
		return v <= 0
	}
	return v >= t.target
}

func (t *Timer) runLocked() {
	t.origin = t.clock.Now()
	t.running = true
	t.gen++
	t.stop = make(chan struct{})
	ticker := t.clock.NewTicker(t.cfg.TickInterval)
	go t.loop(t.gen, ticker, t.stop)
}

func (t *Timer) cancelLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Timer) loop(gen uint64, ticker clockwork.Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !t.tick(gen) {
				return
			}
		}
	}
}

// tick recomputes the value for run gen. It returns false once the run is
// over, either because it completed or because it was superseded.
func (t *Timer) tick(gen uint64) bool {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return false
	}
	now := t.clock.Now()
	v := t.valueAt(t.accumulated + now.Sub(t.origin))
	t.time = v
	finished := t.terminal(v)
	if finished {
		t.accumulated += now.Sub(t.origin)
		t.running = false
		t.cancelLocked()
	}
	t.mu.Unlock()

	if t.cfg.OnTick != nil {
		t.cfg.OnTick(v)
	}
	if finished && t.cfg.OnComplete != nil {
		t.cfg.OnComplete()
	}
	return !finished
}
