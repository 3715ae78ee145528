package client

import (
	"sync"
	"time"
)

// TypingNotifier debounces keystrokes into gateway typing signals: at
// most one typing event per Interval while input continues, and one
// stop_typing after Idle of silence. The server never times typing out,
// so emitting the trailing stop is the client's job.
type TypingNotifier struct {
	Interval time.Duration
	Idle     time.Duration

	emitTyping func()
	emitStop   func()

	mu        sync.Mutex
	lastEmit  time.Time
	idleTimer *time.Timer
	active    bool
}

func NewTypingNotifier(interval, idle time.Duration, emitTyping, emitStop func()) *TypingNotifier {
	return &TypingNotifier{
		Interval:   interval,
		Idle:       idle,
		emitTyping: emitTyping,
		emitStop:   emitStop,
	}
}

// Keystroke records one unit of user input. Emissions happen on the
// caller's goroutine, outside the lock, so a later stop can never
// overtake an earlier typing event.
func (t *TypingNotifier) Keystroke() {
	t.mu.Lock()

	emit := false
	now := time.Now()
	if !t.active || now.Sub(t.lastEmit) >= t.Interval {
		t.lastEmit = now
		t.active = true
		emit = true
	}

	if t.idleTimer != nil {
		t.idleTimer.Stop()
	}
	t.idleTimer = time.AfterFunc(t.Idle, t.idle)
	t.mu.Unlock()

	if emit {
		t.emitTyping()
	}
}

// Stop emits the trailing stop_typing immediately, e.g. when the message
// is sent or the composer loses focus.
func (t *TypingNotifier) Stop() {
	if t.stop() {
		t.emitStop()
	}
}

func (t *TypingNotifier) idle() {
	if t.stop() {
		t.emitStop()
	}
}

func (t *TypingNotifier) stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return false
	}
	t.active = false
	if t.idleTimer != nil {
		t.idleTimer.Stop()
		t.idleTimer = nil
	}
	return true
}
