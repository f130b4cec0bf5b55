package humanchat

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke a stop signal is sent.
const DefaultTypingIdle = 2000 * time.Millisecond

type stopper interface {
	Stop() bool
}

// Typing debounces local typing signals: start on the first keystroke after
// idle, stop after the idle period or right away on send.
type Typing struct {
	mu        sync.Mutex
	idle      time.Duration
	signal    func(isTyping bool) bool
	afterFunc func(time.Duration, func()) stopper
	typing    bool
	timer     stopper
	gen       uint64
}

func NewTyping(idle time.Duration, signal func(isTyping bool) bool) *Typing {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &Typing{
		idle:   idle,
		signal: signal,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

// KeyPress records a keystroke.
func (t *Typing) KeyPress() {
	t.mu.Lock()
	start := !t.typing
	t.typing = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = t.afterFunc(t.idle, func() { t.expire(gen) })
	t.mu.Unlock()

	if start {
		t.signal(true)
	}
}

// Stop ends the typing state immediately, as on send.
func (t *Typing) Stop() {
	t.mu.Lock()
	if !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.mu.Unlock()

	t.signal(false)
}

func (t *Typing) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

func (t *Typing) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.timer = nil
	t.mu.Unlock()

	t.signal(false)
}
