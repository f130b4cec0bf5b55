package guided

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"WidgetCS/entity"
	"WidgetCS/internal/lib/sl"
)

type Mode string

const (
	ModeGuided Mode = "guided"
	ModeChat   Mode = "chat"
	ModeFAQ    Mode = "faq"
)

const (
	DefaultBotResponseDelay = 700 * time.Millisecond
	DefaultGreeting         = "Hi! How can we help you today?"
)

// Timer is the part of *time.Timer the engine needs.
type Timer interface {
	Stop() bool
}

type Options struct {
	// BotResponseDelay separates the echoed selection from the bot reply.
	BotResponseDelay time.Duration
	Greeting         string

	// KeepStaleResponses restores the legacy behavior where a bot response
	// scheduled before GoBack or Reset is still appended afterwards.
	KeepStaleResponses bool

	// ReleaseUnansweredOptions frees an option without a bot response right
	// after selection. By default such an option stays blocked until Reset.
	ReleaseUnansweredOptions bool

	AfterFunc func(d time.Duration, f func()) Timer
	Now       func() time.Time
	Log       *slog.Logger
}

// State is a point-in-time copy of an engine, safe to hand to a renderer.
type State struct {
	Mode        Mode                `json:"mode"`
	CurrentFlow string              `json:"current_flow"`
	FlowHistory []string            `json:"flow_history"`
	Messages    []entity.Message    `json:"messages"`
	Options     []entity.FlowOption `json:"options"`
	Pending     []string            `json:"pending_options,omitempty"`
}

type pendingResponse struct {
	timer Timer
}

// Engine drives one visitor through the guided flows. Commands are SelectOption,
// GoBack and Reset; renderers observe changes through Subscribe.
type Engine struct {
	mu   sync.Mutex
	opts Options
	log  *slog.Logger

	graph     *Graph
	mode      Mode
	current   string
	history   []string
	messages  []entity.Message
	processed map[string]struct{}

	// epoch invalidates bot responses scheduled before a rewind
	epoch   uint64
	pending map[*pendingResponse]struct{}

	observers    map[int]func(State)
	nextObserver int
	closed       bool
}

func NewEngine(graph *Graph, opts Options) *Engine {
	if opts.BotResponseDelay <= 0 {
		opts.BotResponseDelay = DefaultBotResponseDelay
	}
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lg := opts.Log
	if lg == nil {
		lg = slog.Default()
	}

	e := &Engine{
		opts:      opts,
		log:       lg.With(sl.Module("guided.engine")),
		graph:     graph,
		processed: make(map[string]struct{}),
		pending:   make(map[*pendingResponse]struct{}),
		observers: make(map[int]func(State)),
	}
	e.resetLocked(ModeGuided)
	return e
}

// SelectOption selects an option of the current flow by id.
// It returns false when the option is unknown or already in flight.
func (e *Engine) SelectOption(optionID string) bool {
	e.mu.Lock()
	for _, o := range e.graph.Options(e.current) {
		if o.ID == optionID {
			return e.selectLocked(o)
		}
	}
	current := e.current
	e.mu.Unlock()

	e.log.Debug("option not in current flow",
		slog.String("option_id", optionID),
		slog.String("flow", current),
	)
	return false
}

// Select echoes the option as a user message, moves to its next flow and
// schedules its bot response. A second call for an option still in flight is
// ignored and returns false.
func (e *Engine) Select(opt entity.FlowOption) bool {
	e.mu.Lock()
	return e.selectLocked(opt)
}

// selectLocked is entered with e.mu held and releases it.
func (e *Engine) selectLocked(opt entity.FlowOption) bool {
	if e.closed {
		e.mu.Unlock()
		return false
	}
	if _, busy := e.processed[opt.ID]; busy {
		e.mu.Unlock()
		e.log.Debug("duplicate option submission ignored", slog.String("option_id", opt.ID))
		return false
	}

	e.processed[opt.ID] = struct{}{}
	e.messages = append(e.messages, entity.Message{
		Text:      opt.Text,
		Sender:    entity.SenderUser,
		IsOption:  true,
		Timestamp: e.opts.Now(),
	})
	e.history = append(e.history, e.current)
	e.current = opt.NextFlow

	if opt.BotResponse != nil {
		e.scheduleLocked(opt)
	} else if e.opts.ReleaseUnansweredOptions {
		delete(e.processed, opt.ID)
	}

	state, observers := e.publishLocked()
	e.mu.Unlock()

	notify(observers, state)
	return true
}

func (e *Engine) scheduleLocked(opt entity.FlowOption) {
	epoch := e.epoch
	p := &pendingResponse{}
	e.pending[p] = struct{}{}
	// deliver blocks on e.mu, so p.timer is set before it can run
	p.timer = e.opts.AfterFunc(e.opts.BotResponseDelay, func() {
		e.deliver(opt, epoch, p)
	})
}

func (e *Engine) deliver(opt entity.FlowOption, epoch uint64, p *pendingResponse) {
	e.mu.Lock()
	delete(e.pending, p)
	if e.closed {
		e.mu.Unlock()
		return
	}
	if epoch != e.epoch && !e.opts.KeepStaleResponses {
		e.mu.Unlock()
		e.log.Debug("stale bot response dropped", slog.String("option_id", opt.ID))
		return
	}

	msg := entity.Message{
		Text:      opt.BotResponse.Text,
		Sender:    entity.SenderBot,
		Timestamp: e.opts.Now(),
	}
	if opt.BotResponse.FollowUp != "" {
		msg.FollowupQuestions = []string{opt.BotResponse.FollowUp}
	}
	e.messages = append(e.messages, msg)
	delete(e.processed, opt.ID)

	state, observers := e.publishLocked()
	e.mu.Unlock()

	notify(observers, state)
}

// GoBack returns to the previous flow and rewinds the transcript to just before
// the last option selection. It returns false when there is no history.
func (e *Engine) GoBack() bool {
	e.mu.Lock()
	if e.closed || len(e.history) == 0 {
		e.mu.Unlock()
		return false
	}

	last := len(e.history) - 1
	e.current = e.history[last]
	e.history = e.history[:last]

	for i := len(e.messages) - 1; i >= 0; i-- {
		if e.messages[i].Sender == entity.SenderUser && e.messages[i].IsOption {
			e.messages = e.messages[:i]
			break
		}
	}
	e.processed = make(map[string]struct{})
	e.advanceEpochLocked()

	state, observers := e.publishLocked()
	e.mu.Unlock()

	notify(observers, state)
	return true
}

// Reset reinitializes the engine for a mode switch.
func (e *Engine) Reset(mode Mode) error {
	switch mode {
	case ModeGuided, ModeChat, ModeFAQ:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.resetLocked(mode)
	e.advanceEpochLocked()
	state, observers := e.publishLocked()
	e.mu.Unlock()

	notify(observers, state)
	return nil
}

func (e *Engine) resetLocked(mode Mode) {
	e.mode = mode
	e.current = entity.MainFlow
	e.history = nil
	e.processed = make(map[string]struct{})
	if mode == ModeFAQ {
		e.messages = nil
		return
	}
	e.messages = []entity.Message{{
		Text:      e.opts.Greeting,
		Sender:    entity.SenderBot,
		Timestamp: e.opts.Now(),
	}}
}

func (e *Engine) advanceEpochLocked() {
	e.epoch++
	if e.opts.KeepStaleResponses {
		return
	}
	for p := range e.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(e.pending, p)
	}
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// CurrentOptions returns the options to display for the current flow.
func (e *Engine) CurrentOptions() []entity.FlowOption {
	e.mu.Lock()
	current := e.current
	e.mu.Unlock()
	return e.graph.Options(current)
}

// Subscribe registers an observer called after every state change.
func (e *Engine) Subscribe(fn func(State)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextObserver
	e.nextObserver++
	e.observers[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.observers, id)
		e.mu.Unlock()
	}
}

// Close stops pending bot responses and detaches observers.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for p := range e.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(e.pending, p)
	}
	e.observers = make(map[int]func(State))
}

func (e *Engine) snapshotLocked() State {
	s := State{
		Mode:        e.mode,
		CurrentFlow: e.current,
		FlowHistory: append([]string{}, e.history...),
		Messages:    make([]entity.Message, len(e.messages)),
		Options:     e.graph.Options(e.current),
	}
	for i, m := range e.messages {
		m.FollowupQuestions = append([]string(nil), m.FollowupQuestions...)
		s.Messages[i] = m
	}
	for id := range e.processed {
		s.Pending = append(s.Pending, id)
	}
	sort.Strings(s.Pending)
	return s
}

func (e *Engine) publishLocked() (State, []func(State)) {
	if len(e.observers) == 0 {
		return State{}, nil
	}
	observers := make([]func(State), 0, len(e.observers))
	for _, fn := range e.observers {
		observers = append(observers, fn)
	}
	return e.snapshotLocked(), observers
}

func notify(observers []func(State), state State) {
	for _, fn := range observers {
		fn(state)
	}
}
