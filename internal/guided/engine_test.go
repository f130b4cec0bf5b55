package guided

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"WidgetCS/entity"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fire runs every timer that was neither stopped nor fired yet.
func (c *fakeClock) fire() int {
	pending := c.timers
	c.timers = nil
	n := 0
	for _, t := range pending {
		if t.stopped || t.fired {
			continue
		}
		t.fired = true
		t.f()
		n++
	}
	return n
}

func (c *fakeClock) active() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func testGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	err := g.Load([]entity.Flow{
		{Name: "main", Options: []entity.FlowOption{
			{ID: "m1", Text: "Products", NextFlow: "b", BotResponse: &entity.BotResponse{Text: "hi", FollowUp: "anything else?"}},
			{ID: "m2", Text: "No reply", NextFlow: "b"},
			{ID: "m3", Text: "Dead end", NextFlow: "nowhere", BotResponse: &entity.BotResponse{Text: "sorry"}},
		}},
		{Name: "b", Options: []entity.FlowOption{
			{ID: "b1", Text: "Accessories", NextFlow: "", BotResponse: &entity.BotResponse{Text: "here you go"}},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func newTestEngine(t *testing.T, mutate func(*Options)) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	opts := Options{
		Greeting:  "hello",
		AfterFunc: clock.AfterFunc,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewEngine(testGraph(t), opts), clock
}

func TestEngineInitialState(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	s := e.Snapshot()

	if s.Mode != ModeGuided || s.CurrentFlow != "main" {
		t.Fatalf("unexpected initial state: %+v", s)
	}
	if len(s.Messages) != 1 || s.Messages[0].Text != "hello" || s.Messages[0].Sender != entity.SenderBot {
		t.Fatalf("expected greeting, got %+v", s.Messages)
	}
	if len(s.Options) != 3 {
		t.Errorf("expected main options, got %d", len(s.Options))
	}
}

func TestEngineSelectAndGoBack(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	if !e.SelectOption("m1") {
		t.Fatal("select m1 should succeed")
	}
	s := e.Snapshot()
	if len(s.Messages) != 2 {
		t.Fatalf("expected greeting + selection, got %d messages", len(s.Messages))
	}
	sel := s.Messages[1]
	if sel.Text != "Products" || sel.Sender != entity.SenderUser || !sel.IsOption {
		t.Errorf("unexpected selection echo: %+v", sel)
	}
	if s.CurrentFlow != "b" || len(s.FlowHistory) != 1 || s.FlowHistory[0] != "main" {
		t.Errorf("unexpected navigation state: %+v", s)
	}
	if len(clock.timers) != 1 || clock.timers[0].d != DefaultBotResponseDelay {
		t.Fatalf("expected one bot response scheduled after %v", DefaultBotResponseDelay)
	}

	clock.fire()
	s = e.Snapshot()
	if len(s.Messages) != 3 {
		t.Fatalf("expected bot response, got %d messages", len(s.Messages))
	}
	bot := s.Messages[2]
	if bot.Text != "hi" || bot.Sender != entity.SenderBot {
		t.Errorf("unexpected bot message: %+v", bot)
	}
	if len(bot.FollowupQuestions) != 1 || bot.FollowupQuestions[0] != "anything else?" {
		t.Errorf("follow up not carried: %+v", bot.FollowupQuestions)
	}
	if len(s.Pending) != 0 {
		t.Errorf("option must be released after its response, pending=%v", s.Pending)
	}

	if !e.GoBack() {
		t.Fatal("go back should succeed")
	}
	s = e.Snapshot()
	if s.CurrentFlow != "main" || len(s.FlowHistory) != 0 {
		t.Errorf("unexpected state after back: %+v", s)
	}
	if len(s.Messages) != 1 {
		t.Fatalf("selection and response should be rewound, got %+v", s.Messages)
	}
	for _, m := range s.Messages {
		if m.IsOption {
			t.Errorf("no option message may survive the rewind: %+v", m)
		}
	}

	if e.GoBack() {
		t.Error("go back with empty history must be a no-op")
	}
}

func TestEngineDuplicateSelection(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	if !e.SelectOption("m1") {
		t.Fatal("first select should succeed")
	}
	// the visitor is now in "b"; replay the same option directly
	opt, _ := (&entity.Flow{Options: testGraph(t).Options("main")}).Option("m1")
	if e.Select(opt) {
		t.Error("second select while in flight must be ignored")
	}

	s := e.Snapshot()
	if len(s.Messages) != 2 {
		t.Errorf("expected exactly one user message, got %d", len(s.Messages)-1)
	}
	if clock.active() != 1 {
		t.Errorf("expected exactly one scheduled response, got %d", clock.active())
	}
}

func TestEngineConcurrentSelectionsFromSameFlow(t *testing.T) {
	for round := 0; round < 50; round++ {
		e, _ := newTestEngine(t, nil)

		var wg sync.WaitGroup
		start := make(chan struct{})
		accepted := make([]bool, 2)
		for i, id := range []string{"m1", "m3"} {
			wg.Add(1)
			go func(i int, id string) {
				defer wg.Done()
				<-start
				accepted[i] = e.SelectOption(id)
			}(i, id)
		}
		close(start)
		wg.Wait()

		if accepted[0] == accepted[1] {
			t.Fatalf("round %d: accepted = %v, exactly one option of main may win", round, accepted)
		}
		if s := e.Snapshot(); len(s.FlowHistory) != 1 || s.FlowHistory[0] != "main" {
			t.Fatalf("round %d: history = %v", round, s.FlowHistory)
		}
	}
}

func TestEngineOptionWithoutResponseStaysBlocked(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	if !e.SelectOption("m2") {
		t.Fatal("select should succeed")
	}
	if clock.active() != 0 {
		t.Error("no response should be scheduled")
	}
	if s := e.Snapshot(); len(s.Pending) != 1 || s.Pending[0] != "m2" {
		t.Errorf("m2 should stay pending, got %v", s.Pending)
	}

	if err := e.Reset(ModeGuided); err != nil {
		t.Fatal(err)
	}
	if s := e.Snapshot(); len(s.Pending) != 0 {
		t.Errorf("reset must clear pending, got %v", s.Pending)
	}
}

func TestEngineReleaseUnansweredOptions(t *testing.T) {
	e, _ := newTestEngine(t, func(o *Options) { o.ReleaseUnansweredOptions = true })

	e.SelectOption("m2")
	if s := e.Snapshot(); len(s.Pending) != 0 {
		t.Errorf("m2 should be released immediately, got %v", s.Pending)
	}
}

func TestEngineStaleResponseDropped(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	e.SelectOption("m1")
	e.GoBack()

	if clock.fire() != 0 {
		t.Error("pending response should have been stopped by go back")
	}
	s := e.Snapshot()
	if len(s.Messages) != 1 {
		t.Errorf("stale response must not be appended, got %+v", s.Messages)
	}
}

func TestEngineStaleResponseDroppedWhenTimerRaces(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	e.SelectOption("m1")
	timer := clock.timers[0]
	e.Reset(ModeChat)

	// a timer whose Stop lost the race still fires; the epoch check drops it
	timer.f()
	if s := e.Snapshot(); len(s.Messages) != 1 || s.Mode != ModeChat {
		t.Errorf("stale response must be dropped, got %+v", s.Messages)
	}
}

func TestEngineKeepStaleResponses(t *testing.T) {
	e, clock := newTestEngine(t, func(o *Options) { o.KeepStaleResponses = true })

	e.SelectOption("m1")
	e.GoBack()
	clock.fire()

	s := e.Snapshot()
	if len(s.Messages) != 2 || s.Messages[1].Text != "hi" {
		t.Errorf("legacy mode appends the late response after the rewind, got %+v", s.Messages)
	}
}

func TestEngineReset(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.SelectOption("m2")

	if err := e.Reset(ModeFAQ); err != nil {
		t.Fatal(err)
	}
	s := e.Snapshot()
	if s.Mode != ModeFAQ || len(s.Messages) != 0 || len(s.FlowHistory) != 0 || s.CurrentFlow != "main" {
		t.Errorf("unexpected faq state: %+v", s)
	}

	if err := e.Reset(ModeChat); err != nil {
		t.Fatal(err)
	}
	s = e.Snapshot()
	if len(s.Messages) != 1 || s.Messages[0].Text != "hello" {
		t.Errorf("chat mode should reseed greeting: %+v", s.Messages)
	}

	if err := e.Reset("video"); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestEngineDanglingNextFlowIsTerminal(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	e.SelectOption("m3")
	if opts := e.CurrentOptions(); len(opts) != 0 {
		t.Errorf("dangling next_flow should show no options, got %v", opts)
	}
	if e.SelectOption("b1") {
		t.Error("options of other flows cannot be selected")
	}
}

func TestEngineSubscribe(t *testing.T) {
	e, clock := newTestEngine(t, nil)

	var states []State
	unsubscribe := e.Subscribe(func(s State) { states = append(states, s) })

	e.SelectOption("m1")
	clock.fire()
	e.GoBack()

	if len(states) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(states))
	}
	if states[1].Messages[len(states[1].Messages)-1].Text != "hi" {
		t.Error("second notification should carry the bot response")
	}

	unsubscribe()
	e.Reset(ModeGuided)
	if len(states) != 3 {
		t.Error("no notifications after unsubscribe")
	}
}

func TestEngineClose(t *testing.T) {
	e, clock := newTestEngine(t, nil)
	e.SelectOption("m1")
	e.Close()

	if clock.fire() != 0 {
		t.Error("close must stop pending responses")
	}
	if e.Select(entity.FlowOption{ID: "m2", Text: "No reply"}) {
		t.Error("closed engine accepts no commands")
	}
}
