package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"WidgetCS/entity"
	"WidgetCS/internal/database"
	"WidgetCS/internal/guided"
	"WidgetCS/internal/ws"
)

type recordedFrame struct {
	sessionID string
	frame     entity.Frame
}

type fakeRealtime struct {
	mu     sync.Mutex
	frames []recordedFrame
}

func (f *fakeRealtime) BroadcastToSession(sessionID string, frame entity.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, recordedFrame{sessionID, frame})
}

func (f *fakeRealtime) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.frames {
		out = append(out, r.frame.Type)
	}
	return out
}

type fakeNotifier struct {
	ch chan entity.HumanChatSession
}

func (f *fakeNotifier) NotifyHumanChatRequest(session entity.HumanChatSession) {
	f.ch <- session
}

type fakeAssistant struct {
	answer  entity.AiAnswer
	err     error
	history [][]entity.Message
}

func (f *fakeAssistant) ComposeResponse(_ context.Context, _ string, history []entity.Message, _ string) (entity.AiAnswer, error) {
	f.history = append(f.history, append([]entity.Message(nil), history...))
	return f.answer, f.err
}

func newTestCore(t *testing.T) (*Core, *repository.Memory, *fakeRealtime) {
	t.Helper()
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	repo := repository.NewMemory()
	rt := &fakeRealtime{}
	c.SetRepository(repo)
	c.SetRealtime(rt)
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	return c, repo, rt
}

func flowNamed(t *testing.T, c *Core, name string) entity.Flow {
	t.Helper()
	flows, err := c.GetFlows()
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range flows {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("flow %s not found", name)
	return entity.Flow{}
}

func option(id, next string) entity.FlowOption {
	return entity.FlowOption{ID: id, Text: "option " + id, NextFlow: next}
}

func TestInitSynthesizesMainOnce(t *testing.T) {
	c, repo, _ := newTestCore(t)

	if _, err := c.GetFlows(); err != nil {
		t.Fatal(err)
	}
	flows, _ := repo.GetFlows()
	if len(flows) != 1 || flows[0].Name != entity.MainFlow {
		t.Fatalf("expected a single main flow, got %+v", flows)
	}
	if opts := c.graph.Options(entity.MainFlow); len(opts) == 0 {
		t.Error("graph should carry the default main options")
	}
}

func TestFlowValidation(t *testing.T) {
	c, _, _ := newTestCore(t)

	if _, err := c.CreateFlow(entity.Flow{Name: "a", Options: []entity.FlowOption{option("a1", "b")}}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		flow entity.Flow
		want error
	}{
		{"cycle", entity.Flow{Name: "b", Options: []entity.FlowOption{option("b1", "a")}}, guided.ErrCycle},
		{"duplicate name", entity.Flow{Name: "a"}, guided.ErrDuplicateName},
		{"missing name", entity.Flow{Options: []entity.FlowOption{option("x", "")}}, guided.ErrValidation},
		{"missing option text", entity.Flow{Name: "c", Options: []entity.FlowOption{{ID: "c1"}}}, guided.ErrValidation},
		{"duplicate option id", entity.Flow{Name: "c", Options: []entity.FlowOption{option("c1", ""), option("c1", "")}}, guided.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.CreateFlow(tc.flow)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
			if !errors.Is(err, guided.ErrValidation) {
				t.Errorf("%v should be a validation error", err)
			}
		})
	}

	// a leaf target that does not exist yet is fine
	if _, err := c.CreateFlow(entity.Flow{Name: "b", Options: []entity.FlowOption{option("b1", "later")}}); err != nil {
		t.Fatalf("dangling target should be accepted: %v", err)
	}
}

func TestUpdateFlow(t *testing.T) {
	c, _, _ := newTestCore(t)

	res, err := c.CreateFlow(entity.Flow{Name: "billing", Options: []entity.FlowOption{option("b1", "")}})
	if err != nil {
		t.Fatal(err)
	}
	id := res.Flow.ID

	res, err = c.UpdateFlow(id, entity.Flow{Name: "billing", Options: []entity.FlowOption{{ID: "b1", Text: "renamed"}}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Warning != "" {
		t.Error("text change is not structural")
	}

	res, err = c.UpdateFlow(id, entity.Flow{Name: "billing", Options: []entity.FlowOption{option("b1", entity.MainFlow)}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Warning == "" {
		t.Error("new next_flow target should warn")
	}

	// main -> billing -> main
	mainFlow := flowNamed(t, c, entity.MainFlow)
	mainFlow.Options = append(mainFlow.Options, option("to-billing", "billing"))
	if _, err := c.UpdateFlow(mainFlow.ID, mainFlow); !errors.Is(err, guided.ErrCycle) {
		t.Errorf("cycle through main = %v", err)
	}

	mainFlow = flowNamed(t, c, entity.MainFlow)
	mainFlow.Name = "start"
	if _, err := c.UpdateFlow(mainFlow.ID, mainFlow); !errors.Is(err, guided.ErrValidation) {
		t.Errorf("renaming main = %v", err)
	}

	if _, err := c.UpdateFlow("missing", entity.Flow{Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown id = %v", err)
	}
}

func TestDeleteFlow(t *testing.T) {
	c, _, _ := newTestCore(t)

	mainFlow := flowNamed(t, c, entity.MainFlow)
	if err := c.DeleteFlow(mainFlow.ID); !errors.Is(err, ErrMainFlowDelete) {
		t.Errorf("delete main = %v", err)
	}
	if err := c.DeleteFlow("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete unknown = %v", err)
	}

	res, _ := c.CreateFlow(entity.Flow{Name: "faq", Options: []entity.FlowOption{option("f1", "")}})
	if err := c.DeleteFlow(res.Flow.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.graph.Flow("faq"); ok {
		t.Error("graph should be reloaded after delete")
	}
}

func TestGuidedSessions(t *testing.T) {
	c, _, _ := newTestCore(t)
	c.SetGuidedSettings(GuidedSettings{BotResponseDelay: time.Hour, SessionTTL: time.Minute})

	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start }

	s, err := c.StartGuidedSession("")
	if err != nil {
		t.Fatal(err)
	}
	if s.CurrentFlow != entity.MainFlow || len(s.Messages) != 1 || len(s.Options) != 2 {
		t.Fatalf("unexpected initial session %+v", s)
	}

	s, ok, err := c.SelectGuidedOption(s.ID, "main-products")
	if err != nil || !ok {
		t.Fatalf("select = %v %v", ok, err)
	}
	if len(s.Messages) != 2 || !s.Messages[1].IsOption {
		t.Errorf("selection should be echoed, got %+v", s.Messages)
	}
	if _, ok, _ := c.SelectGuidedOption(s.ID, "main-products"); ok {
		t.Error("unknown option in the current flow must be refused")
	}

	s, ok, _ = c.GuidedBack(s.ID)
	if !ok || s.CurrentFlow != entity.MainFlow || len(s.Messages) != 1 {
		t.Errorf("back = %v %+v", ok, s)
	}

	s, err = c.ResetGuidedSession(s.ID, "faq")
	if err != nil || s.Mode != guided.ModeFAQ || len(s.Messages) != 0 {
		t.Errorf("reset = %v %+v", err, s)
	}
	if _, err := c.ResetGuidedSession(s.ID, "unknown"); !errors.Is(err, guided.ErrUnknownMode) {
		t.Errorf("bad mode = %v", err)
	}

	if n := c.ExpireGuidedSessions(start.Add(30 * time.Second)); n != 0 {
		t.Errorf("fresh session expired: %d", n)
	}
	if n := c.ExpireGuidedSessions(start.Add(2 * time.Minute)); n != 1 {
		t.Errorf("idle session not expired: %d", n)
	}
	if _, err := c.GuidedSession(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired session = %v", err)
	}
}

func TestHumanChatLifecycle(t *testing.T) {
	c, repo, rt := newTestCore(t)
	notifier := &fakeNotifier{ch: make(chan entity.HumanChatSession, 1)}
	c.SetNotifier(notifier)

	session, err := c.RequestHumanChat("conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if session.Status != entity.StatusWaiting {
		t.Fatalf("status = %s", session.Status)
	}
	select {
	case got := <-notifier.ch:
		if got.SessionID != session.SessionID {
			t.Errorf("notified %s", got.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("agents were not notified")
	}

	waiting, _ := c.WaitingSessions()
	if len(waiting) != 1 {
		t.Fatalf("waiting = %d", len(waiting))
	}

	status, history, err := c.JoinSession(context.Background(), session.SessionID, "visitor", "user")
	if err != nil || status != entity.StatusWaiting || len(history) != 1 || history[0].SenderType != entity.SenderTypeSystem {
		t.Fatalf("join = %v %s %+v", err, status, history)
	}

	if _, err := c.JoinHumanChat(session.SessionID, "agent-1", "Anna"); err != nil {
		t.Fatal(err)
	}
	status, history, _ = c.JoinSession(context.Background(), session.SessionID, "visitor", "user")
	if status != entity.StatusActive || len(history) != 2 {
		t.Errorf("rejoin after agent = %s with %d messages", status, len(history))
	}
	if _, err := c.JoinHumanChat(session.SessionID, "agent-1", "Anna"); err != nil {
		t.Errorf("rejoin by the same agent = %v", err)
	}
	if _, err := c.JoinHumanChat(session.SessionID, "agent-2", "Ben"); !errors.Is(err, ErrSessionTaken) {
		t.Errorf("second agent = %v", err)
	}

	if err := c.HandleClientMessage(context.Background(), session.SessionID, "agent-1", "agent", " hello "); err != nil {
		t.Fatal(err)
	}
	msgs, _ := c.SessionMessages(session.SessionID)
	last := msgs[len(msgs)-1]
	if last.Text != "hello" || last.SenderName != "Anna" {
		t.Errorf("last message %+v", last)
	}

	if _, err := c.CloseHumanChat(session.SessionID, "resolved"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.CloseHumanChat(session.SessionID, "again"); err != nil {
		t.Errorf("second close = %v", err)
	}
	stored, _ := repo.GetHumanChatSession(session.SessionID)
	if stored.Status != entity.StatusClosed || stored.CloseReason != "resolved" || stored.ClosedAt == nil {
		t.Errorf("stored session %+v", stored)
	}

	want := []string{entity.FrameAgentJoined, entity.FrameNewMessage, entity.FrameSessionClosed}
	got := rt.types()
	if len(got) != len(want) {
		t.Fatalf("frames = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frames = %v, want %v", got, want)
		}
	}

	if _, err := c.JoinHumanChat(session.SessionID, "agent-1", "Anna"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("join closed = %v", err)
	}
	if err := c.HandleClientMessage(context.Background(), session.SessionID, "visitor", "user", "late"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("message after close = %v", err)
	}
	if _, _, err := c.JoinSession(context.Background(), session.SessionID, "visitor", "user"); !errors.Is(err, ws.ErrSessionClosed) {
		t.Errorf("realtime join after close = %v", err)
	}
	if _, _, err := c.JoinSession(context.Background(), "missing", "visitor", "user"); !errors.Is(err, ws.ErrSessionNotFound) {
		t.Errorf("realtime join unknown = %v", err)
	}

	c.SetHumanChatSettings(0, time.Hour)
	if n, _ := c.CleanupClosedSessions(time.Now()); n != 0 {
		t.Errorf("recently closed session removed")
	}
	if n, _ := c.CleanupClosedSessions(time.Now().Add(2 * time.Hour)); n != 1 {
		t.Errorf("old closed session kept")
	}
}

func TestChatMessage(t *testing.T) {
	c, _, _ := newTestCore(t)

	if _, err := c.ChatMessage(context.Background(), "", "hi"); !errors.Is(err, ErrAssistantDisabled) {
		t.Errorf("without assistant = %v", err)
	}

	ass := &fakeAssistant{answer: entity.AiAnswer{
		Text: "Try these",
		RecommendedProducts: []map[string]any{
			{"name": "Cable", "is_accessory": true},
			{"name": "Printer", "priority": 5},
			{"product_name": "Scanner", "priority": 7},
		},
	}}
	c.SetAssistant(ass)

	reply, err := c.ChatMessage(context.Background(), "conv-1", "need a printer")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Message.Text != "Try these" || reply.ConversationID != "conv-1" {
		t.Errorf("reply %+v", reply.Message)
	}
	products := reply.Recommendations.Products
	if len(products) != 2 || products[0].Name != "Scanner" || products[1].Name != "Printer" {
		t.Errorf("products %+v", products)
	}
	if len(reply.Recommendations.Accessories) != 1 {
		t.Errorf("accessories %+v", reply.Recommendations.Accessories)
	}

	if _, err := c.ChatMessage(context.Background(), "conv-1", "thanks"); err != nil {
		t.Fatal(err)
	}
	if len(ass.history[1]) != 2 {
		t.Errorf("second turn should carry the first exchange, got %d messages", len(ass.history[1]))
	}

	ass.err = errors.New("rate limited")
	if _, err := c.ChatMessage(context.Background(), "conv-1", "again"); err == nil {
		t.Error("assistant failure should surface")
	}
}

type slowAssistant struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
}

func (f *slowAssistant) ComposeResponse(_ context.Context, _ string, _ []entity.Message, _ string) (entity.AiAnswer, error) {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	time.Sleep(5 * time.Millisecond)
	f.inFlight.Add(-1)
	return entity.AiAnswer{Text: "ok"}, nil
}

func TestChatTurnsOfOneConversationAreSerialized(t *testing.T) {
	c, _, _ := newTestCore(t)
	ass := &slowAssistant{}
	c.SetAssistant(ass)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ChatMessage(context.Background(), "conv-1", "hello"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if ass.overlap.Load() {
		t.Error("two turns of the same conversation reached the assistant at once")
	}

	c.ExpireGuidedSessions(time.Now().Add(24 * time.Hour))
	c.mu.Lock()
	left := len(c.conversations)
	c.mu.Unlock()
	if left != 0 {
		t.Errorf("idle conversations kept: %d", left)
	}
}
