package ws

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"WidgetCS/entity"
)

type fakeSessions struct {
	hub *Hub

	mu       sync.Mutex
	closed   map[string]bool
	history  map[string][]entity.ChatMessage
	status   map[string]entity.SessionStatus
	received []string
}

func (f *fakeSessions) JoinSession(_ context.Context, sessionID, _, _ string) (entity.SessionStatus, []entity.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed[sessionID] {
		return "", nil, ErrSessionClosed
	}
	h, ok := f.history[sessionID]
	if !ok {
		return "", nil, ErrSessionNotFound
	}
	status := f.status[sessionID]
	if status == "" {
		status = entity.StatusWaiting
	}
	return status, h, nil
}

func (f *fakeSessions) HandleClientMessage(_ context.Context, sessionID, userID, role, text string) error {
	f.mu.Lock()
	f.received = append(f.received, text)
	id := len(f.received)
	f.mu.Unlock()

	f.hub.BroadcastMessage(entity.ChatMessage{
		MessageID:  "m" + string(rune('0'+id)),
		SessionID:  sessionID,
		SenderType: role,
		SenderID:   userID,
		Text:       text,
	})
	return nil
}

func newTestServer(t *testing.T) (*Hub, *fakeSessions, string) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(log)
	sessions := &fakeSessions{
		hub:    hub,
		closed: map[string]bool{"done": true},
		history: map[string][]entity.ChatMessage{
			"s-1": {{MessageID: "h1", SessionID: "s-1", SenderType: entity.SenderTypeSystem, Text: "waiting for an agent"}},
		},
	}
	hub.SetHandler(sessions)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, log, w, r, strings.TrimPrefix(r.URL.Path, "/ws/human-chat/"))
	}))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, sessions, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/human-chat/"
}

func dial(t *testing.T, base, session, user, role string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+session+"?user_id="+user+"&role="+role, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) entity.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f entity.Frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestRoomExchange(t *testing.T) {
	hub, sessions, base := newTestServer(t)

	visitor := dial(t, base, "s-1", "visitor-1", "user")
	f := readFrame(t, visitor)
	if f.Type != entity.FrameHistory || len(f.Messages) != 1 || f.Messages[0].MessageID != "h1" {
		t.Fatalf("expected history frame, got %+v", f)
	}

	agent := dial(t, base, "s-1", "agent-1", "agent")
	if f := readFrame(t, agent); f.Type != entity.FrameHistory {
		t.Fatalf("agent expected history, got %s", f.Type)
	}
	f = readFrame(t, visitor)
	if f.Type != entity.FrameUserJoined || f.UserID != "agent-1" {
		t.Fatalf("visitor expected user_joined, got %+v", f)
	}

	if err := agent.WriteJSON(entity.Frame{Type: entity.FrameTyping, IsTyping: true}); err != nil {
		t.Fatal(err)
	}
	f = readFrame(t, visitor)
	if f.Type != entity.FrameTyping || f.UserID != "agent-1" || !f.IsTyping {
		t.Fatalf("visitor expected typing, got %+v", f)
	}

	if err := visitor.WriteJSON(entity.Frame{Type: entity.FrameMessage, Text: "hello"}); err != nil {
		t.Fatal(err)
	}
	for _, conn := range []*websocket.Conn{visitor, agent} {
		f := readFrame(t, conn)
		if f.Type != entity.FrameNewMessage || f.Message == nil || f.Message.Text != "hello" || f.Message.SenderID != "visitor-1" {
			t.Fatalf("expected new_message, got %+v", f)
		}
	}
	sessions.mu.Lock()
	if len(sessions.received) != 1 {
		t.Errorf("handler received %v", sessions.received)
	}
	sessions.mu.Unlock()

	hub.BroadcastToSession("s-1", entity.Frame{Type: entity.FrameSessionClosed, Reason: "resolved"})
	for _, conn := range []*websocket.Conn{visitor, agent} {
		f := readFrame(t, conn)
		if f.Type != entity.FrameSessionClosed || f.SessionID != "s-1" {
			t.Fatalf("expected session_closed, got %+v", f)
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("expected normal close, got %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.RoomSize("s-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room not torn down")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHistoryCarriesStatus(t *testing.T) {
	_, sessions, base := newTestServer(t)

	sessions.mu.Lock()
	sessions.status = map[string]entity.SessionStatus{"s-1": entity.StatusActive}
	sessions.mu.Unlock()

	visitor := dial(t, base, "s-1", "visitor-1", "user")
	f := readFrame(t, visitor)
	if f.Type != entity.FrameHistory || f.Status != entity.StatusActive {
		t.Fatalf("expected history with active status, got %+v", f)
	}
}

func TestUserLeft(t *testing.T) {
	_, _, base := newTestServer(t)

	visitor := dial(t, base, "s-1", "visitor-1", "user")
	readFrame(t, visitor)
	agent := dial(t, base, "s-1", "agent-1", "agent")
	readFrame(t, agent)
	readFrame(t, visitor)

	_ = agent.Close()
	f := readFrame(t, visitor)
	if f.Type != entity.FrameUserLeft || f.UserID != "agent-1" {
		t.Fatalf("expected user_left, got %+v", f)
	}
}

func TestJoinRejected(t *testing.T) {
	_, _, base := newTestServer(t)

	cases := []struct {
		name   string
		url    string
		status int
	}{
		{"unknown session", base + "nope?user_id=u", http.StatusNotFound},
		{"closed session", base + "done?user_id=u", http.StatusGone},
		{"missing user", base + "s-1", http.StatusBadRequest},
		{"bad role", base + "s-1?user_id=u&role=admin", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tc.url, nil)
			if err == nil {
				t.Fatal("dial should fail")
			}
			if resp == nil || resp.StatusCode != tc.status {
				t.Fatalf("expected status %d, got %+v", tc.status, resp)
			}
		})
	}
}
