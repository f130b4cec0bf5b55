package humanchat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"WidgetCS/entity"
	"WidgetCS/internal/lib/sl"
)

var ErrNoSession = errors.New("no human chat session")

// API is the REST side of the human-chat backend.
type API interface {
	RequestHumanChat(ctx context.Context, conversationID string) (*entity.HumanChatSession, error)
	Messages(ctx context.Context, sessionID string) ([]entity.ChatMessage, error)
	CloseSession(ctx context.Context, sessionID, reason string) error
}

// Channel is the realtime transport of a session.
type Channel interface {
	Connect(ctx context.Context, sessionID string) error
	Disconnect()
	Send(frame entity.Frame) bool
	AddMessageHandler(fn func(entity.Frame)) func()
	AddConnectionHandler(fn func(connected bool)) func()
}

// Update is delivered to listeners after every change of the session or the
// connection state.
type Update struct {
	Snapshot
	Connected bool   `json:"connected"`
	Event     string `json:"event"`
}

const eventConnection = "connection"

// Client runs one escalation for a visitor: request, realtime exchange, close.
type Client struct {
	api    API
	ch     Channel
	userID string
	log    *slog.Logger

	typingIdle time.Duration
	typing     *Typing

	mu        sync.Mutex
	session   *Session
	connected bool
	detach    []func()
	listeners map[int]func(Update)
	nextID    int
}

func NewClient(api API, ch Channel, userID string, typingIdle time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		api:        api,
		ch:         ch,
		userID:     userID,
		log:        log.With(sl.Module("humanchat.client")),
		typingIdle: typingIdle,
		listeners:  make(map[int]func(Update)),
	}
	c.typing = NewTyping(typingIdle, c.sendTyping)
	return c
}

// Start requests a human agent for the conversation and opens the realtime
// channel of the new session. A running session is replaced.
func (c *Client) Start(ctx context.Context, conversationID string) (*entity.HumanChatSession, error) {
	info, err := c.api.RequestHumanChat(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("request human chat: %w", err)
	}

	c.teardown()

	session := NewSession(info.SessionID, c.userID, info.Status, c.log)
	history, err := c.api.Messages(ctx, info.SessionID)
	if err != nil {
		c.log.Warn("load session history", slog.String("session_id", info.SessionID), sl.Err(err))
	}
	for _, m := range history {
		session.AddMessage(m)
	}

	c.mu.Lock()
	c.session = session
	c.detach = []func(){
		c.ch.AddMessageHandler(c.onFrame),
		c.ch.AddConnectionHandler(c.onConnection),
	}
	c.mu.Unlock()

	if err := c.ch.Connect(ctx, info.SessionID); err != nil {
		return info, fmt.Errorf("connect session %s: %w", info.SessionID, err)
	}

	c.log.Info("human chat started",
		slog.String("session_id", info.SessionID),
		slog.String("conversation_id", conversationID),
	)
	return info, nil
}

// Send delivers a chat message. It returns false when there is no open
// session or the channel could not take the frame; the caller tells the user.
func (c *Client) Send(text string) bool {
	session := c.current()
	if session == nil || session.Status() == entity.StatusClosed {
		return false
	}
	c.typing.Stop()
	return c.ch.Send(entity.Frame{
		Type:      entity.FrameMessage,
		SessionID: session.ID(),
		UserID:    c.userID,
		Text:      text,
	})
}

// KeyPress feeds the typing debouncer.
func (c *Client) KeyPress() {
	if s := c.current(); s == nil || s.Status() == entity.StatusClosed {
		return
	}
	c.typing.KeyPress()
}

// Close ends the session on the server and always tears down the channel
// locally, whatever the server answered.
func (c *Client) Close(ctx context.Context, reason string) error {
	session := c.current()
	if session == nil {
		return ErrNoSession
	}

	err := c.api.CloseSession(ctx, session.ID(), reason)
	if err != nil {
		c.log.Warn("close session", slog.String("session_id", session.ID()), sl.Err(err))
		err = fmt.Errorf("close session %s: %w", session.ID(), err)
	}

	c.typing.Stop()
	session.MarkClosed()
	c.teardown()
	c.publish("closed")
	return err
}

// OnUpdate registers a listener and returns its remover.
func (c *Client) OnUpdate(fn func(Update)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) Snapshot() (Snapshot, bool) {
	session := c.current()
	if session == nil {
		return Snapshot{}, false
	}
	return session.Snapshot(), true
}

func (c *Client) current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) teardown() {
	c.mu.Lock()
	detach := c.detach
	c.detach = nil
	c.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	c.ch.Disconnect()
}

func (c *Client) onFrame(f entity.Frame) {
	session := c.current()
	if session == nil {
		return
	}
	if f.SessionID != "" && f.SessionID != session.ID() {
		return
	}
	if !session.Apply(f) {
		return
	}
	if f.Type == entity.FrameSessionClosed {
		c.typing.Stop()
		c.teardown()
	}
	c.publish(f.Type)
}

func (c *Client) onConnection(connected bool) {
	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()
	if !connected {
		c.log.Debug("realtime channel down")
	}
	c.publish(eventConnection)
}

func (c *Client) sendTyping(isTyping bool) bool {
	session := c.current()
	if session == nil {
		return false
	}
	return c.ch.Send(entity.Frame{
		Type:      entity.FrameTyping,
		SessionID: session.ID(),
		UserID:    c.userID,
		IsTyping:  isTyping,
	})
}

func (c *Client) publish(event string) {
	c.mu.Lock()
	session := c.session
	update := Update{Connected: c.connected, Event: event}
	listeners := make([]func(Update), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if session != nil {
		update.Snapshot = session.Snapshot()
	}
	for _, fn := range listeners {
		fn(update)
	}
}
