package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"WidgetCS/entity"
	"WidgetCS/internal/lib/sl"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second

	defaultReconnectBase = time.Second
	defaultReconnectMax  = 30 * time.Second
)

// ErrSessionGone is returned when the server no longer knows the session or
// has closed it. Such a session is never redialed.
var ErrSessionGone = errors.New("session is gone")

// ReasonSessionGone is the reason of the session_closed frame dispatched when
// a reconnect finds the session gone.
const ReasonSessionGone = "session_gone"

type Options struct {
	// URL is the base endpoint, the session id is appended as a path segment.
	URL    string
	UserID string
	Role   string

	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	// MaxAttempts limits reconnection attempts after an unexpected
	// disconnect, 0 means retry until Disconnect.
	MaxAttempts int

	Dialer *websocket.Dialer
	Log    *slog.Logger
}

// Channel owns at most one websocket connection to a human-chat session and
// re-establishes it after unexpected disconnects.
type Channel struct {
	opts Options
	log  *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
	connected bool
	running   bool
	gen       uint64
	cancel    context.CancelFunc

	writeMu sync.Mutex

	handlersMu   sync.RWMutex
	nextHandler  int
	msgHandlers  map[int]func(entity.Frame)
	connHandlers map[int]func(bool)
}

func New(opts Options) *Channel {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = defaultReconnectBase
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = defaultReconnectMax
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	lg := opts.Log
	if lg == nil {
		lg = slog.Default()
	}
	return &Channel{
		opts:         opts,
		log:          lg.With(sl.Module("realtime.channel")),
		msgHandlers:  make(map[int]func(entity.Frame)),
		connHandlers: make(map[int]func(bool)),
	}
}

// Connect opens the channel for sessionID. Connecting again to the same
// session is a no-op; a different session replaces the current one.
func (c *Channel) Connect(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	if c.running && c.sessionID == sessionID {
		c.mu.Unlock()
		return nil
	}
	previous := c.running
	c.mu.Unlock()

	if previous {
		c.Disconnect()
	}

	conn, err := c.dial(ctx, sessionID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.conn = conn
	c.sessionID = sessionID
	c.connected = true
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	c.log.Debug("connected", slog.String("session_id", sessionID))
	c.notifyConnection(true)

	go c.run(runCtx, gen, sessionID, conn)
	return nil
}

// Disconnect closes the channel and stops reconnection. Safe to call at any time.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.cancel()
	conn := c.conn
	wasConnected := c.connected
	sessionID := c.sessionID
	c.conn = nil
	c.connected = false
	c.running = false
	c.sessionID = ""
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}

	c.log.Debug("disconnected", slog.String("session_id", sessionID))
	if wasConnected {
		c.notifyConnection(false)
	}
}

// Send writes a frame. It returns false when the channel is not connected or
// the write fails; delivery is never assumed.
func (c *Channel) Send(frame entity.Frame) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	if frame.SessionID == "" {
		frame.SessionID = c.sessionID
	}
	c.mu.Unlock()

	if !connected || conn == nil {
		return false
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		c.log.Warn("send frame", slog.String("type", frame.Type), sl.Err(err))
		return false
	}
	return true
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// AddMessageHandler registers fn for every inbound frame and returns its remover.
func (c *Channel) AddMessageHandler(fn func(entity.Frame)) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.msgHandlers[id] = fn
	return func() {
		c.handlersMu.Lock()
		delete(c.msgHandlers, id)
		c.handlersMu.Unlock()
	}
}

// AddConnectionHandler registers fn for connected/disconnected transitions.
func (c *Channel) AddConnectionHandler(fn func(connected bool)) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	id := c.nextHandler
	c.nextHandler++
	c.connHandlers[id] = fn
	return func() {
		c.handlersMu.Lock()
		delete(c.connHandlers, id)
		c.handlersMu.Unlock()
	}
}

func (c *Channel) endpoint(sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.opts.URL, "/") + "/" + url.PathEscape(sessionID))
	if err != nil {
		return "", fmt.Errorf("parse channel url: %w", err)
	}
	q := u.Query()
	if c.opts.UserID != "" {
		q.Set("user_id", c.opts.UserID)
	}
	if c.opts.Role != "" {
		q.Set("role", c.opts.Role)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Channel) dial(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	endpoint, err := c.endpoint(sessionID)
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone) {
			return nil, fmt.Errorf("dial %s: %w (%s)", sessionID, ErrSessionGone, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", sessionID, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})
	return conn, nil
}

func (c *Channel) run(ctx context.Context, gen uint64, sessionID string, conn *websocket.Conn) {
	for {
		c.readLoop(conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}

		if !c.markDisconnected(gen) {
			return
		}
		c.log.Warn("connection lost, reconnecting", slog.String("session_id", sessionID))
		c.notifyConnection(false)

		var err error
		conn, err = c.reconnect(ctx, sessionID)
		if conn == nil {
			c.mu.Lock()
			current := c.gen == gen
			if current {
				c.running = false
				c.sessionID = ""
			}
			c.mu.Unlock()
			if current && errors.Is(err, ErrSessionGone) {
				c.dispatch(entity.Frame{
					Type:      entity.FrameSessionClosed,
					SessionID: sessionID,
					Reason:    ReasonSessionGone,
				})
			}
			return
		}
		if !c.markConnected(gen, conn) {
			_ = conn.Close()
			return
		}
		c.log.Info("reconnected", slog.String("session_id", sessionID))
		c.notifyConnection(true)
	}
}

func (c *Channel) markDisconnected(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.conn = nil
	c.connected = false
	return true
}

func (c *Channel) markConnected(gen uint64, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.conn = conn
	c.connected = true
	return true
}

// reconnect redials with exponential backoff. It stops early when ctx is done
// or the server reports the session gone.
func (c *Channel) reconnect(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	delay := c.opts.ReconnectBase
	for attempt := 1; c.opts.MaxAttempts == 0 || attempt <= c.opts.MaxAttempts; attempt++ {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		conn, err := c.dial(ctx, sessionID)
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, ErrSessionGone) {
			c.log.Info("session gone, not reconnecting",
				slog.String("session_id", sessionID),
				sl.Err(err),
			)
			return nil, err
		}
		c.log.Debug("reconnect attempt failed",
			slog.String("session_id", sessionID),
			slog.Int("attempt", attempt),
			sl.Err(err),
		)

		delay *= 2
		if delay > c.opts.ReconnectMax {
			delay = c.opts.ReconnectMax
		}
	}
	c.log.Error("giving up reconnecting", slog.String("session_id", sessionID))
	return nil, fmt.Errorf("reconnect %s: attempts exhausted", sessionID)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("read frame", sl.Err(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame entity.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn("malformed frame", sl.Err(err))
			continue
		}
		if !knownFrame(frame.Type) {
			c.log.Debug("unknown frame type", slog.String("type", frame.Type))
			continue
		}
		c.dispatch(frame)
	}
}

func knownFrame(t string) bool {
	switch t {
	case entity.FrameHistory, entity.FrameNewMessage, entity.FrameTyping,
		entity.FrameUserJoined, entity.FrameUserLeft,
		entity.FrameAgentJoined, entity.FrameSessionClosed:
		return true
	}
	return false
}

func (c *Channel) dispatch(frame entity.Frame) {
	c.handlersMu.RLock()
	handlers := make([]func(entity.Frame), 0, len(c.msgHandlers))
	for _, fn := range c.msgHandlers {
		handlers = append(handlers, fn)
	}
	c.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(frame)
	}
}

func (c *Channel) notifyConnection(connected bool) {
	c.handlersMu.RLock()
	handlers := make([]func(bool), 0, len(c.connHandlers))
	for _, fn := range c.connHandlers {
		handlers = append(handlers, fn)
	}
	c.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(connected)
	}
}
