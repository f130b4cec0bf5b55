package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"WidgetCS/entity"
	"WidgetCS/internal/lib/metrics"
	"WidgetCS/internal/lib/sl"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
)

// Client is a single websocket connection of a visitor or an agent to a session room.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	userID    string
	role      string
	status    entity.SessionStatus
	history   []entity.ChatMessage
}

// readPump pumps frames from the connection to the hub and detects disconnects.
func (c *Client) readPump() {
	metrics.WSConnections.Inc()
	defer func() {
		metrics.WSConnections.Dec()
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.hub.HandleClientMessage(c, message)
	}
}

// writePump pumps frames from the hub to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades a request to a session room connection. The session must
// exist and not be closed.
func ServeWs(hub *Hub, log *slog.Logger, w http.ResponseWriter, r *http.Request, sessionID string) {
	userID := r.URL.Query().Get("user_id")
	role := r.URL.Query().Get("role")
	if role == "" {
		role = entity.SenderTypeUser
	}
	if sessionID == "" || userID == "" {
		http.Error(w, "session_id and user_id are required", http.StatusBadRequest)
		return
	}
	if role != entity.SenderTypeUser && role != entity.SenderTypeAgent {
		http.Error(w, "unsupported role", http.StatusBadRequest)
		return
	}

	var status entity.SessionStatus
	var history []entity.ChatMessage
	if hub.handler != nil {
		var err error
		status, history, err = hub.handler.JoinSession(r.Context(), sessionID, userID, role)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			http.Error(w, "session not found", http.StatusNotFound)
			return
		case errors.Is(err, ErrSessionClosed):
			http.Error(w, "session closed", http.StatusGone)
			return
		case err != nil:
			log.Error("join session", slog.String("session_id", sessionID), sl.Err(err))
			http.Error(w, "join failed", http.StatusInternalServerError)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("websocket upgrade failed", sl.Err(err))
		return
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		sessionID: sessionID,
		userID:    userID,
		role:      role,
		status:    status,
		history:   history,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
