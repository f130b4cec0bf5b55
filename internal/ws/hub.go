package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"WidgetCS/entity"
	"WidgetCS/internal/lib/sl"
)

// SessionHandler is the human-chat service behind the realtime server.
type SessionHandler interface {
	// JoinSession checks that the session can be joined and returns its
	// current status and history.
	JoinSession(ctx context.Context, sessionID, userID, role string) (entity.SessionStatus, []entity.ChatMessage, error)
	// HandleClientMessage persists a chat message sent over the socket; the
	// service broadcasts it back to the room.
	HandleClientMessage(ctx context.Context, sessionID, userID, role, text string) error
}

// roomEvent is a frame addressed to one session room.
type roomEvent struct {
	sessionID string
	data      []byte
	// except skips the sender, used for typing frames
	except *Client
	// closeRoom disconnects every member after delivery
	closeRoom bool
}

// Hub keeps one room of websocket clients per human-chat session.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan *roomEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	handler    SessionHandler
	log        *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *roomEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.With(sl.Module("ws.hub")),
	}
}

func (h *Hub) SetHandler(handler SessionHandler) {
	h.handler = handler
}

// Run starts the hub's event loop until ctx is done. Should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, room := range h.rooms {
				for client := range room {
					close(client.send)
				}
				delete(h.rooms, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.join(client)

		case client := <-h.unregister:
			h.leave(client)

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) join(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.sessionID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[client.sessionID] = room
	}
	room[client] = true
	h.mu.Unlock()

	history, _ := json.Marshal(entity.Frame{
		Type:      entity.FrameHistory,
		SessionID: client.sessionID,
		Messages:  client.history,
		Status:    client.status,
	})
	client.history = nil
	h.sendTo(client, history)

	joined, _ := json.Marshal(entity.Frame{
		Type:      entity.FrameUserJoined,
		SessionID: client.sessionID,
		UserID:    client.userID,
		UserName:  client.role,
	})
	h.deliver(&roomEvent{sessionID: client.sessionID, data: joined, except: client})

	h.log.Debug("client joined",
		slog.String("session_id", client.sessionID),
		slog.String("user_id", client.userID),
		slog.String("role", client.role),
	)
}

func (h *Hub) leave(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.sessionID]
	if !ok || !room[client] {
		h.mu.Unlock()
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.sessionID)
	}
	h.mu.Unlock()

	left, _ := json.Marshal(entity.Frame{
		Type:      entity.FrameUserLeft,
		SessionID: client.sessionID,
		UserID:    client.userID,
	})
	h.deliver(&roomEvent{sessionID: client.sessionID, data: left})
}

func (h *Hub) deliver(event *roomEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[event.sessionID]
	for client := range room {
		if client == event.except {
			continue
		}
		select {
		case client.send <- event.data:
		default:
			// slow consumer, drop it
			close(client.send)
			delete(room, client)
		}
	}

	if event.closeRoom {
		for client := range room {
			close(client.send)
			delete(room, client)
		}
	}
	if len(room) == 0 {
		delete(h.rooms, event.sessionID)
	}
}

func (h *Hub) sendTo(client *Client, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.rooms[client.sessionID][client] {
		return
	}
	select {
	case client.send <- data:
	default:
		close(client.send)
		delete(h.rooms[client.sessionID], client)
	}
}

// BroadcastToSession sends a frame to every member of the session room.
// A session_closed frame also tears the room down.
func (h *Hub) BroadcastToSession(sessionID string, frame entity.Frame) {
	frame.SessionID = sessionID
	data, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("marshal frame", slog.String("type", frame.Type), sl.Err(err))
		return
	}
	h.enqueue(&roomEvent{
		sessionID: sessionID,
		data:      data,
		closeRoom: frame.Type == entity.FrameSessionClosed,
	})
}

func (h *Hub) enqueue(event *roomEvent) {
	select {
	case h.broadcast <- event:
	case <-h.done:
	}
}

// BroadcastMessage sends a new_message frame to the session room.
func (h *Hub) BroadcastMessage(msg entity.ChatMessage) {
	h.BroadcastToSession(msg.SessionID, entity.Frame{
		Type:    entity.FrameNewMessage,
		Message: &msg,
	})
}

// RoomSize returns the number of clients connected to a session.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// HandleClientMessage parses and dispatches an incoming frame from a client.
func (h *Hub) HandleClientMessage(client *Client, raw []byte) {
	var frame entity.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.log.Warn("failed to parse client ws message", sl.Err(err))
		return
	}

	switch frame.Type {
	case entity.FrameMessage:
		if h.handler == nil || frame.Text == "" {
			return
		}
		err := h.handler.HandleClientMessage(context.Background(), client.sessionID, client.userID, client.role, frame.Text)
		if err != nil {
			h.log.Error("failed to handle chat message",
				slog.String("session_id", client.sessionID),
				slog.String("user_id", client.userID),
				sl.Err(err),
			)
		}

	case entity.FrameTyping:
		data, err := json.Marshal(entity.Frame{
			Type:      entity.FrameTyping,
			SessionID: client.sessionID,
			UserID:    client.userID,
			IsTyping:  frame.IsTyping,
		})
		if err != nil {
			return
		}
		h.enqueue(&roomEvent{sessionID: client.sessionID, data: data, except: client})

	default:
		h.log.Debug("unsupported client frame", slog.String("type", frame.Type))
	}
}
