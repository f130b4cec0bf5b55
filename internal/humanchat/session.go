package humanchat

import (
	"log/slog"
	"sort"
	"sync"

	"WidgetCS/entity"
)

// Snapshot is a copy of a session suitable for rendering.
type Snapshot struct {
	SessionID string               `json:"session_id"`
	Status    entity.SessionStatus `json:"status"`
	Messages  []entity.ChatMessage `json:"messages"`
	Typing    []string             `json:"typing"`
	Present   []string             `json:"present"`
}

// Session is the visitor side view of a human-chat escalation. Status moves
// waiting -> active -> closed and never leaves closed.
type Session struct {
	mu       sync.Mutex
	id       string
	self     string
	status   entity.SessionStatus
	messages []entity.ChatMessage
	seen     map[string]struct{}
	typing   map[string]struct{}
	present  map[string]struct{}
	log      *slog.Logger
}

func NewSession(id, self string, status entity.SessionStatus, log *slog.Logger) *Session {
	if status == "" {
		status = entity.StatusWaiting
	}
	return &Session{
		id:      id,
		self:    self,
		status:  status,
		seen:    make(map[string]struct{}),
		typing:  make(map[string]struct{}),
		present: make(map[string]struct{}),
		log:     log,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Status() entity.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Apply folds a realtime frame into the session and reports whether anything
// changed. Frames arriving after close are ignored.
func (s *Session) Apply(f entity.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == entity.StatusClosed {
		s.log.Debug("frame after session close ignored",
			slog.String("session_id", s.id),
			slog.String("type", f.Type),
		)
		return false
	}

	switch f.Type {
	case entity.FrameHistory:
		s.messages = nil
		s.seen = make(map[string]struct{})
		for _, m := range f.Messages {
			s.addLocked(m)
		}
		// status changes pushed while this client was offline
		if f.Status != "" && s.status.CanTransition(f.Status) {
			s.status = f.Status
		}
		return true

	case entity.FrameNewMessage:
		if f.Message == nil {
			return false
		}
		return s.addLocked(*f.Message)

	case entity.FrameTyping:
		if f.UserID == "" || f.UserID == s.self {
			return false
		}
		_, was := s.typing[f.UserID]
		if f.IsTyping {
			s.typing[f.UserID] = struct{}{}
		} else {
			delete(s.typing, f.UserID)
		}
		return was != f.IsTyping

	case entity.FrameUserJoined:
		if f.UserID == "" {
			return false
		}
		s.present[f.UserID] = struct{}{}
		return true

	case entity.FrameUserLeft:
		delete(s.present, f.UserID)
		return true

	case entity.FrameAgentJoined:
		if s.status.CanTransition(entity.StatusActive) {
			s.status = entity.StatusActive
		}
		if f.Message != nil {
			s.addLocked(*f.Message)
		}
		return true

	case entity.FrameSessionClosed:
		s.status = entity.StatusClosed
		if f.Message != nil {
			s.addLocked(*f.Message)
		}
		return true
	}
	return false
}

// AddMessage appends a message unless its id is already present.
func (s *Session) AddMessage(m entity.ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(m)
}

func (s *Session) addLocked(m entity.ChatMessage) bool {
	if m.MessageID != "" {
		if _, dup := s.seen[m.MessageID]; dup {
			return false
		}
		s.seen[m.MessageID] = struct{}{}
	}
	s.messages = append(s.messages, m)
	return true
}

// MarkClosed closes the session locally, e.g. after the visitor ended it.
func (s *Session) MarkClosed() {
	s.mu.Lock()
	s.status = entity.StatusClosed
	s.mu.Unlock()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID: s.id,
		Status:    s.status,
		Messages:  append([]entity.ChatMessage{}, s.messages...),
		Typing:    keys(s.typing),
		Present:   keys(s.present),
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
