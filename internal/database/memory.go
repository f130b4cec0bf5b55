package repository

import (
	"WidgetCS/entity"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps flows and human-chat data in process. It is used when MongoDB
// is disabled and in tests; nothing survives a restart.
type Memory struct {
	mu       sync.RWMutex
	flows    map[string]entity.Flow
	sessions map[string]entity.HumanChatSession
	messages map[string][]entity.ChatMessage
}

func NewMemory() *Memory {
	return &Memory{
		flows:    make(map[string]entity.Flow),
		sessions: make(map[string]entity.HumanChatSession),
		messages: make(map[string][]entity.ChatMessage),
	}
}

func (m *Memory) GetFlows() ([]entity.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	flows := make([]entity.Flow, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, cloneFlow(f))
	}
	sort.SliceStable(flows, func(i, j int) bool {
		if flows[i].CreatedAt.Equal(flows[j].CreatedAt) {
			return flows[i].ID < flows[j].ID
		}
		return flows[i].CreatedAt.Before(flows[j].CreatedAt)
	})
	return flows, nil
}

func (m *Memory) GetFlow(id string) (*entity.Flow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flows[id]
	if !ok {
		return nil, nil
	}
	f = cloneFlow(f)
	return &f, nil
}

func (m *Memory) CreateFlow(flow entity.Flow) (*entity.Flow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.nameTakenLocked(flow.Name, "") {
		return nil, ErrDuplicateFlow
	}
	now := time.Now()
	flow.ID = uuid.New().String()
	flow.CreatedAt = now
	flow.UpdatedAt = now
	m.flows[flow.ID] = cloneFlow(flow)
	return &flow, nil
}

func (m *Memory) UpdateFlow(flow entity.Flow) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.flows[flow.ID]
	if !ok {
		return false, nil
	}
	if m.nameTakenLocked(flow.Name, flow.ID) {
		return false, ErrDuplicateFlow
	}
	stored.Name = flow.Name
	stored.Options = flow.Options
	stored.UpdatedAt = time.Now()
	m.flows[flow.ID] = cloneFlow(stored)
	return true, nil
}

func (m *Memory) DeleteFlow(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.flows[id]
	delete(m.flows, id)
	return ok, nil
}

func (m *Memory) nameTakenLocked(name, exceptID string) bool {
	for id, f := range m.flows {
		if f.Name == name && id != exceptID {
			return true
		}
	}
	return false
}

func (m *Memory) SaveHumanChatSession(session entity.HumanChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.SessionID] = session
	return nil
}

func (m *Memory) GetHumanChatSession(sessionID string) (*entity.HumanChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Memory) GetHumanChatSessions(status entity.SessionStatus) ([]entity.HumanChatSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []entity.HumanChatSession
	for _, s := range m.sessions {
		if s.Status == status {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (m *Memory) SaveSessionMessage(msg entity.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], msg)
	return nil
}

func (m *Memory) GetSessionMessages(sessionID string, limit int) ([]entity.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]entity.ChatMessage(nil), msgs...), nil
}

func (m *Memory) DeleteClosedSessions(before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if s.Status != entity.StatusClosed || s.ClosedAt == nil || !s.ClosedAt.Before(before) {
			continue
		}
		delete(m.sessions, id)
		delete(m.messages, id)
		n++
	}
	return n, nil
}

func cloneFlow(f entity.Flow) entity.Flow {
	f.Options = append([]entity.FlowOption(nil), f.Options...)
	return f
}
