package core

import (
	"WidgetCS/entity"
	"WidgetCS/internal/lib/metrics"
	"WidgetCS/internal/lib/sl"
	"WidgetCS/internal/ws"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrSessionTaken  = errors.New("session is handled by another agent")
)

const (
	waitingText = "Thanks! A support agent will join this chat shortly."
	closedText  = "The chat has been closed."
)

// RequestHumanChat opens a waiting session for a conversation and alerts agents.
func (c *Core) RequestHumanChat(conversationID string) (*entity.HumanChatSession, error) {
	if conversationID == "" {
		conversationID = uuid.New().String()
	}
	now := c.now()
	session := entity.HumanChatSession{
		SessionID:      uuid.New().String(),
		ConversationID: conversationID,
		Status:         entity.StatusWaiting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.repo.SaveHumanChatSession(session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if _, err := c.addSystemMessage(session.SessionID, waitingText); err != nil {
		return nil, err
	}

	c.log.With(
		slog.String("session_id", session.SessionID),
		slog.String("conversation_id", conversationID),
	).Info("human chat requested")
	metrics.HumanChatEvents.WithLabelValues("requested").Inc()

	if c.notifier != nil {
		go c.notifier.NotifyHumanChatRequest(session)
	}
	return &session, nil
}

func (c *Core) SessionMessages(sessionID string) ([]entity.ChatMessage, error) {
	if _, err := c.session(sessionID); err != nil {
		return nil, err
	}
	messages, err := c.repo.GetSessionMessages(sessionID, c.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	if messages == nil {
		messages = []entity.ChatMessage{}
	}
	return messages, nil
}

func (c *Core) WaitingSessions() ([]entity.HumanChatSession, error) {
	sessions, err := c.repo.GetHumanChatSessions(entity.StatusWaiting)
	if err != nil {
		return nil, fmt.Errorf("get waiting sessions: %w", err)
	}
	if sessions == nil {
		sessions = []entity.HumanChatSession{}
	}
	return sessions, nil
}

// JoinHumanChat assigns an agent to a waiting session. Joining again as the
// same agent is a no-op.
func (c *Core) JoinHumanChat(sessionID, agentID, agentName string) (*entity.HumanChatSession, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	session, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case session.Status == entity.StatusActive && session.AgentID == agentID:
		return session, nil
	case session.Status == entity.StatusClosed:
		return nil, ErrSessionClosed
	case !session.Status.CanTransition(entity.StatusActive):
		return nil, ErrSessionTaken
	}

	if agentName == "" {
		agentName = "Support agent"
	}
	session.Status = entity.StatusActive
	session.AgentID = agentID
	session.AgentName = agentName
	session.UpdatedAt = c.now()
	if err = c.repo.SaveHumanChatSession(*session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	msg, err := c.addSystemMessage(sessionID, agentName+" joined the chat")
	if err != nil {
		return nil, err
	}
	c.broadcast(sessionID, entity.Frame{
		Type:     entity.FrameAgentJoined,
		Message:  msg,
		UserID:   agentID,
		UserName: agentName,
	})

	c.log.With(
		slog.String("session_id", sessionID),
		slog.String("agent_id", agentID),
	).Info("agent joined human chat")
	metrics.HumanChatEvents.WithLabelValues("joined").Inc()
	return session, nil
}

// CloseHumanChat ends a session. Closing a closed session changes nothing.
func (c *Core) CloseHumanChat(sessionID, reason string) (*entity.HumanChatSession, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	session, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == entity.StatusClosed {
		return session, nil
	}

	now := c.now()
	session.Status = entity.StatusClosed
	session.CloseReason = reason
	session.UpdatedAt = now
	session.ClosedAt = &now
	if err = c.repo.SaveHumanChatSession(*session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	msg, err := c.addSystemMessage(sessionID, closedText)
	if err != nil {
		c.log.Warn("closing message not saved", slog.String("session_id", sessionID), sl.Err(err))
	}
	c.broadcast(sessionID, entity.Frame{
		Type:    entity.FrameSessionClosed,
		Message: msg,
		Reason:  reason,
	})

	c.log.With(
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
	).Info("human chat closed")
	metrics.HumanChatEvents.WithLabelValues("closed").Inc()
	return session, nil
}

// JoinSession admits a realtime connection to a session room.
func (c *Core) JoinSession(_ context.Context, sessionID, userID, role string) (entity.SessionStatus, []entity.ChatMessage, error) {
	session, err := c.repo.GetHumanChatSession(sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return "", nil, ws.ErrSessionNotFound
	}
	if session.Status == entity.StatusClosed {
		return "", nil, ws.ErrSessionClosed
	}
	c.log.With(
		slog.String("session_id", sessionID),
		slog.String("user_id", userID),
		slog.String("role", role),
	).Debug("realtime join")
	messages, err := c.repo.GetSessionMessages(sessionID, c.historyLimit)
	if err != nil {
		return "", nil, err
	}
	return session.Status, messages, nil
}

// HandleClientMessage stores a chat message sent over the realtime channel
// and delivers it to the session room.
func (c *Core) HandleClientMessage(_ context.Context, sessionID, userID, role, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	session, err := c.session(sessionID)
	if err != nil {
		return err
	}
	if session.Status == entity.StatusClosed {
		return ErrSessionClosed
	}

	msg := entity.ChatMessage{
		MessageID:  uuid.New().String(),
		SessionID:  sessionID,
		SenderType: role,
		SenderID:   userID,
		Text:       text,
		CreatedAt:  c.now(),
	}
	if role == entity.SenderTypeAgent && userID == session.AgentID {
		msg.SenderName = session.AgentName
	}
	if err = c.repo.SaveSessionMessage(msg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	c.broadcast(sessionID, entity.Frame{Type: entity.FrameNewMessage, Message: &msg})
	return nil
}

// CleanupClosedSessions removes closed sessions past the retention period.
func (c *Core) CleanupClosedSessions(now time.Time) (int64, error) {
	n, err := c.repo.DeleteClosedSessions(now.Add(-c.retention))
	if err != nil {
		return 0, fmt.Errorf("delete closed sessions: %w", err)
	}
	return n, nil
}

func (c *Core) session(sessionID string) (*entity.HumanChatSession, error) {
	session, err := c.repo.GetHumanChatSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return session, nil
}

func (c *Core) addSystemMessage(sessionID, text string) (*entity.ChatMessage, error) {
	msg := entity.ChatMessage{
		MessageID:  uuid.New().String(),
		SessionID:  sessionID,
		SenderType: entity.SenderTypeSystem,
		Text:       text,
		CreatedAt:  c.now(),
	}
	if err := c.repo.SaveSessionMessage(msg); err != nil {
		return nil, fmt.Errorf("save system message: %w", err)
	}
	return &msg, nil
}
