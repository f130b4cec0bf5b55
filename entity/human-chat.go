package entity

import "time"

type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusClosed  SessionStatus = "closed"
)

// HumanChatSession is an escalation from the guided or AI chat to a live agent.
type HumanChatSession struct {
	SessionID      string        `json:"session_id" bson:"session_id"`
	ConversationID string        `json:"conversation_id" bson:"conversation_id"`
	Status         SessionStatus `json:"status" bson:"status"`
	AgentID        string        `json:"agent_id,omitempty" bson:"agent_id,omitempty"`
	AgentName      string        `json:"agent_name,omitempty" bson:"agent_name,omitempty"`
	CloseReason    string        `json:"close_reason,omitempty" bson:"close_reason,omitempty"`
	CreatedAt      time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" bson:"updated_at"`
	ClosedAt       *time.Time    `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
}

// CanTransition reports whether the session may move to next. Closed is terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case StatusWaiting:
		return next == StatusActive || next == StatusClosed
	case StatusActive:
		return next == StatusClosed
	}
	return false
}
