package entity

import (
	"time"
)

const (
	SenderTypeUser   = "user"
	SenderTypeAgent  = "agent"
	SenderTypeSystem = "system"
)

// ChatMessage represents a single message of a live human-chat session.
type ChatMessage struct {
	MessageID  string    `json:"message_id" bson:"message_id"`
	SessionID  string    `json:"session_id" bson:"session_id"`
	SenderType string    `json:"sender_type" bson:"sender_type"` // "user" | "agent" | "system"
	SenderID   string    `json:"sender_id,omitempty" bson:"sender_id,omitempty"`
	SenderName string    `json:"sender_name,omitempty" bson:"sender_name,omitempty"`
	Text       string    `json:"text" bson:"text"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}
