package entity

import (
	"time"
)

const (
	SenderBot    = "bot"
	SenderUser   = "user"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

// Message is a single entry of the widget transcript, guided or free-text chat.
type Message struct {
	ID                string         `json:"id,omitempty"`
	Text              string         `json:"text"`
	Sender            string         `json:"sender"`
	IsOption          bool           `json:"isOption,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	FollowupQuestions []string       `json:"followup_questions,omitempty"`
	Payload           map[string]any `json:"payload,omitempty"`
}
