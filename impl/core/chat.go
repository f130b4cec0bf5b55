package core

import (
	"WidgetCS/entity"
	"WidgetCS/internal/lib/metrics"
	"WidgetCS/internal/lib/sl"
	"WidgetCS/internal/recommend"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrAssistantDisabled = errors.New("ai assistant is not configured")

// chatHistoryLimit bounds the per-conversation transcript kept in memory.
const chatHistoryLimit = 40

type conversation struct {
	mu       sync.Mutex
	messages []entity.Message
	lastSeen time.Time
}

// ChatReply is the bot answer in chat mode with its normalized recommendations.
type ChatReply struct {
	ConversationID  string           `json:"conversation_id"`
	Message         entity.Message   `json:"message"`
	Recommendations recommend.Result `json:"recommendations"`
}

// ChatMessage answers a free-text visitor message with the AI assistant.
func (c *Core) ChatMessage(ctx context.Context, conversationID, text string) (*ChatReply, error) {
	if c.ass == nil {
		return nil, ErrAssistantDisabled
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty message")
	}
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	conv := c.conversation(conversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()

	start := time.Now()
	answer, err := c.ass.ComposeResponse(ctx, conversationID, conv.messages, text)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.AssistantRequests.WithLabelValues(status).Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.With(
			slog.String("conversation_id", conversationID),
		).Error("composing response", sl.Err(err))
		return nil, fmt.Errorf("compose response: %w", err)
	}

	now := c.now()
	reply := entity.Message{
		ID:                uuid.New().String(),
		Text:              answer.Text,
		Sender:            entity.SenderBot,
		Timestamp:         now,
		FollowupQuestions: answer.FollowupQuestions,
	}
	if len(answer.RecommendedProducts) > 0 {
		products := make([]any, len(answer.RecommendedProducts))
		for i, p := range answer.RecommendedProducts {
			products[i] = p
		}
		reply.Payload = map[string]any{"recommended_products": products}
	}

	conv.messages = append(conv.messages,
		entity.Message{ID: uuid.New().String(), Text: text, Sender: entity.SenderUser, Timestamp: now},
		reply,
	)
	if len(conv.messages) > chatHistoryLimit {
		conv.messages = conv.messages[len(conv.messages)-chatHistoryLimit:]
	}

	return &ChatReply{
		ConversationID:  conversationID,
		Message:         reply,
		Recommendations: c.normalizer.ExtractMessage(reply),
	}, nil
}

func (c *Core) conversation(id string) *conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.conversations[id]
	if !ok {
		conv = &conversation{}
		c.conversations[id] = conv
	}
	conv.lastSeen = c.now()
	return conv
}
