package chat

import (
	"WidgetCS/impl/core"
	"context"
)

type Core interface {
	ChatMessage(ctx context.Context, conversationID, text string) (*core.ChatReply, error)
}
