package gpt

import (
	"WidgetCS/entity"
	"WidgetCS/internal/config"
	"WidgetCS/internal/lib/sl"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultPrompt = `You are the customer support assistant of an online shop widget.
Answer briefly in the language of the visitor.
Reply with a JSON object: {"response": string, "recommended_products": [object], "followup_questions": [string]}.
Each recommended product may carry name, description, url, image_url, price, features, priority and is_accessory.`

// historyLimit bounds the transcript sent with each completion request.
const historyLimit = 20

type Overseer struct {
	client      *openai.Client
	model       string
	prompt      string
	temperature float32
	log         *slog.Logger
}

func NewOverseer(conf *config.Config, logger *slog.Logger) *Overseer {
	if conf.OpenAI.ApiKey == "" {
		return nil
	}
	return NewOverseerWithConfig(openai.DefaultConfig(conf.OpenAI.ApiKey), conf.OpenAI.Model, conf.OpenAI.Prompt, conf.OpenAI.Temperature, logger)
}

func NewOverseerWithConfig(cfg openai.ClientConfig, model, prompt string, temperature float32, logger *slog.Logger) *Overseer {
	if model == "" {
		model = openai.GPT4oMini
	}
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &Overseer{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		prompt:      prompt,
		temperature: temperature,
		log:         logger.With(sl.Module("overseer")),
	}
}

// ComposeResponse asks the model for the next reply of a conversation. It
// keeps no per-conversation state; callers serialize turns of one conversation.
func (o *Overseer) ComposeResponse(ctx context.Context, conversationID string, history []entity.Message, userMsg string) (entity.AiAnswer, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages:    o.buildMessages(history, userMsg),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return entity.AiAnswer{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return entity.AiAnswer{}, fmt.Errorf("chat completion: no choices")
	}

	content := resp.Choices[0].Message.Content
	o.log.With(
		slog.String("conversation_id", conversationID),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
	).Debug("completion received")

	return parseAnswer(content), nil
}

func (o *Overseer) buildMessages(history []entity.Message, userMsg string) []openai.ChatCompletionMessage {
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: o.prompt,
	})
	for _, m := range history {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := openai.ChatMessageRoleAssistant
		if m.Sender == entity.SenderUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMsg,
	})
}

// parseAnswer falls back to the plain content when the model ignored the
// requested JSON format.
func parseAnswer(content string) entity.AiAnswer {
	var answer entity.AiAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil || answer.Text == "" {
		answer = entity.AiAnswer{Text: content}
	}
	answer.Text = strings.TrimSpace(answer.Text)
	return answer
}
