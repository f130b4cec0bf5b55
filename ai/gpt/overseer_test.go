package gpt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"

	"WidgetCS/entity"
)

func TestComposeResponse(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		content := `{"response":" Try the X100\n","recommended_products":[{"name":"X100","priority":2}]}`
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			}},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test")
	cfg.BaseURL = srv.URL + "/v1"
	o := NewOverseerWithConfig(cfg, "", "", 0.2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	history := []entity.Message{
		{Text: "Hi! How can we help you today?", Sender: entity.SenderBot},
		{Text: "I need a printer", Sender: entity.SenderUser},
		{Text: "", Sender: entity.SenderBot},
	}
	answer, err := o.ComposeResponse(context.Background(), "conv-1", history, "something cheap")
	if err != nil {
		t.Fatal(err)
	}

	if answer.Text != "Try the X100" {
		t.Errorf("text = %q", answer.Text)
	}
	if len(answer.RecommendedProducts) != 1 || answer.RecommendedProducts[0]["name"] != "X100" {
		t.Errorf("products = %v", answer.RecommendedProducts)
	}

	if got.Model != openai.GPT4oMini {
		t.Errorf("model = %q", got.Model)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Error("json response format expected")
	}
	roles := []string{openai.ChatMessageRoleSystem, openai.ChatMessageRoleAssistant, openai.ChatMessageRoleUser, openai.ChatMessageRoleUser}
	if len(got.Messages) != len(roles) {
		t.Fatalf("messages = %+v", got.Messages)
	}
	for i, role := range roles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, got.Messages[i].Role, role)
		}
	}
}

func TestParseAnswerPlainText(t *testing.T) {
	a := parseAnswer("just text")
	if a.Text != "just text" || a.RecommendedProducts != nil {
		t.Errorf("unexpected %+v", a)
	}
}
