package humanchat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"WidgetCS/entity"
	"WidgetCS/internal/lib/sl"
)

// HTTPAPI calls the human-chat REST endpoints of the widget backend.
type HTTPAPI struct {
	BaseURL string
	Client  *http.Client
	Log     *slog.Logger
}

func NewHTTPAPI(baseURL string, log *slog.Logger) *HTTPAPI {
	return &HTTPAPI{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 15 * time.Second},
		Log:     log.With(sl.Module("humanchat.api")),
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Success bool            `json:"success"`
	Message string          `json:"status_message"`
}

func (a *HTTPAPI) RequestHumanChat(ctx context.Context, conversationID string) (*entity.HumanChatSession, error) {
	body := map[string]string{"conversation_id": conversationID}
	var out struct {
		Session entity.HumanChatSession `json:"session"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/human-chat/request", body, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

func (a *HTTPAPI) Messages(ctx context.Context, sessionID string) ([]entity.ChatMessage, error) {
	var out []entity.ChatMessage
	path := fmt.Sprintf("/api/human-chat/%s/messages", url.PathEscape(sessionID))
	if err := a.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPAPI) CloseSession(ctx context.Context, sessionID, reason string) error {
	body := map[string]string{"reason": reason}
	path := fmt.Sprintf("/api/human-chat/%s/close", url.PathEscape(sessionID))
	return a.do(ctx, http.MethodPost, path, body, nil)
}

func (a *HTTPAPI) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		requestBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(requestBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("request failed with status %d: %w", resp.StatusCode, err)
	}
	if !env.Success {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, env.Message)
	}

	a.Log.Debug("human chat api", slog.String("method", method), slog.String("path", path))

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
