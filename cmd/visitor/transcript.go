package main

import (
	"WidgetCS/entity"
	"WidgetCS/internal/humanchat"
	"fmt"
	"strings"
	"sync"
)

// transcript prints what changed since the previous update.
type transcript struct {
	self string
	done chan struct{}

	mu        sync.Mutex
	printed   int
	status    entity.SessionStatus
	typing    string
	connected bool
}

func (t *transcript) update(u humanchat.Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if u.Event == "connection" && u.Connected != t.connected {
		t.connected = u.Connected
		if u.Connected {
			fmt.Println("* connected")
		} else {
			fmt.Println("* connection lost, reconnecting")
		}
	}

	if len(u.Messages) < t.printed {
		// history replaced the log
		t.printed = 0
	}
	for _, m := range u.Messages[t.printed:] {
		fmt.Println(formatMessage(m, t.self))
	}
	t.printed = len(u.Messages)

	if typing := strings.Join(u.Typing, ", "); typing != t.typing {
		t.typing = typing
		if typing != "" {
			fmt.Printf("* %s typing...\n", typing)
		}
	}
	if u.Status != "" && u.Status != t.status {
		t.status = u.Status
		fmt.Printf("* status: %s\n", u.Status)
		if u.Status == entity.StatusClosed {
			close(t.done)
		}
	}
}

func formatMessage(m entity.ChatMessage, self string) string {
	switch {
	case m.SenderType == entity.SenderTypeSystem:
		return "* " + m.Text
	case m.SenderID == self:
		return "you: " + m.Text
	case m.SenderName != "":
		return m.SenderName + ": " + m.Text
	}
	return m.SenderType + ": " + m.Text
}
