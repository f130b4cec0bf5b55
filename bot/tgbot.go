package bot

import (
	"WidgetCS/entity"
	"WidgetCS/internal/lib/sl"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
)

// WaitingLister gives the admin chat access to the human-chat queue.
type WaitingLister interface {
	WaitingSessions() ([]entity.HumanChatSession, error)
}

type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	botUsername string
	adminId     int64
	queue       WaitingLister
	updater     *ext.Updater
}

func NewTgBot(botName, apiKey string, adminId int64, log *slog.Logger) (*TgBot, error) {
	tgBot := &TgBot{
		log:         log.With(sl.Module("tgbot")),
		adminId:     adminId,
		botUsername: botName,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api

	return tgBot, nil
}

func (t *TgBot) SetWaitingLister(queue WaitingLister) {
	t.queue = queue
}

// Start polls for admin commands. It blocks until Stop.
func (t *TgBot) Start() error {
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Warn("handling update", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	dispatcher.AddHandler(handlers.NewCommand("waiting", t.waiting))

	t.updater = ext.NewUpdater(dispatcher, nil)
	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	t.log.Info("telegram bot started", slog.String("bot", t.botUsername))

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	if t.updater != nil {
		_ = t.updater.Stop()
	}
}

// waiting answers the admin with the list of visitors waiting for an agent.
func (t *TgBot) waiting(b *tgbotapi.Bot, ctx *ext.Context) error {
	if ctx.EffectiveChat == nil || ctx.EffectiveChat.Id != t.adminId {
		return nil
	}
	if t.queue == nil {
		t.plainResponse(t.adminId, "Queue is not available")
		return nil
	}
	sessions, err := t.queue.WaitingSessions()
	if err != nil {
		return fmt.Errorf("listing waiting sessions: %w", err)
	}
	t.plainResponse(t.adminId, formatQueue(sessions, time.Now()))
	return nil
}

// SendMessage delivers a plain text to the admin chat; it backs log alerts.
func (t *TgBot) SendMessage(msg string) {
	t.plainResponse(t.adminId, msg)
}

// NotifyHumanChatRequest tells the admin chat a visitor asked for an agent.
func (t *TgBot) NotifyHumanChatRequest(session entity.HumanChatSession) {
	t.plainResponse(t.adminId, formatRequest(session))
}

func formatRequest(session entity.HumanChatSession) string {
	return fmt.Sprintf("*New human chat request*\nsession: %s\nconversation: %s\nat: %s",
		session.SessionID,
		session.ConversationID,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
	)
}

func formatQueue(sessions []entity.HumanChatSession, now time.Time) string {
	if len(sessions) == 0 {
		return "No visitors are waiting"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "*Waiting: %d*", len(sessions))
	for _, s := range sessions {
		fmt.Fprintf(&b, "\n%s waiting %s", s.SessionID, now.Sub(s.CreatedAt).Truncate(time.Second))
	}
	return b.String()
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	sanitized := sanitize(text)
	if sanitized == "" {
		t.log.With(
			slog.Int64("id", chatId),
		).Debug("empty message")
		return
	}

	_, err := t.api.SendMessage(chatId, sanitized, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(
			slog.Int64("id", chatId),
		).Warn("sending message", sl.Err(err))
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(
				slog.Int64("id", chatId),
			).Error("sending safe message", sl.Err(err))
		}
	}
}

// sanitize escapes MarkdownV2 reserved characters, keeping * for bold.
func sanitize(input string) string {
	const reservedChars = "\\`_{}#+-.!|()[]=>~"
	var b strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
