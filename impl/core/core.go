package core

import (
	"WidgetCS/entity"
	"WidgetCS/internal/guided"
	"WidgetCS/internal/lib/sl"
	"WidgetCS/internal/recommend"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

type Repository interface {
	GetFlows() ([]entity.Flow, error)
	GetFlow(id string) (*entity.Flow, error)
	CreateFlow(flow entity.Flow) (*entity.Flow, error)
	UpdateFlow(flow entity.Flow) (bool, error)
	DeleteFlow(id string) (bool, error)

	SaveHumanChatSession(session entity.HumanChatSession) error
	GetHumanChatSession(sessionID string) (*entity.HumanChatSession, error)
	GetHumanChatSessions(status entity.SessionStatus) ([]entity.HumanChatSession, error)
	SaveSessionMessage(msg entity.ChatMessage) error
	GetSessionMessages(sessionID string, limit int) ([]entity.ChatMessage, error)
	DeleteClosedSessions(before time.Time) (int64, error)
}

// Realtime pushes frames to the members of a human-chat session.
type Realtime interface {
	BroadcastToSession(sessionID string, frame entity.Frame)
}

type Notifier interface {
	NotifyHumanChatRequest(session entity.HumanChatSession)
}

type Assistant interface {
	ComposeResponse(ctx context.Context, conversationID string, history []entity.Message, userMsg string) (entity.AiAnswer, error)
}

type GuidedSettings struct {
	BotResponseDelay         time.Duration
	KeepStaleResponses       bool
	ReleaseUnansweredOptions bool
	Greeting                 string
	SessionTTL               time.Duration
}

type Core struct {
	repo       Repository
	realtime   Realtime
	notifier   Notifier
	ass        Assistant
	graph      *guided.Graph
	normalizer *recommend.Normalizer
	validate   *validator.Validate

	guidedSettings GuidedSettings
	historyLimit   int
	retention      time.Duration

	mu            sync.Mutex
	engines       map[string]*guidedEntry
	conversations map[string]*conversation

	// serializes session state transitions
	sessionMu sync.Mutex
	now       func() time.Time
	log       *slog.Logger
}

func New(log *slog.Logger) *Core {
	return &Core{
		log:            log.With(sl.Module("core")),
		graph:          guided.NewGraph(),
		normalizer:     recommend.New(log),
		validate:       validator.New(),
		guidedSettings: GuidedSettings{SessionTTL: time.Hour},
		historyLimit:   200,
		retention:      30 * 24 * time.Hour,
		engines:        make(map[string]*guidedEntry),
		conversations:  make(map[string]*conversation),
		now:            time.Now,
	}
}

func (c *Core) SetRepository(repo Repository) {
	c.repo = repo
}

func (c *Core) SetRealtime(rt Realtime) {
	c.realtime = rt
}

func (c *Core) SetNotifier(n Notifier) {
	c.notifier = n
}

func (c *Core) SetAssistant(ass Assistant) {
	c.ass = ass
}

func (c *Core) SetGuidedSettings(s GuidedSettings) {
	if s.SessionTTL <= 0 {
		s.SessionTTL = time.Hour
	}
	c.guidedSettings = s
}

func (c *Core) SetHumanChatSettings(historyLimit int, retention time.Duration) {
	if historyLimit > 0 {
		c.historyLimit = historyLimit
	}
	if retention > 0 {
		c.retention = retention
	}
}

// Init loads the flow graph, creating the main flow when the store has none.
func (c *Core) Init() error {
	flows, err := c.GetFlows()
	if err != nil {
		return err
	}
	c.log.With(
		slog.Int("flows", len(flows)),
	).Info("guided flows loaded")
	return nil
}

func (c *Core) broadcast(sessionID string, frame entity.Frame) {
	if c.realtime == nil {
		return
	}
	c.realtime.BroadcastToSession(sessionID, frame)
}
