package core

import (
	"WidgetCS/internal/guided"
	"WidgetCS/internal/lib/metrics"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type guidedEntry struct {
	engine   *guided.Engine
	lastSeen time.Time
}

// GuidedSession is a server-held guided conversation as returned to clients.
type GuidedSession struct {
	ID string `json:"id"`
	guided.State
}

// StartGuidedSession creates a new engine positioned on main.
func (c *Core) StartGuidedSession(mode string) (*GuidedSession, error) {
	s := c.guidedSettings
	engine := guided.NewEngine(c.graph, guided.Options{
		BotResponseDelay:         s.BotResponseDelay,
		Greeting:                 s.Greeting,
		KeepStaleResponses:       s.KeepStaleResponses,
		ReleaseUnansweredOptions: s.ReleaseUnansweredOptions,
		Log:                      c.log,
	})
	if mode != "" && guided.Mode(mode) != guided.ModeGuided {
		if err := engine.Reset(guided.Mode(mode)); err != nil {
			engine.Close()
			return nil, err
		}
	}

	id := uuid.New().String()
	c.mu.Lock()
	c.engines[id] = &guidedEntry{engine: engine, lastSeen: c.now()}
	c.mu.Unlock()
	metrics.GuidedSessions.Inc()

	c.log.Debug("guided session started", slog.String("id", id))
	return &GuidedSession{ID: id, State: engine.Snapshot()}, nil
}

func (c *Core) GuidedSession(id string) (*GuidedSession, error) {
	engine, err := c.engine(id)
	if err != nil {
		return nil, err
	}
	return &GuidedSession{ID: id, State: engine.Snapshot()}, nil
}

// SelectGuidedOption reports false as accepted when the option was unknown
// or is still being answered.
func (c *Core) SelectGuidedOption(id, optionID string) (*GuidedSession, bool, error) {
	engine, err := c.engine(id)
	if err != nil {
		return nil, false, err
	}
	accepted := engine.SelectOption(optionID)
	if accepted {
		metrics.GuidedSelections.WithLabelValues("accepted").Inc()
	} else {
		metrics.GuidedSelections.WithLabelValues("ignored").Inc()
	}
	return &GuidedSession{ID: id, State: engine.Snapshot()}, accepted, nil
}

func (c *Core) GuidedBack(id string) (*GuidedSession, bool, error) {
	engine, err := c.engine(id)
	if err != nil {
		return nil, false, err
	}
	moved := engine.GoBack()
	return &GuidedSession{ID: id, State: engine.Snapshot()}, moved, nil
}

func (c *Core) ResetGuidedSession(id, mode string) (*GuidedSession, error) {
	engine, err := c.engine(id)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = string(guided.ModeGuided)
	}
	if err = engine.Reset(guided.Mode(mode)); err != nil {
		return nil, err
	}
	return &GuidedSession{ID: id, State: engine.Snapshot()}, nil
}

func (c *Core) CloseGuidedSession(id string) error {
	c.mu.Lock()
	entry, ok := c.engines[id]
	delete(c.engines, id)
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	metrics.GuidedSessions.Dec()
	entry.engine.Close()
	return nil
}

// ExpireGuidedSessions closes engines idle for longer than the session TTL.
func (c *Core) ExpireGuidedSessions(now time.Time) int {
	cutoff := now.Add(-c.guidedSettings.SessionTTL)

	c.mu.Lock()
	var expired []*guided.Engine
	for id, entry := range c.engines {
		if entry.lastSeen.Before(cutoff) {
			expired = append(expired, entry.engine)
			delete(c.engines, id)
		}
	}
	for id, conv := range c.conversations {
		if conv.lastSeen.Before(cutoff) {
			delete(c.conversations, id)
		}
	}
	c.mu.Unlock()

	for _, e := range expired {
		e.Close()
	}
	metrics.GuidedSessions.Sub(float64(len(expired)))
	return len(expired)
}

func (c *Core) engine(id string) (*guided.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.engines[id]
	if !ok {
		return nil, fmt.Errorf("guided session %s: %w", id, ErrNotFound)
	}
	entry.lastSeen = c.now()
	return entry.engine, nil
}
