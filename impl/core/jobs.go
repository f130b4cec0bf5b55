package core

import (
	"WidgetCS/internal/lib/sl"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StartJobs schedules the periodic cleanup and returns the running scheduler.
func (c *Core) StartJobs(schedule string) (*cron.Cron, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	scheduler := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	if _, err := scheduler.AddFunc(schedule, func() { c.Cleanup(time.Now()) }); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	scheduler.Start()
	c.log.Info("cleanup scheduled", slog.String("schedule", schedule))
	return scheduler, nil
}

// Cleanup expires idle guided sessions and purges old closed human chats.
func (c *Core) Cleanup(now time.Time) {
	expired := c.ExpireGuidedSessions(now)
	removed, err := c.CleanupClosedSessions(now)
	if err != nil {
		c.log.Error("cleanup closed sessions", sl.Err(err))
	}
	if expired > 0 || removed > 0 {
		c.log.With(
			slog.Int("guided_expired", expired),
			slog.Int64("human_chats_removed", removed),
		).Info("cleanup done")
	}
}
