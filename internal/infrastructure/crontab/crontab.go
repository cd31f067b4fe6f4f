package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"jan-server/services/chat-api/internal/utils/platformerrors"
)

const (
	quotaPruneSchedule   = "5 * * * *"
	sessionPruneSchedule = "* * * * *"
)

// QuotaPruner drops counters whose window has closed.
type QuotaPruner interface {
	Prune(now time.Time) int
}

// SessionPruner drops idle sessions.
type SessionPruner interface {
	PruneIdle(maxIdle time.Duration) int
}

type Crontab struct {
	ctab        *crontab.Crontab
	quota       QuotaPruner
	sessions    SessionPruner
	sessionIdle time.Duration
	log         zerolog.Logger
}

// NewCrontab wires the maintenance jobs; either pruner may be nil.
func NewCrontab(quota QuotaPruner, sessions SessionPruner, sessionIdle time.Duration, log zerolog.Logger) *Crontab {
	return &Crontab{
		ctab:        crontab.New(),
		quota:       quota,
		sessions:    sessions,
		sessionIdle: sessionIdle,
		log:         log.With().Str("component", "crontab").Logger(),
	}
}

// Run schedules the jobs and blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	if c.quota != nil {
		if err := c.ctab.AddJob(quotaPruneSchedule, c.pruneQuota); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add quota prune job")
		}
	}
	if c.sessions != nil && c.sessionIdle > 0 {
		if err := c.ctab.AddJob(sessionPruneSchedule, c.pruneSessions); err != nil {
			return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add session prune job")
		}
	}

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) pruneQuota() {
	if n := c.quota.Prune(time.Now()); n > 0 {
		c.log.Info().Int("removed", n).Msg("expired quota counters pruned")
	}
}

func (c *Crontab) pruneSessions() {
	if n := c.sessions.PruneIdle(c.sessionIdle); n > 0 {
		c.log.Info().Int("removed", n).Dur("idle", c.sessionIdle).Msg("idle sessions pruned")
	}
}
