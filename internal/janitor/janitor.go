// Package janitor runs the periodic housekeeping sweep: expiring the
// active session once it exceeds its MaxHours budget, pruning departed
// instances from the registry and requeueing analysis jobs abandoned by
// dead workers.
package janitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zulandar/vigil/internal/queue"
	"github.com/zulandar/vigil/internal/registry"
	"github.com/zulandar/vigil/internal/session"
)

const (
	// DefaultSchedule sweeps every five minutes.
	DefaultSchedule = "*/5 * * * *"
	// DefaultStuckAge is how long a claimed analysis job may sit before it
	// is considered abandoned.
	DefaultStuckAge = 30 * time.Minute
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Janitor owns the housekeeping sweep. Registry and Queue are optional;
// their steps are skipped when unwired.
type Janitor struct {
	Lifecycle *session.Lifecycle
	Registry  *registry.Registry
	Queue     *queue.Queue

	// Schedule is a 5-field cron expression; DefaultSchedule when empty.
	Schedule string
	// StuckAge overrides DefaultStuckAge when positive.
	StuckAge time.Duration
	// Now is the clock; overridable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (j *Janitor) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Start runs the sweep on the configured schedule until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	if j.Lifecycle == nil {
		return fmt.Errorf("janitor: lifecycle is required")
	}

	schedule := j.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	c := cron.New(cron.WithParser(cronParser))
	if _, err := c.AddFunc(schedule, func() { j.Sweep(ctx) }); err != nil {
		return fmt.Errorf("janitor: schedule sweep %q: %w", schedule, err)
	}
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}

// Sweep runs one housekeeping pass. Each step is independent; a failure in
// one is logged and the others still run.
func (j *Janitor) Sweep(ctx context.Context) {
	j.expireActive(ctx)

	if j.Registry != nil {
		if pruned, err := j.Registry.PruneStale(); err != nil {
			log.Printf("janitor: prune stale instances: %v", err)
		} else if pruned > 0 {
			log.Printf("janitor: pruned %d stale instances", pruned)
		}
	}

	if j.Queue != nil {
		age := j.StuckAge
		if age <= 0 {
			age = DefaultStuckAge
		}
		if released, err := j.Queue.ReleaseStuck(age); err != nil {
			log.Printf("janitor: release stuck jobs: %v", err)
		} else if released > 0 {
			log.Printf("janitor: requeued %d stuck analysis jobs", released)
		}
	}
}

// expireActive stops the active session once it has run past its MaxHours
// budget. Sessions without a budget never expire.
func (j *Janitor) expireActive(ctx context.Context) {
	active, err := j.Lifecycle.GetActiveSession()
	if err != nil {
		return
	}
	if active.MaxHours <= 0 {
		return
	}

	deadline := active.StartDate.Add(time.Duration(active.MaxHours) * time.Hour)
	if j.now().Before(deadline) {
		return
	}

	log.Printf("janitor: session %s exceeded its %dh budget, stopping", active.SessionID, active.MaxHours)
	if err := j.Lifecycle.Stop(ctx); err != nil {
		log.Printf("janitor: stop expired session %s: %v", active.SessionID, err)
	}
}
