package summarize

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memodiary/memo/internal/log"
)

// nightlySpec runs the sweep at 03:10 local time, after the day has settled.
const nightlySpec = "10 3 * * *"

// SessionLister supplies the sessions the nightly sweep should cover.
// *store.Store satisfies it.
type SessionLister interface {
	Sessions(ctx context.Context) ([]string, error)
}

// Scheduler runs a nightly rollup sweep across all sessions while a
// long-lived process is up. Short-lived CLI invocations rely on the lazy
// session-start trigger instead.
type Scheduler struct {
	cron   *cron.Cron
	logger log.Logger
}

// NewScheduler wires the sweep into a cron runner. Call Start to begin.
func NewScheduler(s *Summarizer, sessions SessionLister, logger log.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	logger = logger.With("component", "scheduler")

	c := cron.New()
	_, err := c.AddFunc(nightlySpec, func() {
		sweep(s, sessions, logger)
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start launches the cron loop in its own goroutine.
func (sc *Scheduler) Start() {
	sc.cron.Start()
	sc.logger.Info("nightly rollup sweep scheduled", "spec", nightlySpec)
}

// Stop halts scheduling and waits for a running sweep to finish.
func (sc *Scheduler) Stop() {
	<-sc.cron.Stop().Done()
}

func sweep(s *Summarizer, lister SessionLister, logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sessions, err := lister.Sessions(ctx)
	if err != nil {
		logger.Error("listing sessions for rollup sweep", "error", err)
		return
	}

	now := time.Now()
	for _, id := range sessions {
		if err := s.ResummarizeDay(ctx, id, now.AddDate(0, 0, -1)); err != nil {
			logger.Warn("nightly daily summary failed", "session_id", id, "error", err)
		}
		s.EnsureRollups(ctx, id, now)
	}
	logger.Info("rollup sweep finished", "sessions", len(sessions))
}
