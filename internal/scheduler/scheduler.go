package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"ytgate/internal/db"
	"ytgate/internal/notify"
)

// Scheduler resets the daily usage counter of every API key once per UTC day
// and reports each cycle to the administrative sink. The cron runner
// recomputes the next midnight from the current time after every activation,
// so the schedule self-corrects after a delayed or missed wake.
type Scheduler struct {
	db         db.Service
	notifier   notify.Notifier
	logger     *slog.Logger
	c          *cron.Cron
	cooldown   time.Duration
	maxRetries int
	stopChan   chan struct{}
}

// NewScheduler creates a scheduler. cooldown is the wait between retries of a
// failed reset; maxRetries bounds those retries within one cycle.
func NewScheduler(dbService db.Service, notifier notify.Notifier, logger *slog.Logger, cooldown time.Duration, maxRetries int) *Scheduler {
	return &Scheduler{
		db:         dbService,
		notifier:   notifier,
		logger:     logger.With("component", "scheduler"),
		c:          cron.New(cron.WithLocation(time.UTC)),
		cooldown:   cooldown,
		maxRetries: maxRetries,
		stopChan:   make(chan struct{}),
	}
}

// Start schedules the daily reset at UTC midnight and starts the cron runner.
func (s *Scheduler) Start() error {
	_, err := s.c.AddFunc("0 0 * * *", func() {
		s.RunResetCycle(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule daily reset: %w", err)
	}
	s.c.Start()
	s.logger.Info("Daily reset scheduler started")
	return nil
}

// Stop shuts the scheduler down cooperatively: the cron runner stops waking,
// an in-flight cycle is allowed to finish, and a cycle sleeping in a retry
// cooldown is released immediately.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	ctx := s.c.Stop()
	<-ctx.Done()
	s.logger.Info("Daily reset scheduler stopped")
}

// RunResetCycle performs one reset cycle: zero every usage counter, then emit
// a single completion notification with the number of records updated. A
// failed reset is retried after the cooldown; if all retries fail, the error
// is reported to the administrative sink and the scheduler simply waits for
// the next midnight. A cycle never panics the process.
func (s *Scheduler) RunResetCycle(ctx context.Context) {
	s.logger.Info("Running daily job: resetting all API key usage counters")

	count, err := s.resetWithRetry()
	if err != nil {
		s.logger.Error("Daily usage reset failed after retries", "error", err)
		s.notifier.NotifyAdmin(ctx, fmt.Sprintf("Daily API usage reset FAILED: %v", err))
		return
	}

	s.logger.Info("Daily usage reset completed", "updated", count)
	if err := s.notifier.NotifyAdmin(ctx, fmt.Sprintf("Daily API usage reset completed, %d keys updated.", count)); err != nil {
		s.logger.Warn("Failed to deliver reset completion notification", "error", err)
	}

	s.notifyOwners(ctx)
}

func (s *Scheduler) resetWithRetry() (int64, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("Retrying usage reset after cooldown", "attempt", attempt, "cooldown", s.cooldown)
			select {
			case <-time.After(s.cooldown):
			case <-s.stopChan:
				return 0, fmt.Errorf("scheduler stopped during retry cooldown: %w", lastErr)
			}
		}
		count, err := s.db.ResetAllAPIKeyUsage()
		if err == nil {
			return count, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// notifyOwners tells every assigned owner that their quota is fresh. Strictly
// best-effort: failures are logged and never fail the cycle.
func (s *Scheduler) notifyOwners(ctx context.Context) {
	keys, err := s.db.ListAPIKeys()
	if err != nil {
		s.logger.Warn("Failed to list keys for owner reset notices", "error", err)
		return
	}
	for _, k := range keys {
		if k.OwnerID == nil {
			continue
		}
		msg := fmt.Sprintf("Your API key %s usage has been reset for today.", k.Key)
		if err := s.notifier.NotifyOwner(ctx, *k.OwnerID, msg); err != nil {
			s.logger.Warn("Failed to deliver owner reset notice", "owner_id", *k.OwnerID, "error", err)
		}
	}
}
