// Package maintenance runs the background janitor that keeps credential
// state tidy: expired verification codes and sessions are purged, elapsed
// lockouts are cleared, and old security events are pruned per retention.
package maintenance

import (
	"context"
	"log/slog"
	"time"
	"tradewatch/internal/config"
	"tradewatch/internal/repository"

	"github.com/robfig/cron/v3"
)

// Janitor owns the cron scheduler for periodic cleanup
type Janitor struct {
	codes    repository.VerificationCodeRepository
	sessions repository.SessionRepository
	events   repository.SecurityEventRepository
	users    repository.UserRepository
	cfg      config.MaintenanceConfig
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJanitor creates a new maintenance janitor
func NewJanitor(
	codes repository.VerificationCodeRepository,
	sessions repository.SessionRepository,
	events repository.SecurityEventRepository,
	users repository.UserRepository,
	cfg config.MaintenanceConfig,
	logger *slog.Logger,
) *Janitor {
	// Create a new cron scheduler with seconds disabled
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))

	return &Janitor{
		codes:    codes,
		sessions: sessions,
		events:   events,
		users:    users,
		cfg:      cfg,
		logger:   logger,
		cron:     c,
	}
}

// Start schedules the cleanup job and starts the scheduler
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.cfg.Schedule, func() {
		j.RunOnce(context.Background())
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("maintenance janitor started", "schedule", j.cfg.Schedule)
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("maintenance janitor stopped")
}

// RunOnce performs a single cleanup sweep. Each step is independent; a
// failing step is logged and the rest still run.
func (j *Janitor) RunOnce(ctx context.Context) {
	now := time.Now()

	if n, err := j.codes.DeleteExpired(ctx, now); err != nil {
		j.logger.Error("failed to purge expired verification codes", "error", err)
	} else if n > 0 {
		j.logger.Info("purged expired verification codes", "count", n)
	}

	if n, err := j.sessions.DeleteExpired(ctx, now); err != nil {
		j.logger.Error("failed to purge expired sessions", "error", err)
	} else if n > 0 {
		j.logger.Info("purged expired sessions", "count", n)
	}

	if n, err := j.users.ClearElapsedLockouts(ctx, now); err != nil {
		j.logger.Error("failed to clear elapsed lockouts", "error", err)
	} else if n > 0 {
		j.logger.Info("cleared elapsed lockouts", "count", n)
	}

	cutoff := now.Add(-j.cfg.AuditRetention)
	if n, err := j.events.DeleteOlderThan(ctx, cutoff); err != nil {
		j.logger.Error("failed to prune old security events", "error", err)
	} else if n > 0 {
		j.logger.Info("pruned old security events", "count", n, "cutoff", cutoff)
	}
}
