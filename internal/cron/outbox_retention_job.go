package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/msourial/platefull/pkg/logger"
)

const defaultOutboxRetentionDays = 30

// OutboxRetentionJobParams configure outbox trimming.
type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	// RetentionDays keeps published rows this long.
	RetentionDays int
	// TerminalAttempts is the publisher's attempt ceiling; parked rows older
	// than the retention window are dropped too. Zero keeps them.
	TerminalAttempts int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

// NewOutboxRetentionJob builds the outbox trimming job.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.RetentionDays
	if retention <= 0 {
		retention = defaultOutboxRetentionDays
	}
	return &outboxRetentionJob{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		retention:        retention,
		terminalAttempts: params.TerminalAttempts,
		now:              time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg             *logger.Logger
	db               txRunner
	repo             outboxRetentionRepo
	retention        int
	terminalAttempts int
	now              func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.terminalAttempts)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":            cutoff,
		"retention_days":    j.retention,
		"terminal_attempts": j.terminalAttempts,
		"rows_deleted":      deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return int(deleted), nil
}
