package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultRetentionDays  = 30
	defaultMaxAttempts    = 10
	defaultBacklogWarning = 100
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type outboxCounter interface {
	CountPending(ctx context.Context, maxAttempts int) (int64, error)
}

type OutboxRetentionParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxPruner
	RetentionDays int
	MaxAttempts   int
	Now           func() time.Time
}

// OutboxRetentionJob deletes delivered order sink events, and events that
// exhausted their attempts and were dead-lettered, once they are older than
// the retention window.
type OutboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxPruner
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
}

func NewOutboxRetentionJob(params OutboxRetentionParams) (*OutboxRetentionJob, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil || params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	days := params.RetentionDays
	if days <= 0 {
		days = defaultRetentionDays
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &OutboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   time.Duration(days) * 24 * time.Hour,
		maxAttempts: attempts,
		now:         now,
	}, nil
}

func (j *OutboxRetentionJob) Name() string { return "outbox-retention" }

func (j *OutboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.maxAttempts)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("prune outbox: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox retention complete")
	return nil
}

type OutboxBacklogParams struct {
	Logger      *logger.Logger
	Repository  outboxCounter
	MaxAttempts int
	WarnAbove   int64
}

// OutboxBacklogJob reports undelivered order sink events and warns when the
// drainer is falling behind.
type OutboxBacklogJob struct {
	logg        *logger.Logger
	repo        outboxCounter
	maxAttempts int
	warnAbove   int64
}

func NewOutboxBacklogJob(params OutboxBacklogParams) (*OutboxBacklogJob, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	warn := params.WarnAbove
	if warn <= 0 {
		warn = defaultBacklogWarning
	}
	return &OutboxBacklogJob{
		logg:        params.Logger,
		repo:        params.Repository,
		maxAttempts: attempts,
		warnAbove:   warn,
	}, nil
}

func (j *OutboxBacklogJob) Name() string { return "outbox-backlog" }

func (j *OutboxBacklogJob) Run(ctx context.Context) error {
	pending, err := j.repo.CountPending(ctx, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("count pending outbox events: %w", err)
	}
	ctx = j.logg.WithField(ctx, "pending", pending)
	if pending > j.warnAbove {
		j.logg.Warn(ctx, "order sink backlog above threshold")
		return nil
	}
	j.logg.Debug(ctx, "order sink backlog")
	return nil
}
