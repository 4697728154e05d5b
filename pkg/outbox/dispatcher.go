package outbox

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultDeliverTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
	deliverSavepoint      = "outbox_deliver"
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pendingRepository interface {
	FetchPendingTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqWriter interface {
	ParkTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*ResolvedEvent, error)
}

type DispatcherParams struct {
	Logger         *logger.Logger
	DB             dbClient
	Repository     pendingRepository
	DLQRepository  dlqWriter
	Registry       resolver
	Metrics        *metrics.SinkMetrics
	BatchSize      int
	PollInterval   time.Duration
	MaxAttempts    int
	DeliverTimeout time.Duration
}

// Dispatcher drains outbox_events into the registered sinks. Each row is
// retried with backoff until it is delivered or exhausts MaxAttempts, at
// which point it is copied to the DLQ.
type Dispatcher struct {
	logg           *logger.Logger
	db             dbClient
	repo           pendingRepository
	dlq            dlqWriter
	registry       resolver
	metrics        *metrics.SinkMetrics
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	deliverTimeout time.Duration
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("sink registry is required")
	}
	if params.DLQRepository == nil {
		return nil, errors.New("dlq repository is required")
	}

	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	timeout := params.DeliverTimeout
	if timeout <= 0 {
		timeout = defaultDeliverTimeout
	}

	return &Dispatcher{
		logg:           params.Logger,
		db:             params.DB,
		repo:           params.Repository,
		dlq:            params.DLQRepository,
		registry:       params.Registry,
		metrics:        params.Metrics,
		batchSize:      batch,
		maxAttempts:    maxAttempts,
		pollInterval:   poll,
		deliverTimeout: timeout,
	}, nil
}

func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := d.db.Ping(ctx); err != nil {
		d.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}

	interval := d.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "outbox dispatcher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := d.DrainOnce(ctx)
		if err != nil {
			d.logg.Error(ctx, "outbox dispatcher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// DrainOnce processes a single batch and reports whether any row was handled.
func (d *Dispatcher) DrainOnce(ctx context.Context) (bool, error) {
	processed := false
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := d.repo.FetchPendingTx(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		processed = true
		for _, event := range events {
			if err := d.handle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (d *Dispatcher) handle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := d.registry.Resolve(event)
	if err != nil {
		return d.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonUnroutable, err, "", nil)
	}

	sink := resolved.Descriptor.Sink
	fields := d.eventFields(event, resolved.Envelope, sink)

	start := time.Now()
	deliverErr := d.deliver(ctx, tx, event, resolved)
	d.metrics.ObserveDelivery(sink, time.Since(start))

	if deliverErr == nil {
		if err := d.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		d.metrics.IncDelivered(sink)
		d.logg.Info(d.logg.WithFields(ctx, fields), "outbox event delivered")
		return nil
	}

	d.metrics.IncFailed(sink)
	if IsNonRetryable(deliverErr) || !pkgerrors.Retryable(deliverErr) {
		return d.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, deliverErr, sink, fields)
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= d.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		terminalErr := fmt.Errorf("max delivery attempts reached: %w", deliverErr)
		return d.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminalErr, sink, fields)
	}

	logCtx := d.logg.WithFields(ctx, fields)
	logCtx = d.logg.WithField(logCtx, "error", deliverErr.Error())
	d.logg.Warn(logCtx, "outbox delivery failed")
	if err := d.repo.MarkFailedTx(tx, event.ID, deliverErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

// deliver runs the handler behind a savepoint so a failed database write
// does not poison the batch transaction.
func (d *Dispatcher) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *ResolvedEvent) error {
	if err := tx.SavePoint(deliverSavepoint).Error; err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	deliverCtx, cancel := context.WithTimeout(ctx, d.deliverTimeout)
	defer cancel()

	err := resolved.Descriptor.Handler.Deliver(deliverCtx, tx.WithContext(deliverCtx), event, resolved.Envelope)
	if err != nil {
		if rbErr := tx.RollbackTo(deliverSavepoint).Error; rbErr != nil {
			return fmt.Errorf("rollback to savepoint after %v: %w", err, rbErr)
		}
		return err
	}
	return nil
}

func (d *Dispatcher) handleTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, sink string, fields map[string]any) error {
	if fields == nil {
		fields = d.eventFields(event, PayloadEnvelope{}, sink)
	}
	fields["error_reason"] = reason
	logCtx := d.logg.WithFields(ctx, fields)
	logCtx = d.logg.WithField(logCtx, "error", err.Error())
	d.logg.Warn(logCtx, "outbox event will not be retried")

	if dlqErr := d.dlq.ParkTx(tx, event, reason, err); dlqErr != nil {
		return fmt.Errorf("park %s: %w", event.ID, dlqErr)
	}
	if markErr := d.repo.MarkTerminalTx(tx, event.ID, err, d.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	d.metrics.IncDeadLettered(sink)
	return nil
}

func (d *Dispatcher) eventFields(event models.OutboxEvent, envelope PayloadEnvelope, sink string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if sink != "" {
		fields["sink"] = sink
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}
