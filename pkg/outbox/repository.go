package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

var errNoTx = errors.New("transaction required")

// Repository reads and updates outbox_events. Calls ending in Tx run on the
// caller's transaction.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// pending matches rows not yet delivered and still under the attempt budget.
func pending(maxAttempts int) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("published_at IS NULL AND attempt_count < ?", maxAttempts)
	}
}

// FetchPendingTx returns up to limit pending rows, oldest first. Postgres
// locks them FOR UPDATE SKIP LOCKED so concurrent drainers split the work.
func (r *Repository) FetchPendingTx(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	q := tx.Scopes(pending(maxAttempts)).Order("created_at ASC, id ASC").Limit(limit)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var events []models.OutboxEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return r.updateTx(tx, id, map[string]any{
		"published_at": r.now().UTC(),
		"last_error":   nil,
	})
}

// MarkFailedTx records a failed attempt; the row stays pending until the
// budget runs out.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.updateTx(tx, id, map[string]any{
		"last_error":    clipMessage(cause.Error()),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminalTx sets attempt_count to the ceiling so the row is never
// fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error {
	return r.updateTx(tx, id, map[string]any{
		"last_error":    clipMessage(cause.Error()),
		"attempt_count": ceiling,
	})
}

func (r *Repository) updateTx(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

// DeletePublishedBefore drops rows created before cutoff that are either
// delivered or out of attempts (and so already parked in the DLQ). A nil tx
// runs on the repository's own handle.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts int) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("published_at IS NOT NULL OR attempt_count >= ?", maxAttempts).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *Repository) CountPending(ctx context.Context, maxAttempts int) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).Scopes(pending(maxAttempts)).Count(&n).Error
	return n, err
}
