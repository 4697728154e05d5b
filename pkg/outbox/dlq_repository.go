package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// dead letter messages are capped so a verbose sink error cannot bloat the table
const deadLetterMessageLimit = 1024

// DLQRepository parks outbox rows that will never be delivered.
type DLQRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db, now: time.Now}
}

// ParkTx copies event into outbox_dlq with the reason it stopped retrying.
func (r *DLQRepository) ParkTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !reason.IsValid() {
		return errors.New("unknown dead letter reason " + string(reason))
	}
	row := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if cause != nil {
		msg := clipMessage(cause.Error())
		row.ErrorMessage = &msg
	}
	return tx.Create(&row).Error
}

// ForEvent returns the dead letter recorded for an outbox row.
func (r *DLQRepository) ForEvent(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var row models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found")
	case err != nil:
		return nil, err
	}
	return &row, nil
}

func clipMessage(msg string) string {
	if len(msg) <= deadLetterMessageLimit {
		return msg
	}
	cut := deadLetterMessageLimit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
