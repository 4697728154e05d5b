package outbox

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// DomainEvent is what callers hand to Emit. Data is JSON encoded into the
// envelope; Version defaults to 1 and OccurredAt to now.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Data          any
	Version       int
	OccurredAt    time.Time
}

type eventInserter interface {
	Insert(tx *gorm.DB, event models.OutboxEvent) error
}

// Service writes outbox rows on behalf of domain code.
type Service struct {
	rows eventInserter
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{rows: repo, logg: logg, now: time.Now}
}

// Emit must run inside the caller's transaction: the row exists exactly when
// the caller's own writes commit.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return fmt.Errorf("emit %s: transaction required", event.EventType)
	}
	if !event.EventType.IsValid() {
		return fmt.Errorf("emit: unknown event type %q", event.EventType)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.now()
	}
	env, raw, err := sealEnvelope(event.Data, event.Version, occurredAt)
	if err != nil {
		return err
	}
	if err := s.rows.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       raw,
	}); err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}

	if s.logg != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.EventID,
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID,
		}), "outbox event queued")
	}
	return nil
}
