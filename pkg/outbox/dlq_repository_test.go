package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestParkTxStoresClippedMessage(t *testing.T) {
	conn := dbtest.NewSQLite(t, &models.OutboxDLQ{})
	repo := NewDLQRepository(conn)
	failedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return failedAt }

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderSinkAirtable,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "ORD-1",
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  4,
	}
	long := strings.Repeat("é", deadLetterMessageLimit)
	require.NoError(t, repo.ParkTx(conn, event, enums.OutboxDLQReasonMaxAttempts, errors.New(long)))

	row, err := repo.ForEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", row.AggregateID)
	assert.Equal(t, 4, row.AttemptCount)
	assert.True(t, row.FailedAt.Equal(failedAt))
	require.NotNil(t, row.ErrorMessage)
	assert.LessOrEqual(t, len(*row.ErrorMessage), deadLetterMessageLimit)
	assert.True(t, utf8.ValidString(*row.ErrorMessage))
}

func TestParkTxRejectsUnknownReason(t *testing.T) {
	conn := dbtest.NewSQLite(t, &models.OutboxDLQ{})
	err := NewDLQRepository(conn).ParkTx(conn, models.OutboxEvent{ID: uuid.New()}, "gave_up", errors.New("x"))
	assert.Error(t, err)
}

func TestForEventMissing(t *testing.T) {
	conn := dbtest.NewSQLite(t, &models.OutboxDLQ{})
	_, err := NewDLQRepository(conn).ForEvent(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
