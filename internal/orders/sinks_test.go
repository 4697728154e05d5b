package orders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/airtable"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func testEnvelope(t *testing.T, payload OrderPayload) outbox.PayloadEnvelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return outbox.PayloadEnvelope{Version: 1, EventID: "evt", OccurredAt: time.Now(), Data: data}
}

func samplePayload() OrderPayload {
	records := BuildRecords("ORD-20260501100000-ABCDEF", OrderInput{
		PaymentReference: "pi_1",
		Amount:           decimal.NewFromInt(20),
		Currency:         "usd",
		Customer:         Customer{Name: "Ada", Email: "ada@example.com"},
		Items: []SummaryItem{
			{ProductID: "a", Quantity: 1, Price: "5"},
			{ProductID: "b", Quantity: 1, Weight: "1/8 oz", Price: "15"},
		},
	}, time.Now())
	return OrderPayload{OrderID: records[0].OrderID, PaymentReference: "pi_1", Records: records}
}

func TestDatabaseSinkIsIdempotent(t *testing.T) {
	conn := dbtest.NewSQLite(t, &models.OrderRecord{})
	repo := NewRepository(conn)
	sink := NewDatabaseSink(repo)
	env := testEnvelope(t, samplePayload())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		err := conn.Transaction(func(tx *gorm.DB) error {
			return sink.Deliver(ctx, tx, models.OutboxEvent{}, env)
		})
		require.NoError(t, err)
	}

	records, err := repo.ListByOrderID(ctx, "ORD-20260501100000-ABCDEF")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].LineNumber)
	assert.True(t, records[1].SalesPrice.Equal(decimal.NewFromInt(15)))
}

func TestSinkRejectsMalformedPayload(t *testing.T) {
	sink := NewDatabaseSink(NewRepository(nil))
	err := sink.Deliver(context.Background(), nil, models.OutboxEvent{}, outbox.PayloadEnvelope{Data: []byte(`{"orderId":""}`)})
	assert.True(t, outbox.IsNonRetryable(err))
}

type fakeRecordStore struct {
	existing  []airtable.Record
	created   [][]airtable.Fields
	createErr error
	listErr   error
}

func (f *fakeRecordStore) ListRecords(context.Context, string, string) ([]airtable.Record, error) {
	return f.existing, f.listErr
}

func (f *fakeRecordStore) CreateRecords(_ context.Context, _ string, records []airtable.Fields) ([]airtable.Record, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, records)
	return nil, nil
}

func TestAirtableSinkSkipsPresentLines(t *testing.T) {
	store := &fakeRecordStore{existing: []airtable.Record{{ID: "rec1", Fields: airtable.Fields{"Line": 1.0}}}}
	sink, err := NewAirtableSink(store, "Orders", logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)

	require.NoError(t, sink.Deliver(context.Background(), nil, models.OutboxEvent{}, testEnvelope(t, samplePayload())))
	require.Len(t, store.created, 1)
	require.Len(t, store.created[0], 1)
	line := store.created[0][0]
	assert.Equal(t, 2, line["Line"])
	assert.Equal(t, "1/8 oz", line["Weight"])
	assert.Equal(t, 15.0, line["Sales Price"])
	assert.Equal(t, "ada@example.com", line["Email"])
	_, hasPhone := line["Phone"]
	assert.False(t, hasPhone)
}

func TestAirtableSinkErrorClassification(t *testing.T) {
	env := testEnvelope(t, samplePayload())

	store := &fakeRecordStore{createErr: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("status 503"), "airtable post request failed")}
	sink, _ := NewAirtableSink(store, "Orders", nil)
	err := sink.Deliver(context.Background(), nil, models.OutboxEvent{}, env)
	require.Error(t, err)
	assert.False(t, outbox.IsNonRetryable(err))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeSinkWrite))

	store.createErr = pkgerrors.Wrap(pkgerrors.CodeDependency, &airtable.StatusError{Status: 422, Body: "bad"}, "airtable rejected request")
	err = sink.Deliver(context.Background(), nil, models.OutboxEvent{}, env)
	assert.True(t, outbox.IsNonRetryable(err))
}
