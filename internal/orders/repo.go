package orders

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists materializations and order lines.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindMaterialization returns the claim for a payment reference, or nil.
func (r *Repository) FindMaterialization(ctx context.Context, paymentReference string) (*models.OrderMaterialization, error) {
	var m models.OrderMaterialization
	err := r.db.WithContext(ctx).Where("payment_reference = ?", paymentReference).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMaterialization claims the payment reference. A duplicate surfaces
// as a unique violation.
func (r *Repository) InsertMaterialization(ctx context.Context, m *models.OrderMaterialization) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// InsertRecords writes order lines, skipping lines already stored for the
// same (order_id, line_number).
func (r *Repository) InsertRecords(ctx context.Context, records []models.OrderRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "line_number"}},
			DoNothing: true,
		}).
		Create(&records)
	return res.RowsAffected, res.Error
}

// ListByOrderID returns an order's lines in line order.
func (r *Repository) ListByOrderID(ctx context.Context, orderID string) ([]models.OrderRecord, error) {
	var records []models.OrderRecord
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("line_number ASC").
		Find(&records).Error
	return records, err
}
