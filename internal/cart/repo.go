package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository persists cart lines keyed by browser session.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
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

// ListBySession returns the session's lines, oldest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

// FindLine returns the line matching product and weight, or nil.
func (r *Repository) FindLine(ctx context.Context, sessionID, productID string, weight *string) (*models.CartItem, error) {
	query := r.db.WithContext(ctx).Where("session_id = ? AND product_id = ?", sessionID, productID)
	if weight == nil {
		query = query.Where("selected_weight IS NULL")
	} else {
		query = query.Where("selected_weight = ?", *weight)
	}
	var item models.CartItem
	if err := query.First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *Repository) Create(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) UpdateLine(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", item.ID).
		Updates(map[string]any{
			"quantity":     item.Quantity,
			"unit_price":   item.UnitPrice,
			"product_name": item.ProductName,
		}).Error
}

// Delete removes one line owned by the session and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, sessionID string, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND session_id = ?", id, sessionID).
		Delete(&models.CartItem{})
	return res.RowsAffected > 0, res.Error
}

// DeleteBySession empties the session's cart.
func (r *Repository) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
