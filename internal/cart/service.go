package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/catalog"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const maxLineQuantity = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Summary is the priced view of a cart.
type Summary struct {
	Items     []models.CartItem `json:"items"`
	ItemCount int               `json:"itemCount"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
}

// AddItemInput is a client request to put a product in the cart.
type AddItemInput struct {
	ProductID      string  `json:"productId" validate:"required"`
	Quantity       int     `json:"quantity" validate:"required,min=1,max=100"`
	SelectedWeight *string `json:"selectedWeight,omitempty"`
}

// Service exposes cart reads and writes for one browser session.
type Service interface {
	Summary(ctx context.Context, sessionID string) (*Summary, error)
	Add(ctx context.Context, sessionID string, input AddItemInput) (*Summary, error)
	Remove(ctx context.Context, sessionID string, itemID uuid.UUID) (*Summary, error)
	Clear(ctx context.Context, sessionID string) error
}

type service struct {
	repo    *Repository
	tx      txRunner
	catalog catalog.Lookup
}

// NewService builds a cart service. Prices always come from the catalog.
func NewService(repo *Repository, tx txRunner, lookup catalog.Lookup) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, catalog: lookup}, nil
}

func (s *service) Summary(ctx context.Context, sessionID string) (*Summary, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session required")
	}
	items, err := s.repo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return summarize(items), nil
}

func (s *service) Add(ctx context.Context, sessionID string, input AddItemInput) (*Summary, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session required")
	}
	if input.Quantity <= 0 || input.Quantity > maxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be between 1 and 100")
	}
	if s.catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "product catalog not configured")
	}

	product, err := s.catalog.Product(ctx, input.ProductID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product").
				WithDetails(map[string]any{"productId": input.ProductID})
		}
		return nil, err
	}
	if !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	weight := normalizeWeightInput(input.SelectedWeight)
	unitPrice, err := product.PriceFor(weight)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindLine(ctx, sessionID, product.ID, weight)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Quantity += input.Quantity
			if existing.Quantity > maxLineQuantity {
				return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be between 1 and 100")
			}
			existing.UnitPrice = unitPrice
			existing.ProductName = product.Name
			return repo.UpdateLine(ctx, existing)
		}
		return repo.Create(ctx, &models.CartItem{
			SessionID:      sessionID,
			ProductID:      product.ID,
			ProductName:    product.Name,
			Quantity:       input.Quantity,
			SelectedWeight: weight,
			UnitPrice:      unitPrice,
		})
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart item")
	}
	return s.Summary(ctx, sessionID)
}

func (s *service) Remove(ctx context.Context, sessionID string, itemID uuid.UUID) (*Summary, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session required")
	}
	found, err := s.repo.Delete(ctx, sessionID, itemID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
	}
	return s.Summary(ctx, sessionID)
}

func (s *service) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.repo.DeleteBySession(ctx, sessionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

func summarize(items []models.CartItem) *Summary {
	out := &Summary{Items: items, Subtotal: decimal.Zero}
	if out.Items == nil {
		out.Items = []models.CartItem{}
	}
	for _, item := range items {
		out.ItemCount += item.Quantity
		out.Subtotal = out.Subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	out.Subtotal = out.Subtotal.Round(2)
	return out
}

func normalizeWeightInput(w *string) *string {
	if w == nil {
		return nil
	}
	trimmed := strings.Join(strings.Fields(*w), " ")
	if trimmed == "" {
		return nil
	}
	lower := strings.ToLower(trimmed)
	return &lower
}
