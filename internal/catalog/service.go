package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/storefront-backend/pkg/airtable"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	cacheScope      = "product"
	defaultCacheTTL = 5 * time.Minute
)

type recordGetter interface {
	GetRecord(ctx context.Context, table, recordID string) (*airtable.Record, error)
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CacheKey(scope, id string) string
}

// Lookup resolves priced products.
type Lookup interface {
	Product(ctx context.Context, productID string) (*Product, error)
}

type ServiceParams struct {
	Records  recordGetter
	Cache    cacheStore
	Table    string
	CacheTTL time.Duration
	Logger   *logger.Logger
}

// Service reads products from Airtable through a Redis read-through cache.
// Concurrent misses for the same product share one Airtable call.
type Service struct {
	records recordGetter
	cache   cacheStore
	table   string
	ttl     time.Duration
	logg    *logger.Logger
	group   singleflight.Group
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Records == nil {
		return nil, errors.New("airtable records client required")
	}
	if strings.TrimSpace(params.Table) == "" {
		return nil, errors.New("products table required")
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		records: params.Records,
		cache:   params.Cache,
		table:   params.Table,
		ttl:     ttl,
		logg:    params.Logger,
	}, nil
}

func (s *Service) Product(ctx context.Context, productID string) (*Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}

	if cached, ok := s.fromCache(ctx, productID); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(productID, func() (any, error) {
		rec, err := s.records.GetRecord(ctx, s.table, productID)
		if err != nil {
			return nil, err
		}
		product := productFromRecord(*rec)
		s.toCache(ctx, product)
		return &product, nil
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}
	product := *v.(*Product)
	return &product, nil
}

func (s *Service) fromCache(ctx context.Context, productID string) (*Product, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cache.CacheKey(cacheScope, productID))
	if err != nil {
		if !errors.Is(err, goredis.Nil) && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "product_id", productID), "catalog cache read failed")
		}
		return nil, false
	}
	var product Product
	if err := json.Unmarshal([]byte(raw), &product); err != nil {
		return nil, false
	}
	return &product, true
}

func (s *Service) toCache(ctx context.Context, product Product) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.CacheKey(cacheScope, product.ID), payload, s.ttl); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "product_id", product.ID), "catalog cache write failed")
	}
}
