package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ProductCatalog/internal/cache"
)

const DefaultCacheTTL = time.Hour

// Service answers catalog queries cache-aside and owns every mutation that
// must invalidate cached pages.
type Service struct {
	store   Store
	cache   cache.Cache
	ttl     time.Duration
	log     *zap.Logger
	metrics *Metrics
}

type ServiceDeps struct {
	Store   Store
	Cache   cache.Cache
	TTL     time.Duration
	Log     *zap.Logger
	Metrics *Metrics
}

func NewService(d ServiceDeps) *Service {
	if d.TTL <= 0 {
		d.TTL = DefaultCacheTTL
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		store:   d.Store,
		cache:   d.Cache,
		ttl:     d.TTL,
		log:     d.Log,
		metrics: d.Metrics,
	}
}

func (s *Service) Find(ctx context.Context, q ListQuery) (Page, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return Page{}, err
	}

	key := q.CacheKey()
	if page, ok := s.cached(ctx, key); ok {
		return page, nil
	}

	items, total, err := s.store.List(ctx, q)
	if err != nil {
		return Page{}, storeErr("list products", err)
	}

	page := Page{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.Limit,
		TotalPages: totalPages(total, q.Limit),
	}
	s.remember(ctx, key, page)
	return page, nil
}

func (s *Service) cached(ctx context.Context, key string) (Page, bool) {
	if s.cache == nil {
		return Page{}, false
	}

	raw, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.cacheOp(opGet, resultError)
		s.log.Warn("cache read failed, querying store", zap.String("key", key), zap.Error(err))
		return Page{}, false
	case !ok:
		s.metrics.cacheOp(opGet, resultMiss)
		return Page{}, false
	}

	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		s.metrics.cacheOp(opGet, resultCorrupt)
		s.log.Warn("cached page undecodable, querying store", zap.String("key", key), zap.Error(err))
		return Page{}, false
	}
	s.metrics.cacheOp(opGet, resultHit)
	return page, true
}

func (s *Service) remember(ctx context.Context, key string, page Page) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(page)
	if err != nil {
		s.log.Error("encode page for cache", zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.metrics.cacheOp(opSet, resultError)
		s.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.metrics.cacheOp(opSet, resultOK)
}

// SoftDelete marks the product deleted. A missing or already deleted id is
// not an error.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	if err := uuid.Validate(id); err != nil {
		return invalid("id", "must be a UUID")
	}

	deleted, err := s.store.SoftDelete(ctx, id)
	if err != nil {
		return storeErr("soft delete product", err)
	}
	if !deleted {
		s.log.Debug("soft delete matched no active product", zap.String("id", id))
	}

	s.InvalidateCatalogCache(ctx)
	return nil
}

// InvalidateCatalogCache drops every cached catalog page. It never fails.
func (s *Service) InvalidateCatalogCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	res := cache.Invalidate(ctx, s.cache, CatalogNamespace, s.log)
	s.metrics.invalidated()
	s.log.Debug("catalog cache invalidated",
		zap.String("strategy", string(res.Strategy)),
		zap.Int("removed", res.Removed),
		zap.Int("failed", res.Failed),
	)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
