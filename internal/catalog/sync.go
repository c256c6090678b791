package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type SyncResult struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

// CacheInvalidator is satisfied by *Service.
type CacheInvalidator interface {
	InvalidateCatalogCache(ctx context.Context)
}

// Syncer pulls products from a ProductSource and upserts them one at a time
// by external id.
type Syncer struct {
	source      ProductSource
	store       Store
	invalidator CacheInvalidator
	log         *zap.Logger
	metrics     *Metrics
}

type SyncerDeps struct {
	Source      ProductSource
	Store       Store
	Invalidator CacheInvalidator
	Log         *zap.Logger
	Metrics     *Metrics
}

func NewSyncer(d SyncerDeps) *Syncer {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Syncer{
		source:      d.Source,
		store:       d.Store,
		invalidator: d.Invalidator,
		log:         d.Log,
		metrics:     d.Metrics,
	}
}

type upsertAction string

const (
	actionInserted upsertAction = "inserted"
	actionUpdated  upsertAction = "updated"
)

// Run performs one sync. A fetch failure is returned as is and leaves the
// store and cache untouched. Per-item failures are counted in the result;
// the run only fails as a whole when the store rejected every item.
// Matched soft-deleted rows are updated but stay deleted.
func (s *Syncer) Run(ctx context.Context) (SyncResult, error) {
	items, err := s.source.FetchProducts(ctx)
	if err != nil {
		s.metrics.syncRun("fetch_failed")
		s.log.Error("sync fetch failed", zap.Error(err))
		return SyncResult{}, err
	}

	res := SyncResult{Fetched: len(items)}
	var (
		storeFailures int
		lastStoreErr  error
	)
	for _, it := range items {
		if ctx.Err() != nil {
			res.Failed += res.Fetched - res.Inserted - res.Updated - res.Failed
			break
		}

		p, err := ToProduct(it)
		if err != nil {
			res.Failed++
			s.log.Warn("sync item rejected", zap.String("external_id", it.ExternalID), zap.Error(err))
			continue
		}

		action, err := s.upsert(ctx, p)
		if err != nil {
			res.Failed++
			storeFailures++
			lastStoreErr = err
			s.log.Warn("sync item upsert failed", zap.String("external_id", p.ExternalID), zap.Error(err))
			continue
		}

		switch action {
		case actionInserted:
			res.Inserted++
		case actionUpdated:
			res.Updated++
		}
	}

	s.invalidator.InvalidateCatalogCache(context.WithoutCancel(ctx))
	s.metrics.syncItems(res)

	log := s.log.With(
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)

	switch {
	case ctx.Err() != nil:
		s.metrics.syncRun("canceled")
		log.Warn("sync interrupted", zap.Error(ctx.Err()))
		return res, ctx.Err()
	case storeFailures > 0 && storeFailures == res.Fetched:
		s.metrics.syncRun("store_failed")
		log.Error("sync failed for every item", zap.Error(lastStoreErr))
		return res, lastStoreErr
	case res.Failed > 0:
		s.metrics.syncRun("partial")
		log.Warn("sync finished with failures")
	default:
		s.metrics.syncRun("ok")
		log.Info("sync finished")
	}
	return res, nil
}

func (s *Syncer) upsert(ctx context.Context, p Product) (upsertAction, error) {
	existing, found, err := s.store.FindByExternalID(ctx, p.ExternalID)
	if err != nil {
		return "", storeErr("find by external id", err)
	}
	if found {
		return actionUpdated, s.update(ctx, existing.ID, p)
	}

	_, err = s.store.Insert(ctx, p)
	if err == nil {
		return actionInserted, nil
	}
	if !errors.Is(err, ErrDuplicateExternalID) {
		return "", storeErr("insert product", err)
	}

	// lost an insert race with another sync; the row exists now
	existing, found, err = s.store.FindByExternalID(ctx, p.ExternalID)
	if err != nil {
		return "", storeErr("find by external id", err)
	}
	if !found {
		return "", fmt.Errorf("external id %q conflicted but cannot be found: %w", p.ExternalID, ErrDuplicateExternalID)
	}
	return actionUpdated, s.update(ctx, existing.ID, p)
}

func (s *Syncer) update(ctx context.Context, id string, p Product) error {
	if err := s.store.Update(ctx, id, p.Attributes()); err != nil {
		return storeErr("update product", err)
	}
	return nil
}

// RunEvery syncs on every tick until ctx is done. Failed runs are logged
// and the loop continues.
func (s *Syncer) RunEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("scheduled sync failed", zap.Error(err))
			}
		}
	}
}
