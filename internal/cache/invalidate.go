package cache

import (
	"context"

	"go.uber.org/zap"
)

// Strategy names the path Invalidate took.
type Strategy string

const (
	StrategyKeys   Strategy = "keys"
	StrategyPrefix Strategy = "prefix"
	StrategyClear  Strategy = "clear"
	StrategyNone   Strategy = "none"
)

type InvalidationResult struct {
	Strategy Strategy
	Removed  int
	Failed   int
}

// Invalidate removes every entry under ns. It prefers enumerating keys,
// then a bulk prefix delete, then a full clear. Failures are logged, never
// returned.
func Invalidate(ctx context.Context, c Cache, ns Namespace, log *zap.Logger) InvalidationResult {
	if log == nil {
		log = zap.NewNop()
	}
	prefix := ns.Prefix()

	if kl, ok := c.(KeyLister); ok {
		keys, err := kl.Keys(ctx, prefix)
		if err == nil {
			res := deleteKeys(ctx, c, keys, log)
			log.Debug("cache invalidated",
				zap.String("prefix", prefix),
				zap.Int("found", len(keys)),
				zap.Int("removed", res.Removed),
			)
			return res
		}
		log.Warn("cache key listing failed, trying bulk strategies", zap.String("prefix", prefix), zap.Error(err))
	}

	if pd, ok := c.(PrefixDeleter); ok {
		n, err := pd.DeletePrefix(ctx, prefix)
		if err == nil {
			return InvalidationResult{Strategy: StrategyPrefix, Removed: n}
		}
		log.Warn("cache prefix delete failed", zap.String("prefix", prefix), zap.Error(err))
	}

	if cl, ok := c.(Clearer); ok {
		err := cl.Clear(ctx)
		if err == nil {
			log.Info("cache cleared as invalidation fallback", zap.String("prefix", prefix))
			return InvalidationResult{Strategy: StrategyClear}
		}
		log.Warn("cache clear failed", zap.Error(err))
	}

	log.Error("cache could not be invalidated; stale pages may be served until they expire",
		zap.String("prefix", prefix))
	return InvalidationResult{Strategy: StrategyNone}
}

// deleteKeys removes keys in one call and falls back to one call per key
// when the batch is rejected.
func deleteKeys(ctx context.Context, c Cache, keys []string, log *zap.Logger) InvalidationResult {
	res := InvalidationResult{Strategy: StrategyKeys}
	if len(keys) == 0 {
		return res
	}

	err := c.Delete(ctx, keys...)
	if err == nil {
		res.Removed = len(keys)
		return res
	}
	if len(keys) > 1 {
		log.Warn("cache batch delete failed, deleting keys one by one", zap.Int("keys", len(keys)), zap.Error(err))
	}

	for _, k := range keys {
		if len(keys) > 1 {
			err = c.Delete(ctx, k)
		}
		if err != nil {
			res.Failed++
			log.Warn("cache key delete failed", zap.String("key", k), zap.Error(err))
			continue
		}
		res.Removed++
	}
	return res
}
