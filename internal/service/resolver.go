package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"

	"github.com/Polymerase3/elpis-v2/internal/metrics"
	"github.com/Polymerase3/elpis-v2/internal/models"
	"github.com/Polymerase3/elpis-v2/internal/repository"
)

const defaultResolverTTL = 10 * time.Minute

// RefResolver resolves instrument and strategy reference data with an
// in-memory TTL cache in front of the repositories. Only positive lookups are
// cached: a row inserted after a miss must become visible on the next call.
type RefResolver struct {
	instruments repository.InstrumentRepository
	strategies  repository.StrategyRepository
	cache       *cache.Cache
	ttl         time.Duration
	mu          sync.Mutex
	hitCount    uint64
	missCount   uint64
}

// NewRefResolver creates a resolver backed by the given repositories
func NewRefResolver(
	instruments repository.InstrumentRepository,
	strategies repository.StrategyRepository,
	ttl time.Duration,
) *RefResolver {
	if ttl <= 0 {
		ttl = defaultResolverTTL
	}

	return &RefResolver{
		instruments: instruments,
		strategies:  strategies,
		cache:       cache.New(ttl, ttl*2),
		ttl:         ttl,
	}
}

func instrumentKeyCacheKey(uic int64, assetType models.AssetType) string {
	return fmt.Sprintf("instrument:%d:%s", uic, assetType)
}

func instrumentIDCacheKey(id int64) string {
	return fmt.Sprintf("instrument_id:%d", id)
}

func strategyCacheKey(name string) string {
	return "strategy:" + name
}

// InstrumentID resolves the surrogate id of an instrument by its natural
// (uic, asset_type) key
func (r *RefResolver) InstrumentID(ctx context.Context, uic int64, assetType models.AssetType) (int64, error) {
	key := instrumentKeyCacheKey(uic, assetType)
	if v, found := r.cache.Get(key); found {
		r.recordHit()
		if id, ok := v.(int64); ok {
			return id, nil
		}
	}
	r.recordMiss()

	instr, err := r.instruments.GetByKey(ctx, uic, assetType)
	if err != nil {
		return 0, err
	}

	r.cache.Set(key, instr.ID, r.ttl)
	r.cache.Set(instrumentIDCacheKey(instr.ID), true, r.ttl)
	return instr.ID, nil
}

// InstrumentExists reports whether an instrument row exists for the given id
func (r *RefResolver) InstrumentExists(ctx context.Context, id int64) (bool, error) {
	key := instrumentIDCacheKey(id)
	if _, found := r.cache.Get(key); found {
		r.recordHit()
		return true, nil
	}
	r.recordMiss()

	exists, err := r.instruments.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if exists {
		r.cache.Set(key, true, r.ttl)
	}
	return exists, nil
}

// StrategyID resolves the id of a strategy by its unique name
func (r *RefResolver) StrategyID(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, models.ErrStrategyNameRequired
	}

	key := strategyCacheKey(name)
	if v, found := r.cache.Get(key); found {
		r.recordHit()
		if id, ok := v.(int64); ok {
			return id, nil
		}
	}
	r.recordMiss()

	strat, err := r.strategies.GetByName(ctx, name)
	if err != nil {
		return 0, err
	}

	r.cache.Set(key, strat.ID, r.ttl)
	return strat.ID, nil
}

// Invalidate drops the cached entries for one instrument key
func (r *RefResolver) Invalidate(uic int64, assetType models.AssetType) {
	key := instrumentKeyCacheKey(uic, assetType)
	if v, found := r.cache.Get(key); found {
		if id, ok := v.(int64); ok {
			r.cache.Delete(instrumentIDCacheKey(id))
		}
	}
	r.cache.Delete(key)
}

// Flush drops every cached entry and resets the hit counters
func (r *RefResolver) Flush() {
	r.cache.Flush()

	r.mu.Lock()
	r.hitCount = 0
	r.missCount = 0
	r.mu.Unlock()
}

// Stats returns cache hit statistics
func (r *RefResolver) Stats() (hits, misses uint64, ratio float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hits = r.hitCount
	misses = r.missCount
	total := hits + misses
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return
}

// ItemCount returns the number of cached entries
func (r *RefResolver) ItemCount() int {
	return r.cache.ItemCount()
}

func (r *RefResolver) recordHit() {
	r.mu.Lock()
	r.hitCount++
	r.mu.Unlock()
	r.updateMetrics()
}

func (r *RefResolver) recordMiss() {
	r.mu.Lock()
	r.missCount++
	r.mu.Unlock()
	r.updateMetrics()
}

func (r *RefResolver) updateMetrics() {
	_, _, ratio := r.Stats()
	metrics.ResolverCacheHitRatio.Set(ratio)
}
