package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/tally/internal/observability"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/validation"
	"github.com/rafaeljc/tally/internal/variable"
)

// Compile-time check to verify that CachedIndexRepository implements IndexRepository.
var _ store.IndexRepository = (*CachedIndexRepository)(nil)

// CachedIndexRepository is the L1 in front of an index backend, using the
// contention-free S3-FIFO cache provided by otter. Only point lookups are
// served from memory; every write goes to the backend first and then drops
// the affected L1 entries, so the next read observes the backend's state
// (including the id an upsert kept).
//
// The L1 assumes it is the only writer of the backend within this process.
// Writes made by other replicas are only picked up once the TTL expires.
type CachedIndexRepository struct {
	next  store.IndexRepository
	store otter.Cache[string, variable.Index]

	lastEvicted int64
	lastDropped int64
}

// NewCachedIndexRepository wraps next with an L1 of the given capacity.
// ttl bounds how long an entry can lag behind writes from other processes.
func NewCachedIndexRepository(next store.IndexRepository, capacity int, ttl time.Duration) (*CachedIndexRepository, error) {
	validation.AssertPresent(next, "index repository")

	c, err := otter.MustBuilder[string, variable.Index](capacity).
		WithTTL(ttl).
		CollectStats().
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build L1 index cache: %w", err)
	}

	return &CachedIndexRepository{next: next, store: c}, nil
}

func cacheKey(variableID, scope string) string {
	return variableID + "\x00" + scope
}

// IndicesByVariableID always reads the backend: incremental updates need
// every stored scope, and the L1 only holds the ones recently read.
func (c *CachedIndexRepository) IndicesByVariableID(ctx context.Context, variableID string) ([]variable.Index, error) {
	return c.next.IndicesByVariableID(ctx, variableID)
}

func (c *CachedIndexRepository) IndexByVariableAndScope(ctx context.Context, variableID, scope string) (*variable.Index, error) {
	key := cacheKey(variableID, scope)
	if idx, ok := c.store.Get(key); ok {
		observability.IndexCacheHits.Inc()
		idx.Value = primitive.Clone(idx.Value)
		return &idx, nil
	}
	observability.IndexCacheMisses.Inc()

	idx, err := c.next.IndexByVariableAndScope(ctx, variableID, scope)
	if err != nil || idx == nil {
		return idx, err
	}

	cached := *idx
	cached.Value = primitive.Clone(idx.Value)
	c.store.Set(key, cached)
	return idx, nil
}

func (c *CachedIndexRepository) SaveIndex(ctx context.Context, idx variable.Index) error {
	if err := c.next.SaveIndex(ctx, idx); err != nil {
		return err
	}
	c.store.Delete(cacheKey(idx.VariableID, idx.TimeScope))
	return nil
}

func (c *CachedIndexRepository) DeleteIndex(ctx context.Context, idx variable.Index) error {
	if err := c.next.DeleteIndex(ctx, idx); err != nil {
		return err
	}
	c.store.Delete(cacheKey(idx.VariableID, idx.TimeScope))
	return nil
}

func (c *CachedIndexRepository) DeleteIndicesByVariableID(ctx context.Context, variableID string) error {
	if err := c.next.DeleteIndicesByVariableID(ctx, variableID); err != nil {
		return err
	}
	c.store.DeleteByFunc(func(_ string, idx variable.Index) bool {
		return idx.VariableID == variableID
	})
	return nil
}

func (c *CachedIndexRepository) DeleteAllIndices(ctx context.Context) error {
	if err := c.next.DeleteAllIndices(ctx); err != nil {
		return err
	}
	c.store.Clear()
	return nil
}

// Len returns the number of indices currently held in memory.
func (c *CachedIndexRepository) Len() int {
	return c.store.Size()
}

// RunMetricsCollector samples L1 usage into prometheus until ctx is
// cancelled. It must run in a single goroutine.
func (c *CachedIndexRepository) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

func (c *CachedIndexRepository) collect() {
	stats := c.store.Stats()
	observability.IndexCacheItems.Set(float64(c.store.Size()))

	evicted := stats.EvictedCount()
	observability.IndexCacheEvictions.Add(float64(evicted - c.lastEvicted))
	c.lastEvicted = evicted

	dropped := stats.RejectedSets()
	observability.IndexCacheDropped.Add(float64(dropped - c.lastDropped))
	c.lastDropped = dropped
}

// Close stops otter's background goroutines. The backend is not closed.
func (c *CachedIndexRepository) Close() {
	c.store.Close()
}
