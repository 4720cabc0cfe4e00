package cache_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tally/internal/cache"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/testsupport"
	"github.com/rafaeljc/tally/internal/variable"
)

func TestCachedIndexRepository_Metrics(t *testing.T) {
	ctx := context.Background()

	l1, err := cache.NewCachedIndexRepository(store.NewMemoryStore(), 10, time.Minute)
	require.NoError(t, err)
	defer l1.Close()

	// warm stores an index in the backend and reads it once so the L1 holds it.
	warm := func(t *testing.T, variableID string) {
		t.Helper()
		require.NoError(t, l1.SaveIndex(ctx, variable.Index{
			ID: "idx-" + variableID, VariableID: variableID, TimeScope: "FOREVER", Value: primitive.Number(1),
		}))
		_, err := l1.IndexByVariableAndScope(ctx, variableID, "FOREVER")
		require.NoError(t, err)
	}
	lookup := func(t *testing.T, variableID string) *variable.Index {
		t.Helper()
		idx, err := l1.IndexByVariableAndScope(ctx, variableID, "FOREVER")
		require.NoError(t, err)
		return idx
	}

	t.Run("Should count a miss for an unknown index", func(t *testing.T) {
		testsupport.AssertMetricDelta(t, "tally_index_cache_l1_misses_total", nil, 1, func() {
			assert.Nil(t, lookup(t, "ghost"))
		})
	})

	t.Run("Should count a hit once the index is warm", func(t *testing.T) {
		warm(t, "km-total")
		testsupport.AssertMetricDelta(t, "tally_index_cache_l1_hits_total", nil, 1, func() {
			idx := lookup(t, "km-total")
			require.NotNil(t, idx)
			assert.Equal(t, "km-total", idx.VariableID)
		})
	})

	t.Run("Should miss again after the variable's indices are dropped", func(t *testing.T) {
		warm(t, "run-count")
		require.NoError(t, l1.DeleteIndicesByVariableID(ctx, "run-count"))

		testsupport.AssertMetricDelta(t, "tally_index_cache_l1_misses_total", nil, 1, func() {
			assert.Nil(t, lookup(t, "run-count"))
		})
	})

	t.Run("Should publish size and evictions from the collector", func(t *testing.T) {
		collectorCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go l1.RunMetricsCollector(collectorCtx, 10*time.Millisecond)

		for i := range 5 {
			warm(t, fmt.Sprintf("weekly-%d", i))
		}
		require.Eventually(t, func() bool {
			return testsupport.GetMetricValue(t, "tally_index_cache_l1_items_count", nil) >= 5
		}, 2*time.Second, 50*time.Millisecond, "items gauge never caught up")

		// ten times the capacity
		for i := range 100 {
			warm(t, fmt.Sprintf("overflow-%d", i))
		}
		require.Eventually(t, func() bool {
			return testsupport.GetMetricValue(t, "tally_index_cache_l1_evictions_total", nil) > 0
		}, 2*time.Second, 50*time.Millisecond, "no eviction was recorded")
	})
}
