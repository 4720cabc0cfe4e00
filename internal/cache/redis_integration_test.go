//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tally/internal/cache"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/testsupport"
	"github.com/rafaeljc/tally/internal/variable"
)

func TestRedisIndexStore_Integration(t *testing.T) {
	// 1. Infrastructure Setup
	ctx := context.Background()

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisCtr.Terminate(ctx)

	s := cache.NewRedisIndexStore(redisCtr.Client, "tally-test")
	ref := primitive.JournalEntryRef{ID: "e1", Timestamp: time.UnixMilli(1_700_000_000_000).UTC()}

	t.Run("Should upsert on variable and scope keeping the first id", func(t *testing.T) {
		v := "var-" + uuid.NewString()
		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: "first", VariableID: v, TimeScope: "FOREVER", Value: primitive.Number(1)}))
		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: "second", VariableID: v, TimeScope: "FOREVER", Value: primitive.List{ref}}))

		idx, err := s.IndexByVariableAndScope(ctx, v, "FOREVER")
		require.NoError(t, err)
		require.NotNil(t, idx)
		assert.Equal(t, "first", idx.ID)
		assert.True(t, primitive.Equal(primitive.List{ref}, idx.Value))
	})

	t.Run("Should return nil for absent indices", func(t *testing.T) {
		idx, err := s.IndexByVariableAndScope(ctx, "missing-"+uuid.NewString(), "FOREVER")
		require.NoError(t, err)
		assert.Nil(t, idx)
	})

	t.Run("Should list indices ordered by scope", func(t *testing.T) {
		v := "var-" + uuid.NewString()
		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: "b", VariableID: v, TimeScope: "s-b", Value: primitive.Number(2)}))
		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: "a", VariableID: v, TimeScope: "s-a", Value: primitive.Null{}}))

		all, err := s.IndicesByVariableID(ctx, v)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "s-a", all[0].TimeScope)
		assert.Equal(t, "a", all[0].ID)
		assert.Equal(t, primitive.Null{}, all[0].Value)
		assert.Equal(t, "s-b", all[1].TimeScope)
	})

	t.Run("Should delete single indices and whole variables", func(t *testing.T) {
		v := "var-" + uuid.NewString()
		a := variable.Index{ID: "a", VariableID: v, TimeScope: "s-a", Value: primitive.Number(1)}
		b := variable.Index{ID: "b", VariableID: v, TimeScope: "s-b", Value: primitive.Number(2)}
		require.NoError(t, s.SaveIndex(ctx, a))
		require.NoError(t, s.SaveIndex(ctx, b))

		require.NoError(t, s.DeleteIndex(ctx, a))
		all, err := s.IndicesByVariableID(ctx, v)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "s-b", all[0].TimeScope)

		require.NoError(t, s.DeleteIndicesByVariableID(ctx, v))
		all, err = s.IndicesByVariableID(ctx, v)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Should delete every index", func(t *testing.T) {
		v1, v2 := "var-"+uuid.NewString(), "var-"+uuid.NewString()
		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: "1", VariableID: v1, TimeScope: "s", Value: primitive.Number(1)}))
		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: "2", VariableID: v2, TimeScope: "s", Value: primitive.Number(2)}))

		require.NoError(t, s.DeleteAllIndices(ctx))

		for _, v := range []string{v1, v2} {
			idx, err := s.IndexByVariableAndScope(ctx, v, "s")
			require.NoError(t, err)
			assert.Nil(t, idx)
		}
	})

	t.Run("Should report healthy", func(t *testing.T) {
		assert.NoError(t, cache.NewHealthChecker(redisCtr.Client).Check(ctx))
	})
}
