// Package store_test exercises every Store implementation through the same
// black-box scenarios.
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

func ids(entries []record.JournalEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// runStoreContract runs sequential scenarios against s. Scenarios use unique
// form, tag and variable ids so they can share one database.
func runStoreContract(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("JournalEntries_InsertionOrderAndRanges", func(t *testing.T) {
		form := "form-" + uuid.NewString()
		mk := func(id string, ms int64, ok float64) record.JournalEntry {
			return record.JournalEntry{
				ID:        id + form,
				FormID:    form,
				Timestamp: time.UnixMilli(ms),
				Answers:   map[string]primitive.Value{"ok": primitive.Number(ok)},
			}
		}

		for _, e := range []record.JournalEntry{mk("c", 300, 3), mk("a", 100, 1), mk("b", 200, 2)} {
			action, err := s.PutJournalEntry(ctx, e)
			require.NoError(t, err)
			assert.Equal(t, record.Created, action)
		}

		all, err := s.JournalEntriesInRange(ctx, form, timescope.All())
		require.NoError(t, err)
		assert.Equal(t, []string{"c" + form, "a" + form, "b" + form}, ids(all), "fetch order is insertion order")
		assert.Equal(t, primitive.Number(3), all[0].Answers["ok"])
		assert.Equal(t, int64(300), all[0].Timestamp.UnixMilli())

		between, err := s.JournalEntriesInRange(ctx, form, timescope.Between(time.UnixMilli(100), time.UnixMilli(300)))
		require.NoError(t, err)
		assert.Equal(t, []string{"a" + form, "b" + form}, ids(between), "upper bound is exclusive")

		after, err := s.JournalEntriesInRange(ctx, form, timescope.After(time.UnixMilli(200)))
		require.NoError(t, err)
		assert.Equal(t, []string{"c" + form, "b" + form}, ids(after))

		before, err := s.JournalEntriesInRange(ctx, form, timescope.Before(time.UnixMilli(200)))
		require.NoError(t, err)
		assert.Equal(t, []string{"a" + form}, ids(before))

		list, err := s.JournalEntriesInRange(ctx, form, timescope.List(time.UnixMilli(100), time.UnixMilli(300)))
		require.NoError(t, err)
		assert.Equal(t, []string{"c" + form, "a" + form}, ids(list))

		empty, err := s.JournalEntriesInRange(ctx, form, timescope.List())
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("JournalEntries_UpdateKeepsPosition", func(t *testing.T) {
		form := "form-" + uuid.NewString()
		first := record.JournalEntry{ID: uuid.NewString(), FormID: form, Timestamp: time.UnixMilli(1), Answers: map[string]primitive.Value{}}
		second := record.JournalEntry{ID: uuid.NewString(), FormID: form, Timestamp: time.UnixMilli(2), Answers: map[string]primitive.Value{}}

		_, err := s.PutJournalEntry(ctx, first)
		require.NoError(t, err)
		_, err = s.PutJournalEntry(ctx, second)
		require.NoError(t, err)

		label := "Good"
		first.Answers = map[string]primitive.Value{"mood": primitive.Display{Value: primitive.Number(4), DisplayValue: &label}}
		action, err := s.PutJournalEntry(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, record.Updated, action)

		all, err := s.JournalEntriesInRange(ctx, form, timescope.All())
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, second.ID}, ids(all))
		assert.True(t, primitive.Equal(first.Answers["mood"], all[0].Answers["mood"]))

		removed, err := s.RemoveJournalEntry(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, removed)
		assert.Equal(t, first.ID, removed.ID)
		assert.Equal(t, form, removed.FormID)

		again, err := s.RemoveJournalEntry(ctx, first.ID)
		require.NoError(t, err)
		assert.Nil(t, again, "removing a missing entry returns nil")
	})

	t.Run("TagEntries", func(t *testing.T) {
		tag := "tag-" + uuid.NewString()
		e := record.TagEntry{ID: uuid.NewString(), TagID: tag, Timestamp: time.UnixMilli(50)}

		action, err := s.PutTagEntry(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, record.Created, action)

		e.Timestamp = time.UnixMilli(60)
		action, err = s.PutTagEntry(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, record.Updated, action)

		got, err := s.TagEntriesInRange(ctx, tag, timescope.After(time.UnixMilli(55)))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, int64(60), got[0].Timestamp.UnixMilli())

		removed, err := s.RemoveTagEntry(ctx, e.ID)
		require.NoError(t, err)
		require.NotNil(t, removed)

		got, err = s.TagEntriesInRange(ctx, tag, timescope.All())
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Indices_UpsertKeepsIDAndValue", func(t *testing.T) {
		varID := uuid.NewString()
		scope := timescope.NewSimple(timescope.Daily, timescope.Monday, time.UnixMilli(0), time.UTC).String()

		missing, err := s.IndexByVariableAndScope(ctx, varID, scope)
		require.NoError(t, err)
		assert.Nil(t, missing)

		original := variable.Index{ID: uuid.NewString(), VariableID: varID, TimeScope: scope, Value: primitive.Number(23)}
		require.NoError(t, s.SaveIndex(ctx, original))

		replacement := variable.Index{ID: uuid.NewString(), VariableID: varID, TimeScope: scope, Value: primitive.List{
			primitive.JournalEntryRef{ID: "e1", Timestamp: time.UnixMilli(5).UTC(), Fields: map[string]primitive.Value{"ok": primitive.Number(1)}},
		}}
		require.NoError(t, s.SaveIndex(ctx, replacement))

		got, err := s.IndexByVariableAndScope(ctx, varID, scope)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, original.ID, got.ID, "upsert keeps the existing id")
		assert.True(t, primitive.Equal(replacement.Value, got.Value))

		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: uuid.NewString(), VariableID: varID, TimeScope: "FOREVER|", Value: primitive.Null{}}))
		all, err := s.IndicesByVariableID(ctx, varID)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		require.NoError(t, s.DeleteIndex(ctx, variable.Index{VariableID: varID, TimeScope: scope}))
		all, err = s.IndicesByVariableID(ctx, varID)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, primitive.Null{}, all[0].Value)

		require.NoError(t, s.DeleteIndicesByVariableID(ctx, varID))
		all, err = s.IndicesByVariableID(ctx, varID)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Indices_DeleteAll", func(t *testing.T) {
		a, b := uuid.NewString(), uuid.NewString()
		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: uuid.NewString(), VariableID: a, TimeScope: "FOREVER|", Value: primitive.Number(1)}))
		require.NoError(t, s.SaveIndex(ctx, variable.Index{ID: uuid.NewString(), VariableID: b, TimeScope: "FOREVER|", Value: primitive.Number(2)}))

		require.NoError(t, s.DeleteAllIndices(ctx))

		for _, id := range []string{a, b} {
			got, err := s.IndexByVariableAndScope(ctx, id, "FOREVER|")
			require.NoError(t, err)
			assert.Nil(t, got)
		}
	})

	t.Run("Variables", func(t *testing.T) {
		listID, aggID := uuid.NewString(), uuid.NewString()
		list := variable.Variable{ID: listID, Name: "Entries", OwnerID: aggID, Type: variable.List{FormID: "ok"}}
		agg := variable.Variable{ID: aggID, Name: "Total", Type: variable.Aggregate{Source: listID, Field: "ok", Operation: variable.Sum}}

		require.NoError(t, s.SaveVariable(ctx, list))
		require.NoError(t, s.SaveVariable(ctx, agg))

		got, err := s.VariableByID(ctx, aggID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Total", got.Name)
		assert.Equal(t, agg.Type, got.Type)

		agg.Name = "Sum"
		agg.Type = variable.Aggregate{Source: listID, Field: "ok", Operation: variable.Mean}
		require.NoError(t, s.SaveVariable(ctx, agg))

		all, err := s.AllVariables(ctx)
		require.NoError(t, err)
		var found []variable.Variable
		for _, v := range all {
			if v.ID == listID || v.ID == aggID {
				found = append(found, v)
			}
		}
		require.Len(t, found, 2)
		assert.Equal(t, listID, found[0].ID, "variables are listed in creation order")
		assert.Equal(t, aggID, found[0].OwnerID)
		assert.Equal(t, "Sum", found[1].Name)
		assert.Equal(t, variable.Mean, found[1].Type.(variable.Aggregate).Operation)

		require.NoError(t, s.DeleteVariable(ctx, listID))
		gone, err := s.VariableByID(ctx, listID)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}
