package graph_test

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tally/internal/filter"
	"github.com/rafaeljc/tally/internal/graph"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// harness wires a Graph to an in-memory store and keeps the write-then-notify
// order a record subsystem must follow.
type harness struct {
	t     *testing.T
	ctx   context.Context
	store *store.MemoryStore
	graph *graph.Graph
}

func newHarness(t *testing.T, vars ...variable.Variable) *harness {
	t.Helper()

	s := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := graph.New(logger, s, s, graph.Options{Location: time.UTC, Clock: func() time.Time { return now }})

	h := &harness{t: t, ctx: context.Background(), store: s, graph: g}
	for _, v := range vars {
		require.NoError(t, g.OnVariableCreated(h.ctx, v))
	}
	return h
}

func (h *harness) put(e record.JournalEntry) {
	h.t.Helper()
	action, err := h.store.PutJournalEntry(h.ctx, e)
	require.NoError(h.t, err)
	require.NoError(h.t, h.graph.OnRecordAction(h.ctx, e, action))
}

func (h *harness) remove(id string) {
	h.t.Helper()
	removed, err := h.store.RemoveJournalEntry(h.ctx, id)
	require.NoError(h.t, err)
	require.NotNil(h.t, removed)
	require.NoError(h.t, h.graph.OnRecordAction(h.ctx, *removed, record.Deleted))
}

func (h *harness) putTag(e record.TagEntry) {
	h.t.Helper()
	action, err := h.store.PutTagEntry(h.ctx, e)
	require.NoError(h.t, err)
	require.NoError(h.t, h.graph.OnRecordAction(h.ctx, e, action))
}

func (h *harness) eval(id string, ts timescope.TimeScope) primitive.Value {
	h.t.Helper()
	v, _, err := h.graph.EvaluateByID(h.ctx, id, ts, graph.EvaluateOptions{})
	require.NoError(h.t, err)
	return v
}

func (h *harness) recompute(id string, ts timescope.TimeScope) primitive.Value {
	h.t.Helper()
	v, _, err := h.graph.EvaluateByID(h.ctx, id, ts, graph.EvaluateOptions{ForceRecompute: true})
	require.NoError(h.t, err)
	return v
}

func entry(id string, ts time.Time, ok float64) record.JournalEntry {
	return record.JournalEntry{
		ID:        id,
		FormID:    "ok",
		Timestamp: ts,
		Answers:   map[string]primitive.Value{"ok": primitive.Number(ok)},
	}
}

func listOf(id string, filters ...filter.Filter) variable.Variable {
	return variable.Variable{ID: id, Name: id, Type: variable.List{FormID: "ok", Filters: filters}}
}

func aggregateOf(id, source string, op variable.Operation) variable.Variable {
	return variable.Variable{ID: id, Name: id, Type: variable.Aggregate{Source: source, Field: "ok", Operation: op}}
}

func goalOf(id string, source string, target float64) variable.Variable {
	return variable.Variable{ID: id, Name: id, Type: variable.Goal{Conditions: []variable.Condition{{
		ID: "condition1",
		Check: variable.ComparisonCheck{
			Source:   variable.Operand{VariableID: source},
			Target:   variable.Operand{Constant: primitive.Number(target)},
			Operator: primitive.OpGreaterEqual,
		},
	}}}}
}

func refIDs(v primitive.Value) []string {
	list, _ := v.(primitive.List)
	ids := make([]string, 0, len(list))
	for _, item := range list {
		if ref, ok := item.(primitive.JournalEntryRef); ok {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

func TestGraph_SumFollowsAppendedEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list"), aggregateOf("sum", "list", variable.Sum))
	h.put(entry("e1", time.UnixMilli(0), 10))
	h.put(entry("e2", time.UnixMilli(0), 13))

	assert.Equal(t, primitive.Number(23), h.eval("sum", nil))

	h.put(entry("e3", time.UnixMilli(0), 13))

	assert.Equal(t, primitive.Number(36), h.eval("sum", nil))
	assert.Equal(t, primitive.Number(36), h.recompute("sum", nil))
}

func TestGraph_MeanFollowsAppendedEntries(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list"), aggregateOf("mean", "list", variable.Mean))
	h.put(entry("e1", time.UnixMilli(0), 30))
	h.put(entry("e2", time.UnixMilli(0), 20))

	assert.Equal(t, primitive.Number(25), h.eval("mean", nil))

	h.put(entry("e3", time.UnixMilli(0), 43))

	assert.Equal(t, primitive.Number(31), h.eval("mean", nil))
}

func TestGraph_GoalTurnsMet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list"), aggregateOf("sum", "list", variable.Sum), goalOf("goal", "sum", 30))
	h.put(entry("e1", time.UnixMilli(0), 10))
	h.put(entry("e2", time.UnixMilli(0), 13))

	want := primitive.Map{"condition1": primitive.ComparisonResult{Source: primitive.Number(23), Target: primitive.Number(30), Met: false}}
	assert.True(t, primitive.Equal(want, h.eval("goal", nil)))

	h.put(entry("e3", time.UnixMilli(0), 7))

	got := h.eval("goal", nil)
	assert.True(t, variable.IsGoalFullyMet(got))
	assert.True(t, primitive.Equal(primitive.ComparisonResult{Source: primitive.Number(30), Target: primitive.Number(30), Met: true}, got.(primitive.Map)["condition1"]))
}

func TestGraph_ListFilterPicksUpUpdatedEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list", filter.Filter{Field: "ok", Operator: filter.Greater, Value: primitive.Number(10)}))
	h.put(entry("e1", time.UnixMilli(0), 10))
	h.put(entry("e2", time.UnixMilli(0), 13))

	assert.Equal(t, []string{"e2"}, refIDs(h.eval("list", nil)))

	h.put(entry("e1", time.UnixMilli(0), 11))

	assert.ElementsMatch(t, []string{"e1", "e2"}, refIDs(h.eval("list", nil)))
}

func TestGraph_LatestTieAfterUpdate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, variable.Variable{ID: "latest", Type: variable.Latest{FormID: "ok"}})

	h.put(entry("a", now.Add(-2*time.Hour), 1))
	h.put(entry("b", now.Add(-time.Hour), 1))
	require.Equal(t, "b", idOf(h.eval("latest", nil)))

	// a was stored first, so it wins a tie with b.
	h.put(entry("a", now.Add(-time.Hour), 2))

	assert.Equal(t, "a", idOf(h.eval("latest", nil)))
	assert.Equal(t, "a", idOf(h.recompute("latest", nil)))
}

func TestGraph_DeletedEntryLeavesAggregate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list"), aggregateOf("sum", "list", variable.Sum))
	h.put(entry("e1", time.UnixMilli(0), 10))
	h.put(entry("e2", time.UnixMilli(0), 13))
	require.Equal(t, primitive.Number(23), h.eval("sum", nil))

	h.remove("e1")

	assert.Equal(t, primitive.Number(13), h.eval("sum", nil))
	assert.Equal(t, []string{"e2"}, refIDs(h.eval("list", nil)))
}

func TestGraph_GoalStreak(t *testing.T) {
	t.Parallel()

	count := variable.Variable{ID: "count", Type: variable.Aggregate{Source: "list", Operation: variable.Count}}
	streak := variable.Variable{ID: "streak", Type: variable.GoalStreak{GoalID: "goal"}}
	h := newHarness(t, listOf("list"), count, goalOf("goal", "count", 1), streak)

	for i, d := range []int{8, 9, 10} {
		h.put(entry(string(rune('a'+i)), time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC), 1))
	}

	v, scope, err := h.graph.EvaluateByID(h.ctx, "streak", timescope.Forever{}, graph.EvaluateOptions{})
	require.NoError(t, err)
	assert.Equal(t, primitive.Number(2), v, "today is excluded from the streak")
	assert.Equal(t, timescope.NewSimple(timescope.Daily, timescope.Monday, now, time.UTC).String(), scope.String(),
		"streaks are anchored to today regardless of the caller scope")

	// Removing yesterday's entry breaks the cached streak.
	h.remove("b")

	assert.Equal(t, primitive.Number(0), h.eval("streak", nil))
}

func TestGraph_ClockBoundResultsFollowTheClock(t *testing.T) {
	t.Parallel()

	clock := now
	s := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := graph.New(logger, s, s, graph.Options{Location: time.UTC, Clock: func() time.Time { return clock }})
	h := &harness{t: t, ctx: context.Background(), store: s, graph: g}

	count := variable.Variable{ID: "count", Type: variable.Aggregate{Source: "list", Operation: variable.Count}}
	daily := goalOf("daily", "count", 1)
	goal := daily.Type.(variable.Goal)
	goal.Scope = &variable.GoalScope{Period: timescope.Daily}
	daily.Type = goal
	streak := variable.Variable{ID: "streak", Type: variable.GoalStreak{GoalID: "logged"}}
	calc := variable.Variable{ID: "calc", Type: variable.Calculation{
		Operator: variable.Add,
		Operands: []variable.Operand{{VariableID: "streak"}, {Constant: primitive.Number(0)}},
	}}
	for _, v := range []variable.Variable{listOf("list"), count, daily, goalOf("logged", "count", 1), streak, calc} {
		require.NoError(t, g.OnVariableCreated(h.ctx, v))
	}

	h.put(entry("a", time.Date(2024, 3, 9, 9, 0, 0, 0, time.UTC), 1))
	h.put(entry("b", time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC), 1))

	assert.True(t, variable.IsGoalFullyMet(h.eval("daily", nil)))
	assert.Equal(t, primitive.Number(1), h.eval("calc", nil))

	clock = now.AddDate(0, 0, 1)
	assert.True(t, variable.IsGoalFullyMet(h.eval("daily", timescope.NewSimple(timescope.Daily, timescope.Monday, now, time.UTC))),
		"an explicit day is unaffected by the clock")
	assert.False(t, variable.IsGoalFullyMet(h.eval("daily", nil)), "today moved past the only logged day")
	assert.Equal(t, normalize(h.recompute("daily", nil)), normalize(h.eval("daily", nil)))
	assert.Equal(t, primitive.Number(2), h.eval("calc", nil))

	clock = now.AddDate(0, 0, 3)
	assert.Equal(t, primitive.Number(0), h.eval("calc", nil), "the streak broke on the 11th")
	assert.Equal(t, h.recompute("calc", nil), h.eval("calc", nil))
}

func TestGraph_IgnoreFixedScope(t *testing.T) {
	t.Parallel()

	streak := variable.Variable{ID: "streak", Type: variable.GoalStreak{GoalID: "goal"}}
	h := newHarness(t, streak)

	forever := timescope.Forever{}
	_, scope, err := h.graph.EvaluateByID(h.ctx, "streak", forever, graph.EvaluateOptions{IgnoreFixedScope: true})
	require.NoError(t, err)
	assert.Equal(t, forever.String(), scope.String())
}

func TestGraph_ScopedEvaluation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list"), aggregateOf("sum", "list", variable.Sum))
	h.put(entry("mon", time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), 5))
	h.put(entry("tue", time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC), 7))
	h.put(entry("next", time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), 11))

	week := timescope.NewSimple(timescope.Weekly, timescope.Monday, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), time.UTC)
	tuesday := timescope.NewSimple(timescope.Daily, timescope.Monday, time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC), time.UTC)

	assert.Equal(t, primitive.Number(12), h.eval("sum", week))
	assert.Equal(t, primitive.Number(7), h.eval("sum", tuesday))
	assert.Equal(t, primitive.Number(23), h.eval("sum", nil))

	// Only the weekly and forever indices contain the new Wednesday entry.
	h.put(entry("wed", time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC), 1))

	assert.Equal(t, primitive.Number(13), h.eval("sum", week))
	assert.Equal(t, primitive.Number(7), h.eval("sum", tuesday))
	assert.Equal(t, primitive.Number(24), h.eval("sum", nil))
}

func TestGraph_CacheRecomputeEquivalence(t *testing.T) {
	t.Parallel()

	group := variable.Variable{ID: "group", Type: variable.Group{FormID: "ok", GroupBy: "mood"}}
	perGroup := variable.Variable{ID: "per_group", Type: variable.Aggregate{Source: "group", Field: "ok", Operation: variable.Sum}}
	h := newHarness(t, group, perGroup)

	mood := func(e record.JournalEntry, m string) record.JournalEntry {
		e.Answers["mood"] = primitive.String(m)
		return e
	}
	h.put(mood(entry("e1", time.UnixMilli(10), 1), "good"))
	h.put(mood(entry("e2", time.UnixMilli(20), 2), "bad"))
	h.put(mood(entry("e3", time.UnixMilli(30), 4), "good"))

	forced := h.recompute("per_group", nil)
	cached := h.eval("per_group", nil)

	assert.True(t, primitive.Equal(forced, cached))
	assert.True(t, primitive.Equal(primitive.Map{"good": primitive.Number(5), "bad": primitive.Number(2)}, cached))
}

func TestGraph_IncrementalConsistency(t *testing.T) {
	t.Parallel()

	vars := []variable.Variable{
		listOf("list", filter.Filter{Field: "ok", Operator: filter.GreaterEqual, Value: primitive.Number(2)}),
		{ID: "latest", Type: variable.Latest{FormID: "ok"}},
		{ID: "group", Type: variable.Group{FormID: "ok", GroupBy: "mood"}},
		{ID: "tags", Type: variable.Tag{TagID: "coffee"}},
	}
	h := newHarness(t, vars...)

	day := func(d, hour int) time.Time { return time.Date(2024, 3, d, hour, 0, 0, 0, time.UTC) }
	scopes := []timescope.TimeScope{
		timescope.Forever{},
		timescope.NewSimple(timescope.Daily, timescope.Monday, day(4, 0), time.UTC),
		timescope.NewSimple(timescope.Weekly, timescope.Monday, day(4, 0), time.UTC),
	}
	withMood := func(e record.JournalEntry, m string) record.JournalEntry {
		e.Answers["mood"] = primitive.String(m)
		return e
	}

	// Warm every index so the mutations below have something to patch.
	for _, v := range vars {
		for _, s := range scopes {
			h.eval(v.ID, s)
		}
	}

	steps := []func(){
		func() { h.put(withMood(entry("a", day(4, 8), 3), "good")) },
		func() { h.put(withMood(entry("b", day(4, 9), 1), "bad")) },
		func() { h.putTag(record.TagEntry{ID: "t1", TagID: "coffee", Timestamp: day(4, 7)}) },
		func() { h.put(withMood(entry("c", day(5, 9), 5), "good")) },
		func() { h.put(withMood(entry("b", day(4, 9), 4), "good")) },  // now passes the filter and changes group
		func() { h.put(withMood(entry("a", day(6, 10), 3), "bad")) },  // moves out of the daily scope
		func() { h.putTag(record.TagEntry{ID: "t1", TagID: "coffee", Timestamp: day(9, 7)}) },
		func() { h.remove("c") },
		func() { h.put(withMood(entry("d", day(4, 23), 2), "meh")) },
	}

	for i, step := range steps {
		step()
		for _, v := range vars {
			for _, s := range scopes {
				cached := normalize(h.eval(v.ID, s))
				fresh := normalize(h.recompute(v.ID, s))
				assert.True(t, primitive.Equal(fresh, cached), "step %d: %s in %s\ncached: %#v\nfresh:  %#v", i, v.ID, s, cached, fresh)
			}
		}
	}
}

// normalize orders lists by record id so incremental appends and full
// recomputes compare as sets.
func normalize(v primitive.Value) primitive.Value {
	switch x := v.(type) {
	case primitive.List:
		out := make(primitive.List, len(x))
		for i, item := range x {
			out[i] = normalize(item)
		}
		slices.SortFunc(out, func(a, b primitive.Value) int { return cmp.Compare(idOf(a), idOf(b)) })
		return out
	case primitive.Map:
		out := make(primitive.Map, len(x))
		for k, item := range x {
			out[k] = normalize(item)
		}
		return out
	}
	return v
}

func idOf(v primitive.Value) string {
	switch ref := v.(type) {
	case primitive.JournalEntryRef:
		return ref.ID
	case primitive.TagEntryRef:
		return ref.ID
	}
	return ""
}

func TestGraph_CyclesAreRejected(t *testing.T) {
	t.Parallel()

	calc := func(id string, deps ...string) variable.Variable {
		ops := make([]variable.Operand, len(deps))
		for i, d := range deps {
			ops[i] = variable.Operand{VariableID: d}
		}
		return variable.Variable{ID: id, Type: variable.Calculation{Operator: variable.Add, Operands: ops}}
	}

	h := newHarness(t, calc("a", "b"), calc("b", "c"))

	err := h.graph.OnVariableCreated(h.ctx, calc("c", "a"))
	require.ErrorIs(t, err, graph.ErrCyclicDependency)
	_, ok := h.graph.Variable("c")
	assert.False(t, ok, "rejected variable is not added")

	require.NoError(t, h.graph.OnVariableCreated(h.ctx, calc("c")))
	err = h.graph.OnVariableUpdated(h.ctx, calc("c", "a"))
	require.ErrorIs(t, err, graph.ErrCyclicDependency)

	c, ok := h.graph.Variable("c")
	require.True(t, ok)
	assert.Empty(t, c.Dependencies(), "rejected update keeps the previous definition")
}

func TestGraph_SelfReferenceFailsAtEvaluation(t *testing.T) {
	t.Parallel()

	self := variable.Variable{ID: "self", Type: variable.Calculation{
		Operator: variable.Add,
		Operands: []variable.Operand{{VariableID: "self"}, {Constant: primitive.Number(1)}},
	}}
	h := newHarness(t, self)

	_, _, err := h.graph.EvaluateByID(h.ctx, "self", nil, graph.EvaluateOptions{})
	assert.ErrorIs(t, err, graph.ErrCyclicDependency)
}

func TestGraph_UnknownVariable(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	_, _, err := h.graph.EvaluateByID(h.ctx, "missing", nil, graph.EvaluateOptions{})
	assert.ErrorIs(t, err, graph.ErrVariableNotFound)
}

func TestGraph_UnregisteredRootIsNotCached(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list"))
	h.put(entry("e1", time.UnixMilli(0), 4))

	adhoc := aggregateOf("adhoc", "list", variable.Sum)
	got, err := h.graph.EvaluateVariable(h.ctx, adhoc, nil, graph.EvaluateOptions{})
	require.NoError(t, err)
	assert.Equal(t, primitive.Number(4), got)

	indices, err := h.store.IndicesByVariableID(h.ctx, "adhoc")
	require.NoError(t, err)
	assert.Empty(t, indices)

	indices, err = h.store.IndicesByVariableID(h.ctx, "list")
	require.NoError(t, err)
	assert.Len(t, indices, 1, "registered dependencies are still cached")
}

func TestGraph_VariableLifecycleInvalidates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list"), aggregateOf("sum", "list", variable.Sum))
	h.put(entry("e1", time.UnixMilli(0), 10))
	h.put(entry("e2", time.UnixMilli(0), 13))
	require.Equal(t, primitive.Number(23), h.eval("sum", nil))

	// Narrowing the list drops its own and its dependents' indices.
	require.NoError(t, h.graph.OnVariableUpdated(h.ctx,
		listOf("list", filter.Filter{Field: "ok", Operator: filter.Greater, Value: primitive.Number(10)})))
	assert.Equal(t, primitive.Number(13), h.eval("sum", nil))

	// A dangling source degrades to the neutral aggregate.
	require.NoError(t, h.graph.OnVariableDeleted(h.ctx, "list"))
	assert.Equal(t, primitive.Number(0), h.eval("sum", nil))

	indices, err := h.store.IndicesByVariableID(h.ctx, "list")
	require.NoError(t, err)
	assert.Empty(t, indices)
}

func TestGraph_DeleteIndices(t *testing.T) {
	t.Parallel()

	h := newHarness(t, listOf("list"), aggregateOf("sum", "list", variable.Sum))
	h.put(entry("e1", time.UnixMilli(0), 10))
	require.Equal(t, primitive.Number(10), h.eval("sum", nil))

	// Records replaced underneath the graph, e.g. by a full resync.
	_, err := h.store.PutJournalEntry(h.ctx, entry("e2", time.UnixMilli(0), 5))
	require.NoError(t, err)
	require.Equal(t, primitive.Number(10), h.eval("sum", nil), "stale until indices are dropped")

	require.NoError(t, h.graph.DeleteIndices(h.ctx))

	assert.Equal(t, primitive.Number(15), h.eval("sum", nil))
}

func TestGraph_Dependents(t *testing.T) {
	t.Parallel()

	h := newHarness(t,
		listOf("list"),
		aggregateOf("sum", "list", variable.Sum),
		aggregateOf("mean", "list", variable.Mean),
		goalOf("goal", "sum", 10),
		variable.Variable{ID: "streak", Type: variable.GoalStreak{GoalID: "goal"}},
	)

	assert.Equal(t, []string{"mean", "sum"}, h.graph.Dependents("list"))
	assert.Equal(t, []string{"goal", "mean", "streak", "sum"}, h.graph.TransitiveDependents("list"))
	assert.Empty(t, h.graph.Dependents("streak"))

	ids := make([]string, 0)
	for _, v := range h.graph.Variables() {
		ids = append(ids, v.ID)
	}
	assert.Equal(t, []string{"goal", "list", "mean", "streak", "sum"}, ids)
}

func TestGraph_Load(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveVariable(ctx, listOf("list")))
	require.NoError(t, s.SaveVariable(ctx, aggregateOf("sum", "list", variable.Sum)))

	g := graph.New(slog.New(slog.NewTextHandler(io.Discard, nil)), s, s, graph.Options{})
	require.NoError(t, g.Load(ctx, s))

	assert.Equal(t, []string{"sum"}, g.Dependents("list"))
}

func TestGraph_LoadRejectsCycles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.SaveVariable(ctx, aggregateOf("a", "b", variable.Sum)))
	require.NoError(t, s.SaveVariable(ctx, aggregateOf("b", "a", variable.Sum)))

	g := graph.New(slog.New(slog.NewTextHandler(io.Discard, nil)), s, s, graph.Options{})
	assert.ErrorIs(t, g.Load(ctx, s), graph.ErrCyclicDependency)
}

func TestNew_PanicsOnMissingDependencies(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	assert.Panics(t, func() { graph.New(nil, s, s, graph.Options{}) })
	assert.Panics(t, func() { graph.New(logger, nil, s, graph.Options{}) })
	assert.Panics(t, func() { graph.New(logger, s, nil, graph.Options{}) })
}
