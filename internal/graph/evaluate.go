package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rafaeljc/tally/internal/observability"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

// EvaluateOptions tunes a single root evaluation.
type EvaluateOptions struct {
	// ForceRecompute bypasses stored indices for the whole evaluation tree.
	// Fresh results are still written back.
	ForceRecompute bool
	// IgnoreFixedScope evaluates the root in the caller's scope even when its
	// kind is normally anchored to a fixed one. Dependencies keep theirs.
	IgnoreFixedScope bool
}

// EvaluateVariable evaluates v in ts. A nil ts means Forever. Results are cached
// as indices only for variables in the node set.
func (g *Graph) EvaluateVariable(ctx context.Context, v variable.Variable, ts timescope.TimeScope, opts EvaluateOptions) (primitive.Value, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	val, _, err := g.evaluateRoot(ctx, v, ts, opts)
	return val, err
}

// EvaluateByID evaluates a registered variable and also reports the scope
// the evaluation ran in.
func (g *Graph) EvaluateByID(ctx context.Context, id string, ts timescope.TimeScope, opts EvaluateOptions) (primitive.Value, timescope.TimeScope, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.variables[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrVariableNotFound, id)
	}
	return g.evaluateRoot(ctx, v, ts, opts)
}

func (g *Graph) evaluateRoot(ctx context.Context, v variable.Variable, ts timescope.TimeScope, opts EvaluateOptions) (primitive.Value, timescope.TimeScope, error) {
	start := time.Now()
	defer func() {
		observability.GraphEvaluationDuration.WithLabelValues(kindOf(v)).Observe(time.Since(start).Seconds())
	}()

	scope, _ := g.effectiveScope(v, ts, !opts.IgnoreFixedScope)
	val, err := g.evaluate(ctx, v, scope, &evalState{force: opts.ForceRecompute})
	if err != nil {
		return nil, nil, err
	}
	return val, scope, nil
}

// effectiveScope also reports whether a fixed scope replaced ts. A fixed
// scope is derived from the clock.
func (g *Graph) effectiveScope(v variable.Variable, ts timescope.TimeScope, applyFixed bool) (timescope.TimeScope, bool) {
	if applyFixed {
		if fixed, ok := variable.FixedTimeScope(v.Type, g.now(), g.loc); ok {
			return fixed, true
		}
	}
	if ts == nil {
		return timescope.Forever{}, false
	}
	return ts, false
}

// evalState is shared by every evaluator of one root evaluation.
type evalState struct {
	force bool
	stack []frame
}

// frame is one variable on the evaluation stack. clockBound is set when its
// value depends on the current time beyond what its index key records.
type frame struct {
	id         string
	clockBound bool
}

func (s *evalState) push(id string) error {
	for _, f := range s.stack {
		if f.id == id {
			return fmt.Errorf("%w: %s -> %s", ErrCyclicDependency, s.path(), id)
		}
	}
	s.stack = append(s.stack, frame{id: id})
	return nil
}

// pop hands a clock dependency over to the caller, whose value embeds the
// popped one.
func (s *evalState) pop() {
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	if top.clockBound {
		s.markClockBound()
	}
}

func (s *evalState) markClockBound() {
	if len(s.stack) > 0 {
		s.stack[len(s.stack)-1].clockBound = true
	}
}

func (s *evalState) clockBound() bool {
	return len(s.stack) > 0 && s.stack[len(s.stack)-1].clockBound
}

func (s *evalState) path() string {
	ids := make([]string, len(s.stack))
	for i, f := range s.stack {
		ids[i] = f.id
	}
	return strings.Join(ids, " -> ")
}

// evaluate must be called with g.mu held.
func (g *Graph) evaluate(ctx context.Context, v variable.Variable, scope timescope.TimeScope, st *evalState) (primitive.Value, error) {
	if err := st.push(v.ID); err != nil {
		return nil, err
	}
	defer st.pop()

	key := scope.String()
	_, known := g.variables[v.ID]

	if known && !st.force {
		idx, err := g.indices.IndexByVariableAndScope(ctx, v.ID, key)
		if err != nil {
			return nil, fmt.Errorf("failed to read index of variable %s: %w", v.ID, err)
		}
		if idx != nil {
			observability.GraphIndexHits.Inc()
			return idx.Value, nil
		}
	}
	observability.GraphIndexMisses.Inc()

	val, err := variable.Evaluate(ctx, v.Type, &evaluator{graph: g, scope: scope, state: st})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate variable %s: %w", v.ID, err)
	}

	// A clock-bound value would go stale under a key that does not move
	// with the clock, so it is recomputed on every read instead.
	if known && !st.clockBound() {
		idx := variable.Index{ID: uuid.NewString(), VariableID: v.ID, TimeScope: key, Value: val}
		if err := g.indices.SaveIndex(ctx, idx); err != nil {
			return nil, fmt.Errorf("failed to save index of variable %s: %w", v.ID, err)
		}
	}
	return val, nil
}

// evaluator exposes the graph to variable.Evaluate for one scope.
type evaluator struct {
	graph *Graph
	scope timescope.TimeScope
	state *evalState
}

var _ variable.Evaluator = (*evaluator)(nil)

func (e *evaluator) TimeScope() timescope.TimeScope { return e.scope }
func (e *evaluator) Location() *time.Location       { return e.graph.loc }

func (e *evaluator) Now() time.Time {
	e.state.markClockBound()
	return e.graph.now()
}

func (e *evaluator) JournalEntries(ctx context.Context, formID string) ([]record.JournalEntry, error) {
	entries, err := e.graph.records.JournalEntriesInRange(ctx, formID, e.scope.ToRange())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch journal entries of form %s: %w", formID, err)
	}
	return entries, nil
}

func (e *evaluator) TagEntries(ctx context.Context, tagID string) ([]record.TagEntry, error) {
	entries, err := e.graph.records.TagEntriesInRange(ctx, tagID, e.scope.ToRange())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tag entries of tag %s: %w", tagID, err)
	}
	return entries, nil
}

func (e *evaluator) Evaluate(ctx context.Context, variableID string) (primitive.Value, error) {
	v, ok := e.graph.variables[variableID]
	if !ok {
		return primitive.Null{}, nil
	}
	scope, fixed := e.graph.effectiveScope(v, e.scope, true)
	if fixed {
		e.state.markClockBound()
	}
	return e.graph.evaluate(ctx, v, scope, e.state)
}

func (e *evaluator) WithTimeScope(ts timescope.TimeScope) variable.Evaluator {
	return &evaluator{graph: e.graph, scope: ts, state: e.state}
}
