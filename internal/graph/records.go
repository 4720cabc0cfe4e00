package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/tally/internal/observability"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/variable"
)

// OnRecordAction patches the indices of incremental variables affected by a
// committed record mutation, then invalidates every transitive dependent of
// those variables. Callers must deliver mutations in commit order.
func (g *Graph) OnRecordAction(ctx context.Context, rec record.Record, action record.Action) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var affected []string
	patched := 0

	for _, id := range g.sortedIDs() {
		v := g.variables[id]
		if !variable.Incremental(v.Type) || !variable.Consumes(v.Type, rec) {
			continue
		}

		existing, err := g.indices.IndicesByVariableID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to read indices of variable %s: %w", id, err)
		}

		actions, _ := variable.HandleRecordAction(v.Type, rec, action, existing, g.loc)
		for _, act := range actions {
			if err := g.applyIndexAction(ctx, act); err != nil {
				return err
			}
			observability.GraphIncrementalActions.WithLabelValues(act.Kind.String()).Inc()
		}
		patched += len(actions)

		if len(actions) > 0 || variable.MatchesRecord(v.Type, rec) {
			affected = append(affected, id)
		}
	}

	stale := g.transitiveDependents(affected...)
	if err := g.dropIndices(ctx, stale); err != nil {
		return err
	}
	observability.GraphInvalidations.Add(float64(len(stale)))

	g.logger.Debug("record action applied",
		slog.String("record_id", rec.RecordID()),
		slog.String("action", action.String()),
		slog.Int("patched_indices", patched),
		slog.Int("invalidated_variables", len(stale)),
	)
	return nil
}

func (g *Graph) applyIndexAction(ctx context.Context, act variable.IndexAction) error {
	switch act.Kind {
	case variable.IndexUpdate:
		if err := g.indices.SaveIndex(ctx, act.Index); err != nil {
			return fmt.Errorf("failed to save index of variable %s: %w", act.Index.VariableID, err)
		}
	case variable.IndexDelete:
		if err := g.indices.DeleteIndex(ctx, act.Index); err != nil {
			return fmt.Errorf("failed to delete index of variable %s: %w", act.Index.VariableID, err)
		}
	}
	return nil
}
