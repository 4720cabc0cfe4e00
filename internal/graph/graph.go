// Package graph owns the variable dependency graph: node set, reverse
// dependency edges and the Index cache that memoizes evaluations per
// (variable, time scope).
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rafaeljc/tally/internal/store"
	"github.com/rafaeljc/tally/internal/validation"
	"github.com/rafaeljc/tally/internal/variable"
)

var (
	// ErrCyclicDependency is returned when a variable would (or does) depend
	// on itself through its dependency chain.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrVariableNotFound is returned by lookups of ids outside the node set.
	ErrVariableNotFound = errors.New("variable not found")
)

// Options configures time handling for a Graph.
type Options struct {
	// Location is the zone calendar periods are computed in. Defaults to UTC.
	Location *time.Location
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Graph is safe for concurrent use. Public operations are serialized by a
// single mutex, so every index read-modify-write completes before the next
// operation observes the index store.
type Graph struct {
	mu sync.Mutex

	logger  *slog.Logger
	records store.RecordRepository
	indices store.IndexRepository
	now     func() time.Time
	loc     *time.Location

	variables  map[string]variable.Variable
	dependents map[string]map[string]struct{}
}

// New creates an empty Graph. Call Load to hydrate it from persistence.
func New(logger *slog.Logger, records store.RecordRepository, indices store.IndexRepository, opts Options) *Graph {
	validation.AssertNotNil(logger, "logger")
	validation.AssertPresent(records, "record repository")
	validation.AssertPresent(indices, "index repository")

	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Graph{
		logger:     logger,
		records:    records,
		indices:    indices,
		now:        opts.Clock,
		loc:        opts.Location,
		variables:  make(map[string]variable.Variable),
		dependents: make(map[string]map[string]struct{}),
	}
}

// Location returns the zone the graph computes calendar periods in.
func (g *Graph) Location() *time.Location { return g.loc }

// Load replaces the node set with every variable in repo.
func (g *Graph) Load(ctx context.Context, repo store.VariableRepository) error {
	vars, err := repo.AllVariables(ctx)
	if err != nil {
		return fmt.Errorf("failed to load variables: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	nodes := make(map[string]variable.Variable, len(vars))
	for _, v := range vars {
		nodes[v.ID] = v
	}
	for _, v := range vars {
		if cycle := findCycle(nodes, v.ID); cycle != nil {
			return fmt.Errorf("%w: %v", ErrCyclicDependency, cycle)
		}
	}

	g.variables = nodes
	g.rebuildDependents()

	g.logger.Info("variable graph loaded", slog.Int("variables", len(nodes)))
	return nil
}

// OnVariableCreated adds v to the node set.
func (g *Graph) OnVariableCreated(ctx context.Context, v variable.Variable) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.put(v); err != nil {
		return err
	}

	g.logger.Debug("variable created", slog.String("variable_id", v.ID), slog.String("kind", kindOf(v)))
	return nil
}

// OnVariableUpdated replaces v in the node set and drops the indices of v and
// of every variable that transitively depends on it.
func (g *Graph) OnVariableUpdated(ctx context.Context, v variable.Variable) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.put(v); err != nil {
		return err
	}

	stale := append([]string{v.ID}, g.transitiveDependents(v.ID)...)
	if err := g.dropIndices(ctx, stale); err != nil {
		return err
	}

	g.logger.Debug("variable updated",
		slog.String("variable_id", v.ID),
		slog.Int("invalidated", len(stale)),
	)
	return nil
}

// OnVariableDeleted removes id from the node set, discards its indices and
// invalidates its transitive dependents. Deleting an unknown id only drops
// whatever indices are still stored for it.
func (g *Graph) OnVariableDeleted(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	stale := append([]string{id}, g.transitiveDependents(id)...)

	delete(g.variables, id)
	g.rebuildDependents()

	if err := g.dropIndices(ctx, stale); err != nil {
		return err
	}

	g.logger.Debug("variable deleted",
		slog.String("variable_id", id),
		slog.Int("invalidated", len(stale)),
	)
	return nil
}

// DeleteIndices discards every stored index. Used after the record store as
// a whole was replaced.
func (g *Graph) DeleteIndices(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.indices.DeleteAllIndices(ctx); err != nil {
		return fmt.Errorf("failed to delete indices: %w", err)
	}

	g.logger.Info("all variable indices deleted")
	return nil
}

// Variable returns the node registered under id.
func (g *Graph) Variable(id string) (variable.Variable, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	v, ok := g.variables[id]
	return v, ok
}

// Variables returns the node set ordered by id.
func (g *Graph) Variables() []variable.Variable {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]variable.Variable, 0, len(g.variables))
	for _, id := range g.sortedIDs() {
		out = append(out, g.variables[id])
	}
	return out
}

// Dependents returns the ids that declare id as a direct dependency.
func (g *Graph) Dependents(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return sortedKeys(g.dependents[id])
}

// TransitiveDependents returns every id that reaches one of ids through the
// reverse dependency map, excluding ids themselves.
func (g *Graph) TransitiveDependents(ids ...string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.transitiveDependents(ids...)
}

// put inserts or replaces v, rejecting the change when it closes a cycle.
// Must be called with g.mu held.
func (g *Graph) put(v variable.Variable) error {
	prev, existed := g.variables[v.ID]
	g.variables[v.ID] = v

	if cycle := findCycle(g.variables, v.ID); cycle != nil {
		if existed {
			g.variables[v.ID] = prev
		} else {
			delete(g.variables, v.ID)
		}
		return fmt.Errorf("%w: %v", ErrCyclicDependency, cycle)
	}

	g.rebuildDependents()
	return nil
}

// rebuildDependents derives the reverse map from declared dependencies.
func (g *Graph) rebuildDependents() {
	dependents := make(map[string]map[string]struct{}, len(g.variables))
	for id, v := range g.variables {
		for _, dep := range v.Dependencies() {
			if dependents[dep] == nil {
				dependents[dep] = make(map[string]struct{})
			}
			dependents[dep][id] = struct{}{}
		}
	}
	g.dependents = dependents
}

func (g *Graph) transitiveDependents(ids ...string) []string {
	seen := make(map[string]struct{})
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	var out []string
	queue := slices.Clone(ids)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for dep := range g.dependents[id] {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
			queue = append(queue, dep)
		}
	}

	slices.Sort(out)
	return out
}

func (g *Graph) dropIndices(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := g.indices.DeleteIndicesByVariableID(ctx, id); err != nil {
			return fmt.Errorf("failed to drop indices of variable %s: %w", id, err)
		}
	}
	return nil
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.variables))
	for id := range g.variables {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// findCycle returns the dependency path from start back to itself, if any.
func findCycle(nodes map[string]variable.Variable, start string) []string {
	visited := make(map[string]bool)
	var path []string

	var walk func(id string) bool
	walk = func(id string) bool {
		v, ok := nodes[id]
		if !ok {
			return false
		}
		for _, dep := range v.Dependencies() {
			if dep == start {
				path = append(path, dep, id)
				return true
			}
			if visited[dep] {
				continue
			}
			visited[dep] = true
			if walk(dep) {
				path = append(path, id)
				return true
			}
		}
		return false
	}

	if !walk(start) {
		return nil
	}
	slices.Reverse(path)
	return path
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func kindOf(v variable.Variable) string {
	if v.Type == nil {
		return "unknown"
	}
	return string(v.Type.Kind())
}
