// Package store provides the persistence collaborators of the variable
// engine: the record store, the index store and the variable store.
//
// Three implementations exist: MemoryStore for tests and ephemeral runs,
// PostgresStore backed by pgx, and SQLiteStore for the embedded single
// process deployment. All of them return records in insertion order, which
// is the fetch order derived sets preserve.
package store

import (
	"context"

	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

// RecordRepository reads raw records for evaluation.
type RecordRepository interface {
	// JournalEntriesInRange returns the entries of a form whose timestamp
	// falls in r, in insertion order.
	JournalEntriesInRange(ctx context.Context, formID string, r timescope.TimeRange) ([]record.JournalEntry, error)

	// TagEntriesInRange returns the events of a tag whose timestamp falls in
	// r, in insertion order.
	TagEntriesInRange(ctx context.Context, tagID string, r timescope.TimeRange) ([]record.TagEntry, error)
}

// RecordWriter mutates raw records. It is used by the control plane, which
// owns record commits and forwards the resulting action to the graph.
type RecordWriter interface {
	// PutJournalEntry inserts or replaces an entry and reports which one
	// happened. Replacing keeps the entry's insertion position.
	PutJournalEntry(ctx context.Context, e record.JournalEntry) (record.Action, error)

	// RemoveJournalEntry deletes an entry and returns it, or nil when absent.
	RemoveJournalEntry(ctx context.Context, id string) (*record.JournalEntry, error)

	PutTagEntry(ctx context.Context, e record.TagEntry) (record.Action, error)
	RemoveTagEntry(ctx context.Context, id string) (*record.TagEntry, error)
}

// IndexRepository persists memoized evaluation results. At most one index
// exists per (variable id, serialized time scope).
type IndexRepository interface {
	IndicesByVariableID(ctx context.Context, variableID string) ([]variable.Index, error)

	// IndexByVariableAndScope returns nil, nil when no index exists.
	IndexByVariableAndScope(ctx context.Context, variableID, scope string) (*variable.Index, error)

	// SaveIndex upserts on (variable id, time scope). An existing row keeps
	// its id.
	SaveIndex(ctx context.Context, idx variable.Index) error

	// DeleteIndex removes the index stored for idx's variable and scope.
	DeleteIndex(ctx context.Context, idx variable.Index) error

	DeleteIndicesByVariableID(ctx context.Context, variableID string) error
	DeleteAllIndices(ctx context.Context) error
}

// VariableRepository persists variable definitions. The graph keeps its own
// authoritative in-memory copy; this is only durable storage.
type VariableRepository interface {
	AllVariables(ctx context.Context) ([]variable.Variable, error)

	// VariableByID returns nil, nil when the variable does not exist.
	VariableByID(ctx context.Context, id string) (*variable.Variable, error)

	// SaveVariable inserts or replaces a variable.
	SaveVariable(ctx context.Context, v variable.Variable) error
	DeleteVariable(ctx context.Context, id string) error
}

// Store bundles every repository behind a single backend.
type Store interface {
	RecordRepository
	RecordWriter
	IndexRepository
	VariableRepository

	Close() error
}
