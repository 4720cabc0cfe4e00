package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

// Compile-time check to verify that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is the Store implementation backed by PostgreSQL. The schema
// lives in migrations/.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

// Close is a no-op: the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) JournalEntriesInRange(ctx context.Context, formID string, r timescope.TimeRange) ([]record.JournalEntry, error) {
	args := &queryArgs{dollar: true}
	query := `SELECT id, form_id, snapshot_id, ts, answers FROM journal_entries WHERE form_id = ` + args.add(formID) +
		rangeClause(r, args) + ` ORDER BY seq`

	rows, err := s.db.Query(ctx, query, args.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	// Ensure rows are closed to prevent connection leaks in the pool.
	defer rows.Close()

	entries := []record.JournalEntry{}
	for rows.Next() {
		var (
			e       record.JournalEntry
			ts      int64
			answers []byte
		)
		if err := rows.Scan(&e.ID, &e.FormID, &e.SnapshotID, &ts, &answers); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry row: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		if e.Answers, err = decodeAnswers(answers); err != nil {
			return nil, fmt.Errorf("journal entry %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) TagEntriesInRange(ctx context.Context, tagID string, r timescope.TimeRange) ([]record.TagEntry, error) {
	args := &queryArgs{dollar: true}
	query := `SELECT id, tag_id, ts FROM tag_entries WHERE tag_id = ` + args.add(tagID) +
		rangeClause(r, args) + ` ORDER BY seq`

	rows, err := s.db.Query(ctx, query, args.values...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag entries: %w", err)
	}
	defer rows.Close()

	entries := []record.TagEntry{}
	for rows.Next() {
		var (
			e  record.TagEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.TagID, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan tag entry row: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return entries, nil
}

// PutJournalEntry upserts on id. xmax is zero only for freshly inserted rows,
// which tells creates and updates apart in a single round trip.
func (s *PostgresStore) PutJournalEntry(ctx context.Context, e record.JournalEntry) (record.Action, error) {
	answers, err := encodeAnswers(e.Answers)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO journal_entries (id, form_id, snapshot_id, ts, answers)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET form_id = EXCLUDED.form_id,
		    snapshot_id = EXCLUDED.snapshot_id,
		    ts = EXCLUDED.ts,
		    answers = EXCLUDED.answers
		RETURNING (xmax = 0)
	`
	var inserted bool
	if err := s.db.QueryRow(ctx, query, e.ID, e.FormID, e.SnapshotID, e.Timestamp.UnixMilli(), string(answers)).Scan(&inserted); err != nil {
		return 0, fmt.Errorf("failed to upsert journal entry: %w", err)
	}
	if inserted {
		return record.Created, nil
	}
	return record.Updated, nil
}

func (s *PostgresStore) RemoveJournalEntry(ctx context.Context, id string) (*record.JournalEntry, error) {
	query := `DELETE FROM journal_entries WHERE id = $1 RETURNING id, form_id, snapshot_id, ts, answers`

	var (
		e       record.JournalEntry
		ts      int64
		answers []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(&e.ID, &e.FormID, &e.SnapshotID, &ts, &answers)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete journal entry: %w", err)
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	if e.Answers, err = decodeAnswers(answers); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PostgresStore) PutTagEntry(ctx context.Context, e record.TagEntry) (record.Action, error) {
	query := `
		INSERT INTO tag_entries (id, tag_id, ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET tag_id = EXCLUDED.tag_id, ts = EXCLUDED.ts
		RETURNING (xmax = 0)
	`
	var inserted bool
	if err := s.db.QueryRow(ctx, query, e.ID, e.TagID, e.Timestamp.UnixMilli()).Scan(&inserted); err != nil {
		return 0, fmt.Errorf("failed to upsert tag entry: %w", err)
	}
	if inserted {
		return record.Created, nil
	}
	return record.Updated, nil
}

func (s *PostgresStore) RemoveTagEntry(ctx context.Context, id string) (*record.TagEntry, error) {
	var (
		e  record.TagEntry
		ts int64
	)
	err := s.db.QueryRow(ctx, `DELETE FROM tag_entries WHERE id = $1 RETURNING id, tag_id, ts`, id).Scan(&e.ID, &e.TagID, &ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete tag entry: %w", err)
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	return &e, nil
}

func (s *PostgresStore) IndicesByVariableID(ctx context.Context, variableID string) ([]variable.Index, error) {
	query := `
		SELECT id, variable_id, time_scope, value
		FROM variable_indices
		WHERE variable_id = $1
		ORDER BY time_scope
	`
	rows, err := s.db.Query(ctx, query, variableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list indices: %w", err)
	}
	defer rows.Close()

	indices := []variable.Index{}
	for rows.Next() {
		var (
			idx   variable.Index
			value []byte
		)
		if err := rows.Scan(&idx.ID, &idx.VariableID, &idx.TimeScope, &value); err != nil {
			return nil, fmt.Errorf("failed to scan index row: %w", err)
		}
		if idx.Value, err = decodeIndexValue(value); err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return indices, nil
}

func (s *PostgresStore) IndexByVariableAndScope(ctx context.Context, variableID, scope string) (*variable.Index, error) {
	query := `SELECT id, variable_id, time_scope, value FROM variable_indices WHERE variable_id = $1 AND time_scope = $2`

	var (
		idx   variable.Index
		value []byte
	)
	err := s.db.QueryRow(ctx, query, variableID, scope).Scan(&idx.ID, &idx.VariableID, &idx.TimeScope, &value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index: %w", err)
	}
	if idx.Value, err = decodeIndexValue(value); err != nil {
		return nil, err
	}
	return &idx, nil
}

func (s *PostgresStore) SaveIndex(ctx context.Context, idx variable.Index) error {
	value, err := primitive.Marshal(idx.Value)
	if err != nil {
		return fmt.Errorf("failed to encode index value: %w", err)
	}

	query := `
		INSERT INTO variable_indices (id, variable_id, time_scope, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (variable_id, time_scope) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := s.db.Exec(ctx, query, idx.ID, idx.VariableID, idx.TimeScope, string(value)); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteIndex(ctx context.Context, idx variable.Index) error {
	query := `DELETE FROM variable_indices WHERE variable_id = $1 AND time_scope = $2`
	if _, err := s.db.Exec(ctx, query, idx.VariableID, idx.TimeScope); err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteIndicesByVariableID(ctx context.Context, variableID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM variable_indices WHERE variable_id = $1`, variableID); err != nil {
		return fmt.Errorf("failed to delete indices of %s: %w", variableID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteAllIndices(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM variable_indices`); err != nil {
		return fmt.Errorf("failed to delete indices: %w", err)
	}
	return nil
}

func (s *PostgresStore) AllVariables(ctx context.Context) ([]variable.Variable, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, owner_id, type FROM variables ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list variables: %w", err)
	}
	defer rows.Close()

	vars := []variable.Variable{}
	for rows.Next() {
		var (
			id, name, ownerID string
			typ               []byte
		)
		if err := rows.Scan(&id, &name, &ownerID, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan variable row: %w", err)
		}
		v, err := decodeVariable(id, name, ownerID, typ)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return vars, nil
}

func (s *PostgresStore) VariableByID(ctx context.Context, id string) (*variable.Variable, error) {
	var (
		name, ownerID string
		typ           []byte
	)
	err := s.db.QueryRow(ctx, `SELECT name, owner_id, type FROM variables WHERE id = $1`, id).Scan(&name, &ownerID, &typ)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get variable: %w", err)
	}
	v, err := decodeVariable(id, name, ownerID, typ)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) SaveVariable(ctx context.Context, v variable.Variable) error {
	typ, err := variable.MarshalTypeDef(v.Type)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO variables (id, name, owner_id, type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, owner_id = EXCLUDED.owner_id, type = EXCLUDED.type, updated_at = NOW()
	`
	if _, err := s.db.Exec(ctx, query, v.ID, v.Name, v.OwnerID, string(typ)); err != nil {
		return fmt.Errorf("failed to save variable: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteVariable(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM variables WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete variable: %w", err)
	}
	return nil
}
