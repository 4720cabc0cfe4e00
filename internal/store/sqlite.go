package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore is the embedded Store used by single process deployments.
type SQLiteStore struct {
	db   *sql.DB
	Path string
}

// OpenSQLite opens (or creates) the database at path, configures pragmas and
// runs migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return initSQLite(db, path)
}

// OpenSQLiteMemory opens a private in-memory database. Every connection to
// ":memory:" is a separate database, so the pool is pinned to one.
func OpenSQLiteMemory() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	db.SetMaxOpenConns(1)
	return initSQLite(db, ":memory:")
}

func initSQLite(db *sql.DB, path string) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, Path: path}
	if err := s.configurePragmas(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// DB exposes the underlying handle for health checks.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) JournalEntriesInRange(ctx context.Context, formID string, r timescope.TimeRange) ([]record.JournalEntry, error) {
	args := &queryArgs{}
	query := `SELECT id, form_id, snapshot_id, ts, answers FROM journal_entries WHERE form_id = ` + args.add(formID) +
		rangeClause(r, args) + ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args.values...)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	entries := []record.JournalEntry{}
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJournal(row rowScanner) (record.JournalEntry, error) {
	var (
		e       record.JournalEntry
		ts      int64
		answers string
	)
	if err := row.Scan(&e.ID, &e.FormID, &e.SnapshotID, &ts, &answers); err != nil {
		return e, err
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	decoded, err := decodeAnswers([]byte(answers))
	if err != nil {
		return e, fmt.Errorf("journal entry %s: %w", e.ID, err)
	}
	e.Answers = decoded
	return e, nil
}

func (s *SQLiteStore) TagEntriesInRange(ctx context.Context, tagID string, r timescope.TimeRange) ([]record.TagEntry, error) {
	args := &queryArgs{}
	query := `SELECT id, tag_id, ts FROM tag_entries WHERE tag_id = ` + args.add(tagID) +
		rangeClause(r, args) + ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args.values...)
	if err != nil {
		return nil, fmt.Errorf("query tag entries: %w", err)
	}
	defer rows.Close()

	entries := []record.TagEntry{}
	for rows.Next() {
		var (
			e  record.TagEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.TagID, &ts); err != nil {
			return nil, fmt.Errorf("scan tag entry: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) PutJournalEntry(ctx context.Context, e record.JournalEntry) (record.Action, error) {
	answers, err := encodeAnswers(e.Answers)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE journal_entries SET form_id = ?, snapshot_id = ?, ts = ?, answers = ? WHERE id = ?`,
		e.FormID, e.SnapshotID, e.Timestamp.UnixMilli(), string(answers), e.ID)
	if err != nil {
		return 0, fmt.Errorf("update journal entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return record.Updated, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO journal_entries (id, form_id, snapshot_id, ts, answers) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.FormID, e.SnapshotID, e.Timestamp.UnixMilli(), string(answers)); err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}
	return record.Created, nil
}

func (s *SQLiteStore) RemoveJournalEntry(ctx context.Context, id string) (*record.JournalEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM journal_entries WHERE id = ? RETURNING id, form_id, snapshot_id, ts, answers`, id)
	e, err := scanJournal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete journal entry: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) PutTagEntry(ctx context.Context, e record.TagEntry) (record.Action, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE tag_entries SET tag_id = ?, ts = ? WHERE id = ?`,
		e.TagID, e.Timestamp.UnixMilli(), e.ID)
	if err != nil {
		return 0, fmt.Errorf("update tag entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return record.Updated, nil
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO tag_entries (id, tag_id, ts) VALUES (?, ?, ?)`,
		e.ID, e.TagID, e.Timestamp.UnixMilli()); err != nil {
		return 0, fmt.Errorf("insert tag entry: %w", err)
	}
	return record.Created, nil
}

func (s *SQLiteStore) RemoveTagEntry(ctx context.Context, id string) (*record.TagEntry, error) {
	var (
		e  record.TagEntry
		ts int64
	)
	err := s.db.QueryRowContext(ctx, `DELETE FROM tag_entries WHERE id = ? RETURNING id, tag_id, ts`, id).
		Scan(&e.ID, &e.TagID, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete tag entry: %w", err)
	}
	e.Timestamp = time.UnixMilli(ts).UTC()
	return &e, nil
}

func (s *SQLiteStore) IndicesByVariableID(ctx context.Context, variableID string) ([]variable.Index, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, variable_id, time_scope, value FROM variable_indices WHERE variable_id = ? ORDER BY time_scope`, variableID)
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	defer rows.Close()

	indices := []variable.Index{}
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, err
		}
		indices = append(indices, idx)
	}
	return indices, rows.Err()
}

func scanIndex(row rowScanner) (variable.Index, error) {
	var (
		idx   variable.Index
		value string
	)
	if err := row.Scan(&idx.ID, &idx.VariableID, &idx.TimeScope, &value); err != nil {
		return idx, err
	}
	v, err := decodeIndexValue([]byte(value))
	if err != nil {
		return idx, err
	}
	idx.Value = v
	return idx, nil
}

func (s *SQLiteStore) IndexByVariableAndScope(ctx context.Context, variableID, scope string) (*variable.Index, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, variable_id, time_scope, value FROM variable_indices WHERE variable_id = ? AND time_scope = ?`,
		variableID, scope)
	idx, err := scanIndex(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get index: %w", err)
	}
	return &idx, nil
}

func (s *SQLiteStore) SaveIndex(ctx context.Context, idx variable.Index) error {
	value, err := primitive.Marshal(idx.Value)
	if err != nil {
		return fmt.Errorf("encode index value: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO variable_indices (id, variable_id, time_scope, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (variable_id, time_scope) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`,
		idx.ID, idx.VariableID, idx.TimeScope, string(value), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteIndex(ctx context.Context, idx variable.Index) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM variable_indices WHERE variable_id = ? AND time_scope = ?`, idx.VariableID, idx.TimeScope); err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteIndicesByVariableID(ctx context.Context, variableID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM variable_indices WHERE variable_id = ?`, variableID); err != nil {
		return fmt.Errorf("delete indices of %s: %w", variableID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAllIndices(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM variable_indices`); err != nil {
		return fmt.Errorf("delete indices: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AllVariables(ctx context.Context) ([]variable.Variable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, owner_id, type FROM variables ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list variables: %w", err)
	}
	defer rows.Close()

	vars := []variable.Variable{}
	for rows.Next() {
		var id, name, ownerID, typ string
		if err := rows.Scan(&id, &name, &ownerID, &typ); err != nil {
			return nil, fmt.Errorf("scan variable: %w", err)
		}
		v, err := decodeVariable(id, name, ownerID, []byte(typ))
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}

func (s *SQLiteStore) VariableByID(ctx context.Context, id string) (*variable.Variable, error) {
	var name, ownerID, typ string
	err := s.db.QueryRowContext(ctx, `SELECT name, owner_id, type FROM variables WHERE id = ?`, id).Scan(&name, &ownerID, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get variable: %w", err)
	}
	v, err := decodeVariable(id, name, ownerID, []byte(typ))
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *SQLiteStore) SaveVariable(ctx context.Context, v variable.Variable) error {
	typ, err := variable.MarshalTypeDef(v.Type)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO variables (id, name, owner_id, type) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET name = excluded.name, owner_id = excluded.owner_id, type = excluded.type`,
		v.ID, v.Name, v.OwnerID, string(typ))
	if err != nil {
		return fmt.Errorf("save variable: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteVariable(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM variables WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete variable: %w", err)
	}
	return nil
}
