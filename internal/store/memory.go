package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. It is safe for concurrent
// use and is the default backend for tests.
type MemoryStore struct {
	mu sync.RWMutex

	journals  []record.JournalEntry
	tags      []record.TagEntry
	indices   map[string]map[string]variable.Index // variable id -> scope -> index
	variables []variable.Variable
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{indices: make(map[string]map[string]variable.Index)}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) JournalEntriesInRange(_ context.Context, formID string, r timescope.TimeRange) ([]record.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []record.JournalEntry{}
	for _, e := range s.journals {
		if e.FormID == formID && r.Contains(e.Timestamp) {
			out = append(out, cloneJournal(e))
		}
	}
	return out, nil
}

func (s *MemoryStore) TagEntriesInRange(_ context.Context, tagID string, r timescope.TimeRange) ([]record.TagEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []record.TagEntry{}
	for _, e := range s.tags {
		if e.TagID == tagID && r.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) PutJournalEntry(_ context.Context, e record.JournalEntry) (record.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e = cloneJournal(e)
	if i := slices.IndexFunc(s.journals, func(x record.JournalEntry) bool { return x.ID == e.ID }); i >= 0 {
		s.journals[i] = e
		return record.Updated, nil
	}
	s.journals = append(s.journals, e)
	return record.Created, nil
}

func (s *MemoryStore) RemoveJournalEntry(_ context.Context, id string) (*record.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.journals, func(x record.JournalEntry) bool { return x.ID == id })
	if i < 0 {
		return nil, nil
	}
	removed := s.journals[i]
	s.journals = slices.Delete(s.journals, i, i+1)
	return &removed, nil
}

func (s *MemoryStore) PutTagEntry(_ context.Context, e record.TagEntry) (record.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.IndexFunc(s.tags, func(x record.TagEntry) bool { return x.ID == e.ID }); i >= 0 {
		s.tags[i] = e
		return record.Updated, nil
	}
	s.tags = append(s.tags, e)
	return record.Created, nil
}

func (s *MemoryStore) RemoveTagEntry(_ context.Context, id string) (*record.TagEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.tags, func(x record.TagEntry) bool { return x.ID == id })
	if i < 0 {
		return nil, nil
	}
	removed := s.tags[i]
	s.tags = slices.Delete(s.tags, i, i+1)
	return &removed, nil
}

func (s *MemoryStore) IndicesByVariableID(_ context.Context, variableID string) ([]variable.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byScope := s.indices[variableID]
	out := make([]variable.Index, 0, len(byScope))
	for _, idx := range byScope {
		out = append(out, cloneIndex(idx))
	}
	slices.SortFunc(out, func(a, b variable.Index) int { return strings.Compare(a.TimeScope, b.TimeScope) })
	return out, nil
}

func (s *MemoryStore) IndexByVariableAndScope(_ context.Context, variableID, scope string) (*variable.Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indices[variableID][scope]
	if !ok {
		return nil, nil
	}
	idx = cloneIndex(idx)
	return &idx, nil
}

func (s *MemoryStore) SaveIndex(_ context.Context, idx variable.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byScope, ok := s.indices[idx.VariableID]
	if !ok {
		byScope = make(map[string]variable.Index)
		s.indices[idx.VariableID] = byScope
	}
	if existing, ok := byScope[idx.TimeScope]; ok {
		idx.ID = existing.ID
	}
	byScope[idx.TimeScope] = cloneIndex(idx)
	return nil
}

func (s *MemoryStore) DeleteIndex(_ context.Context, idx variable.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byScope, ok := s.indices[idx.VariableID]; ok {
		delete(byScope, idx.TimeScope)
		if len(byScope) == 0 {
			delete(s.indices, idx.VariableID)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteIndicesByVariableID(_ context.Context, variableID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.indices, variableID)
	return nil
}

func (s *MemoryStore) DeleteAllIndices(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.indices = make(map[string]map[string]variable.Index)
	return nil
}

func (s *MemoryStore) AllVariables(_ context.Context) ([]variable.Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.variables), nil
}

func (s *MemoryStore) VariableByID(_ context.Context, id string) (*variable.Variable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.variables {
		if v.ID == id {
			return &v, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveVariable(_ context.Context, v variable.Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.IndexFunc(s.variables, func(x variable.Variable) bool { return x.ID == v.ID }); i >= 0 {
		s.variables[i] = v
		return nil
	}
	s.variables = append(s.variables, v)
	return nil
}

func (s *MemoryStore) DeleteVariable(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.variables = slices.DeleteFunc(s.variables, func(x variable.Variable) bool { return x.ID == id })
	return nil
}

func cloneJournal(e record.JournalEntry) record.JournalEntry {
	answers := make(map[string]primitive.Value, len(e.Answers))
	for k, v := range e.Answers {
		answers[k] = primitive.Clone(v)
	}
	e.Answers = answers
	return e
}

func cloneIndex(idx variable.Index) variable.Index {
	idx.Value = primitive.Clone(idx.Value)
	return idx
}
