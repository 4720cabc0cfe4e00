package variable

import (
	"slices"
	"time"

	"github.com/rafaeljc/tally/internal/filter"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/timescope"
)

// Index is a memoized evaluation result for one (variable, time scope) pair.
// TimeScope holds the serialized scope key.
type Index struct {
	ID         string
	VariableID string
	TimeScope  string
	Value      primitive.Value
}

// IndexActionKind is the kind of patch an incremental handler emits.
type IndexActionKind int

const (
	IndexUpdate IndexActionKind = iota + 1
	IndexDelete
)

// String returns a lowercase label for metrics and logs.
func (k IndexActionKind) String() string {
	switch k {
	case IndexUpdate:
		return "update"
	case IndexDelete:
		return "delete"
	}
	return "unknown"
}

// IndexAction is a single patch to the index store.
type IndexAction struct {
	Kind  IndexActionKind
	Index Index
}

// MatchesRecord reports whether rec belongs to the source of def.
func MatchesRecord(def TypeDef, rec record.Record) bool {
	switch t := def.(type) {
	case List:
		return journalOf(rec, t.FormID)
	case Latest:
		return journalOf(rec, t.FormID)
	case Group:
		return journalOf(rec, t.FormID)
	case Tag:
		tag, ok := rec.(record.TagEntry)
		return ok && tag.TagID == t.TagID
	}
	return false
}

// Consumes reports whether def could hold a projection of rec, either because
// rec matches its source or because rec is of the record type def reads and an
// update may have moved it away from def's source.
func Consumes(def TypeDef, rec record.Record) bool {
	switch def.(type) {
	case List, Latest, Group:
		_, ok := rec.(record.JournalEntry)
		return ok
	case Tag:
		_, ok := rec.(record.TagEntry)
		return ok
	}
	return false
}

func journalOf(rec record.Record, formID string) bool {
	e, ok := rec.(record.JournalEntry)
	return ok && e.FormID == formID
}

// HandleRecordAction translates a record mutation into patches of the
// existing indices of a variable. The second result is false when def has no
// incremental handler.
//
// Only indices whose scope contains the record timestamp can gain the
// record; a record that moved out of an index's scope is removed from it.
// Indices with an unparsable scope key are left untouched.
func HandleRecordAction(def TypeDef, rec record.Record, action record.Action, existing []Index, loc *time.Location) ([]IndexAction, bool) {
	if !Incremental(def) {
		return nil, false
	}

	var actions []IndexAction
	for _, idx := range existing {
		scope, err := timescope.ParseInLocation(idx.TimeScope, loc)
		if err != nil {
			continue
		}
		in := action != record.Deleted &&
			MatchesRecord(def, rec) &&
			scope.ToRange().Contains(rec.RecordTime())

		var (
			act     IndexAction
			changed bool
		)
		switch t := def.(type) {
		case List:
			act, changed = patchList(idx, rec, in && passes(rec, t.Filters), func() primitive.Value {
				return projectJournal(rec.(record.JournalEntry), t.Fields)
			})
		case Tag:
			act, changed = patchList(idx, rec, in, func() primitive.Value {
				return projectTag(rec.(record.TagEntry))
			})
		case Latest:
			act, changed = patchLatest(idx, rec, action, in && passes(rec, t.Filters), t.Fields)
		case Group:
			act, changed = patchGroup(idx, rec, in && passes(rec, t.Filters), t)
		}
		if changed {
			actions = append(actions, act)
		}
	}
	return actions, true
}

func passes(rec record.Record, filters []filter.Filter) bool {
	e, ok := rec.(record.JournalEntry)
	return ok && filter.AllMet(e.Answers, filters, true)
}

func positionOf(list primitive.List, id string) int {
	return slices.IndexFunc(list, func(v primitive.Value) bool {
		return refID(v) == id
	})
}

func refID(v primitive.Value) string {
	switch t := v.(type) {
	case primitive.JournalEntryRef:
		return t.ID
	case primitive.TagEntryRef:
		return t.ID
	}
	return ""
}

// patchList appends, replaces in place or removes the projection of rec.
func patchList(idx Index, rec record.Record, keep bool, project func() primitive.Value) (IndexAction, bool) {
	list, ok := primitive.Unwrap(idx.Value).(primitive.List)
	if !ok {
		if !primitive.IsNull(idx.Value) {
			return IndexAction{}, false
		}
		list = primitive.List{}
	}
	list = primitive.Clone(list).(primitive.List)

	pos := positionOf(list, rec.RecordID())
	switch {
	case !keep && pos < 0:
		return IndexAction{}, false
	case !keep:
		list = slices.Delete(list, pos, pos+1)
	case pos < 0:
		list = append(list, project())
	default:
		list[pos] = project()
	}

	idx.Value = list
	return IndexAction{Kind: IndexUpdate, Index: idx}, true
}

// patchLatest keeps the first of equally recent records in fetch order. A new
// record sorts after the cached one, but an updated record may have been
// stored before it, so an update into a tie drops the index.
func patchLatest(idx Index, rec record.Record, action record.Action, keep bool, fields []Field) (IndexAction, bool) {
	current, hasCurrent := primitive.Unwrap(idx.Value).(primitive.JournalEntryRef)

	if hasCurrent && current.ID == rec.RecordID() {
		if !keep || rec.RecordTime().Before(current.Timestamp) {
			return IndexAction{Kind: IndexDelete, Index: idx}, true
		}
		idx.Value = projectJournal(rec.(record.JournalEntry), fields)
		return IndexAction{Kind: IndexUpdate, Index: idx}, true
	}

	if !keep {
		return IndexAction{}, false
	}
	if hasCurrent && rec.RecordTime().Equal(current.Timestamp) && action == record.Updated {
		return IndexAction{Kind: IndexDelete, Index: idx}, true
	}
	if hasCurrent && !rec.RecordTime().After(current.Timestamp) {
		return IndexAction{}, false
	}
	idx.Value = projectJournal(rec.(record.JournalEntry), fields)
	return IndexAction{Kind: IndexUpdate, Index: idx}, true
}

// patchGroup moves the projection of rec between groups. A record whose
// group-by answer is missing is dropped from whatever group held it.
func patchGroup(idx Index, rec record.Record, keep bool, def Group) (IndexAction, bool) {
	groups, ok := primitive.Unwrap(idx.Value).(primitive.Map)
	if !ok {
		if !primitive.IsNull(idx.Value) {
			return IndexAction{}, false
		}
		groups = primitive.Map{}
	}
	groups = primitive.Clone(groups).(primitive.Map)

	oldKey, oldPos := "", -1
	for key, group := range groups {
		list, ok := group.(primitive.List)
		if !ok {
			continue
		}
		if pos := positionOf(list, rec.RecordID()); pos >= 0 {
			oldKey, oldPos = key, pos
			break
		}
	}

	newKey, hasNew := "", false
	if keep {
		newKey, hasNew = groupKey(rec.(record.JournalEntry).Answers, def.GroupBy)
	}

	if oldPos < 0 && !hasNew {
		return IndexAction{}, false
	}

	if hasNew && oldPos >= 0 && oldKey == newKey {
		list := groups[oldKey].(primitive.List)
		list[oldPos] = projectJournal(rec.(record.JournalEntry), def.Fields)
	} else {
		if oldPos >= 0 {
			list := slices.Delete(groups[oldKey].(primitive.List), oldPos, oldPos+1)
			if len(list) == 0 {
				delete(groups, oldKey)
			} else {
				groups[oldKey] = list
			}
		}
		if hasNew {
			list, _ := groups[newKey].(primitive.List)
			groups[newKey] = append(list, projectJournal(rec.(record.JournalEntry), def.Fields))
		}
	}

	idx.Value = groups
	return IndexAction{Kind: IndexUpdate, Index: idx}, true
}
