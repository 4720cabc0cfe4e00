// Package record defines the raw logged records the engine consumes.
// Records are owned by the record store; the engine only reads them and
// reacts to their mutations.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rafaeljc/tally/internal/primitive"
)

// Action is the kind of mutation applied to a record.
type Action int

const (
	Created Action = iota + 1
	Updated
	Deleted
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case Created:
		return "CREATED"
	case Updated:
		return "UPDATED"
	case Deleted:
		return "DELETED"
	}
	return "UNKNOWN"
}

// ParseAction is the inverse of Action.String.
func ParseAction(s string) (Action, error) {
	switch s {
	case "CREATED":
		return Created, nil
	case "UPDATED":
		return Updated, nil
	case "DELETED":
		return Deleted, nil
	}
	return 0, fmt.Errorf("unknown record action %q", s)
}

// Record is the sealed union of JournalEntry and TagEntry.
type Record interface {
	RecordID() string
	RecordTime() time.Time
	isRecord()
}

// JournalEntry is a submitted form: a set of answers keyed by field id.
type JournalEntry struct {
	ID         string
	Timestamp  time.Time
	FormID     string
	SnapshotID string
	Answers    map[string]primitive.Value
}

// TagEntry is a single tag event.
type TagEntry struct {
	ID        string
	Timestamp time.Time
	TagID     string
}

func (e JournalEntry) RecordID() string      { return e.ID }
func (e JournalEntry) RecordTime() time.Time { return e.Timestamp }
func (JournalEntry) isRecord()               {}

func (e TagEntry) RecordID() string      { return e.ID }
func (e TagEntry) RecordTime() time.Time { return e.Timestamp }
func (TagEntry) isRecord()               {}

type journalEntryJSON struct {
	ID         string                        `json:"id"`
	Timestamp  int64                         `json:"timestamp"`
	FormID     string                        `json:"form_id"`
	SnapshotID string                        `json:"snapshot_id,omitempty"`
	Answers    map[string]primitive.Envelope `json:"answers"`
}

type tagEntryJSON struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	TagID     string `json:"tag_id"`
}

// MarshalJSON encodes timestamps as unix milliseconds and answers as
// primitive envelopes.
func (e JournalEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(journalEntryJSON{
		ID:         e.ID,
		Timestamp:  e.Timestamp.UnixMilli(),
		FormID:     e.FormID,
		SnapshotID: e.SnapshotID,
		Answers:    primitive.WrapFields(e.Answers),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *JournalEntry) UnmarshalJSON(data []byte) error {
	var raw journalEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = JournalEntry{
		ID:         raw.ID,
		Timestamp:  time.UnixMilli(raw.Timestamp).UTC(),
		FormID:     raw.FormID,
		SnapshotID: raw.SnapshotID,
		Answers:    primitive.UnwrapFields(raw.Answers),
	}
	if e.Answers == nil {
		e.Answers = map[string]primitive.Value{}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e TagEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagEntryJSON{ID: e.ID, Timestamp: e.Timestamp.UnixMilli(), TagID: e.TagID})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *TagEntry) UnmarshalJSON(data []byte) error {
	var raw tagEntryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = TagEntry{ID: raw.ID, Timestamp: time.UnixMilli(raw.Timestamp).UTC(), TagID: raw.TagID}
	return nil
}
