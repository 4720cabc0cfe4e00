package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rafaeljc/tally/internal/record"
)

// ActionResync asks the engine to drop every index, e.g. after a bulk import
// replaced the record store wholesale.
const ActionResync = "RESYNC"

// ErrInvalidEvent marks events that can never be applied. They are dropped
// without retries.
var ErrInvalidEvent = errors.New("invalid record event")

// Event is one committed record mutation as published by a record subsystem.
// Exactly one of JournalEntry and TagEntry is set unless Action is RESYNC.
//
//	{"action":"CREATED","journal_entry":{...},"published_at":1709280000000}
type Event struct {
	Action       string               `json:"action"`
	JournalEntry *record.JournalEntry `json:"journal_entry,omitempty"`
	TagEntry     *record.TagEntry     `json:"tag_entry,omitempty"`

	// PublishedAt is the unix millisecond publish time, used to measure
	// end-to-end freshness. Zero when unknown.
	PublishedAt int64 `json:"published_at,omitempty"`
}

// NewRecordEvent builds the event for a committed mutation of rec.
func NewRecordEvent(rec record.Record, action record.Action) Event {
	ev := Event{Action: action.String(), PublishedAt: time.Now().UnixMilli()}
	switch r := rec.(type) {
	case record.JournalEntry:
		ev.JournalEntry = &r
	case record.TagEntry:
		ev.TagEntry = &r
	}
	return ev
}

// NewResyncEvent builds a RESYNC event.
func NewResyncEvent() Event {
	return Event{Action: ActionResync, PublishedAt: time.Now().UnixMilli()}
}

// Resync reports whether ev is a RESYNC event.
func (ev Event) Resync() bool { return ev.Action == ActionResync }

// Record returns the mutated record and its action.
func (ev Event) Record() (record.Record, record.Action, error) {
	action, err := record.ParseAction(ev.Action)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	switch {
	case ev.JournalEntry != nil && ev.TagEntry != nil:
		return nil, 0, fmt.Errorf("%w: both journal_entry and tag_entry are set", ErrInvalidEvent)
	case ev.JournalEntry != nil:
		if ev.JournalEntry.ID == "" || ev.JournalEntry.FormID == "" {
			return nil, 0, fmt.Errorf("%w: journal entry needs id and form_id", ErrInvalidEvent)
		}
		return *ev.JournalEntry, action, nil
	case ev.TagEntry != nil:
		if ev.TagEntry.ID == "" || ev.TagEntry.TagID == "" {
			return nil, 0, fmt.Errorf("%w: tag entry needs id and tag_id", ErrInvalidEvent)
		}
		return *ev.TagEntry, action, nil
	}
	return nil, 0, fmt.Errorf("%w: no record", ErrInvalidEvent)
}

// Encode returns the wire form of ev.
func (ev Event) Encode() ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeEvent parses the wire form of an event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}
