// Package primitive defines the closed set of values the variable engine can
// produce or consume. Every evaluation result, record answer and cached index
// payload is a primitive.Value.
package primitive

import (
	"maps"
	"time"
)

// Kind discriminates the Value variants.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindList
	KindMap
	KindJournalEntry
	KindTagEntry
	KindDisplay
	KindComparison
)

var kindNames = map[Kind]string{
	KindNull:         "NULL",
	KindString:       "STRING",
	KindNumber:       "NUMBER",
	KindBoolean:      "BOOLEAN",
	KindList:         "LIST",
	KindMap:          "MAP",
	KindJournalEntry: "JOURNAL_ENTRY",
	KindTagEntry:     "TAG_ENTRY",
	KindDisplay:      "DISPLAY",
	KindComparison:   "COMPARISON",
}

// String returns the wire name of the kind (e.g. "NUMBER").
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// parseKind is the inverse of Kind.String.
func parseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindNull, false
}

// Value is the sealed union of all primitive values.
// Only the types declared in this package implement it.
type Value interface {
	Kind() Kind
	isValue()
}

type (
	// String is a text value.
	String string

	// Number is a numeric value. All numbers are float64.
	Number float64

	// Boolean is a truth value.
	Boolean bool

	// List is an ordered sequence of values.
	List []Value

	// Map is a string-keyed collection of values.
	Map map[string]Value

	// Null is the absence of a value.
	Null struct{}
)

// JournalEntryRef is the projection of a journal entry into a derived set.
type JournalEntryRef struct {
	ID        string
	Timestamp time.Time
	Fields    map[string]Value
}

// TagEntryRef is the projection of a tag event into a derived set.
type TagEntryRef struct {
	ID        string
	Timestamp time.Time
}

// Display pairs a raw value with an optional human readable rendering
// (e.g. an option id and its label).
type Display struct {
	Value        Value
	DisplayValue *string
}

// ComparisonResult is the outcome of a goal condition.
type ComparisonResult struct {
	Source Value
	Target Value
	Met    bool
}

func (String) Kind() Kind           { return KindString }
func (Number) Kind() Kind           { return KindNumber }
func (Boolean) Kind() Kind          { return KindBoolean }
func (List) Kind() Kind             { return KindList }
func (Map) Kind() Kind              { return KindMap }
func (Null) Kind() Kind             { return KindNull }
func (JournalEntryRef) Kind() Kind  { return KindJournalEntry }
func (TagEntryRef) Kind() Kind      { return KindTagEntry }
func (Display) Kind() Kind          { return KindDisplay }
func (ComparisonResult) Kind() Kind { return KindComparison }

func (String) isValue()           {}
func (Number) isValue()           {}
func (Boolean) isValue()          {}
func (List) isValue()             {}
func (Map) isValue()              {}
func (Null) isValue()             {}
func (JournalEntryRef) isValue()  {}
func (TagEntryRef) isValue()      {}
func (Display) isValue()          {}
func (ComparisonResult) isValue() {}

// OrNull maps a nil interface to Null so callers never have to nil-check.
func OrNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// IsNull reports whether v is Null or nil.
func IsNull(v Value) bool {
	return OrNull(v).Kind() == KindNull
}

// Unwrap strips Display wrappers and returns the raw value.
func Unwrap(v Value) Value {
	for {
		d, ok := v.(Display)
		if !ok {
			return OrNull(v)
		}
		v = d.Value
	}
}

// DisplayOrValue returns the display rendering of a Display value when one is
// set, otherwise the raw value.
func DisplayOrValue(v Value) Value {
	if d, ok := v.(Display); ok {
		if d.DisplayValue != nil {
			return String(*d.DisplayValue)
		}
		return DisplayOrValue(d.Value)
	}
	return OrNull(v)
}

// Clone returns a copy of v that shares no mutable containers with it.
// Incremental handlers patch cloned values so cached indices are never
// modified through aliasing.
func Clone(v Value) Value {
	switch t := OrNull(v).(type) {
	case List:
		out := make(List, len(t))
		for i, item := range t {
			out[i] = Clone(item)
		}
		return out
	case Map:
		out := make(Map, len(t))
		for k, item := range t {
			out[k] = Clone(item)
		}
		return out
	case JournalEntryRef:
		t.Fields = cloneFields(t.Fields)
		return t
	case Display:
		t.Value = Clone(t.Value)
		return t
	case ComparisonResult:
		t.Source = Clone(t.Source)
		t.Target = Clone(t.Target)
		return t
	default:
		return t
	}
}

func cloneFields(fields map[string]Value) map[string]Value {
	if fields == nil {
		return nil
	}
	out := maps.Clone(fields)
	for k, v := range out {
		out[k] = Clone(v)
	}
	return out
}
