// Package filter implements the per-field predicates that decide whether a
// journal entry belongs in a List, Group or Latest derived set.
package filter

import (
	"encoding/json"
	"fmt"

	"github.com/rafaeljc/tally/internal/primitive"
)

// Operator is a filter operator.
type Operator string

const (
	Equal        Operator = "="
	NotEqual     Operator = "!="
	Greater      Operator = ">"
	GreaterEqual Operator = ">="
	Less         Operator = "<"
	LessEqual    Operator = "<="
	In           Operator = "IN"
	NotIn        Operator = "NOT_IN"
)

// Valid reports whether op is a known filter operator.
func (op Operator) Valid() bool {
	switch op {
	case Equal, NotEqual, Greater, GreaterEqual, Less, LessEqual, In, NotIn:
		return true
	}
	return false
}

// Filter compares the answer stored under Field with Value.
type Filter struct {
	Field    string
	Operator Operator
	Value    primitive.Value
}

// IsFilterMet evaluates f against a record's answers.
//
// A missing answer excludes the record when filterOutMissing is true and
// keeps it otherwise. Unknown operators never match.
func IsFilterMet(answers map[string]primitive.Value, f Filter, filterOutMissing bool) bool {
	answer, ok := answers[f.Field]
	if !ok || primitive.IsNull(answer) {
		return !filterOutMissing
	}

	switch f.Operator {
	case Equal, NotEqual, Greater, GreaterEqual, Less, LessEqual:
		return primitive.Compare(primitive.Operator(f.Operator), answer, f.Value)
	case In:
		return inList(answer, f.Value)
	case NotIn:
		return !inList(answer, f.Value)
	}
	return false
}

// AllMet reports whether every filter matches. An empty filter list always
// matches.
func AllMet(answers map[string]primitive.Value, filters []Filter, filterOutMissing bool) bool {
	for _, f := range filters {
		if !IsFilterMet(answers, f, filterOutMissing) {
			return false
		}
	}
	return true
}

func inList(answer, value primitive.Value) bool {
	candidates, ok := primitive.Unwrap(value).(primitive.List)
	if !ok {
		candidates = primitive.List{value}
	}
	for _, c := range candidates {
		if primitive.LooseEqual(answer, c) {
			return true
		}
	}
	return false
}

type filterJSON struct {
	Field    string             `json:"field"`
	Operator Operator           `json:"operator"`
	Value    primitive.Envelope `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(filterJSON{Field: f.Field, Operator: f.Operator, Value: primitive.Envelope{Value: f.Value}})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *Filter) UnmarshalJSON(data []byte) error {
	var raw filterJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Operator.Valid() {
		return fmt.Errorf("unknown filter operator %q", raw.Operator)
	}
	*f = Filter{Field: raw.Field, Operator: raw.Operator, Value: primitive.OrNull(raw.Value.Value)}
	return nil
}
