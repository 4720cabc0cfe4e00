// Package variable defines the closed set of variable kinds, their evaluation
// semantics and, for the record-backed kinds, the incremental update rules
// that patch cached indices without a full re-evaluation.
package variable

import (
	"errors"
	"slices"
	"time"

	"github.com/rafaeljc/tally/internal/filter"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/timescope"
)

// ErrUnknownVariableType is returned when a stored variable carries a kind
// tag this package does not know.
var ErrUnknownVariableType = errors.New("unknown variable type")

// Kind is the discriminator of a TypeDef.
type Kind string

const (
	KindList        Kind = "LIST"
	KindTag         Kind = "TAG"
	KindLatest      Kind = "LATEST"
	KindGroup       Kind = "GROUP"
	KindAggregate   Kind = "AGGREGATE"
	KindGoal        Kind = "GOAL"
	KindGoalStreak  Kind = "GOAL_STREAK"
	KindCalculation Kind = "CALCULATION"
)

// Variable is a named, typed computation over records or other variables.
// Variables are replaced as a whole, never mutated field by field.
type Variable struct {
	ID      string
	Name    string
	OwnerID string
	Type    TypeDef
}

// TypeDef is the sealed union of variable payloads.
type TypeDef interface {
	Kind() Kind
	isTypeDef()
}

// Field selects an answer to project into a derived set. When Display is set
// the display rendering of the answer is projected instead of its raw value.
type Field struct {
	Key     string `json:"key"`
	Display bool   `json:"display,omitempty"`
}

// List selects the journal entries of a form that pass every filter.
type List struct {
	FormID  string
	Filters []filter.Filter
	Fields  []Field
}

// Tag selects the events of a single tag.
type Tag struct {
	TagID string
}

// Latest selects the most recent journal entry of a form that passes every
// filter.
type Latest struct {
	FormID  string
	Filters []filter.Filter
	Fields  []Field
}

// Group partitions the matching journal entries of a form by the string value
// of the GroupBy answer.
type Group struct {
	FormID  string
	Filters []filter.Filter
	Fields  []Field
	GroupBy string
}

// Operation is an aggregate function.
type Operation string

const (
	Count Operation = "COUNT"
	Sum   Operation = "SUM"
	Mean  Operation = "MEAN"
)

// Valid reports whether op is a known aggregate function.
func (op Operation) Valid() bool {
	switch op {
	case Count, Sum, Mean:
		return true
	}
	return false
}

// Aggregate reduces the numbers found under Field in the value of Source.
// An empty Field makes COUNT count records.
type Aggregate struct {
	Source    string
	Field     string
	Operation Operation
}

// Operand is either a constant or a reference to another variable. A
// non-empty VariableID takes precedence.
type Operand struct {
	Constant   primitive.Value
	VariableID string
}

// Check is the sealed union of goal condition checks.
type Check interface {
	isCheck()
}

// ComparisonCheck compares two operands.
type ComparisonCheck struct {
	Source   Operand
	Target   Operand
	Operator primitive.Operator
}

// GoalMetCheck is met when every condition of another goal is met.
type GoalMetCheck struct {
	GoalID string
}

func (ComparisonCheck) isCheck() {}
func (GoalMetCheck) isCheck()    {}

// Condition is a named goal condition.
type Condition struct {
	ID    string
	Name  string
	Check Check
}

// GoalScope pins the period a goal is evaluated over. Offset shifts the
// anchor by whole periods (-1 is the previous period).
type GoalScope struct {
	Period    timescope.Period
	WeekStart timescope.WeekStart
	Offset    int
}

// Goal evaluates an ordered list of conditions. A nil Scope evaluates the
// conditions in the caller's time scope.
type Goal struct {
	Conditions []Condition
	Scope      *GoalScope
}

// MaxStreakDays bounds the backward walk of a GoalStreak.
const MaxStreakDays = 1000

// GoalStreak counts consecutive fully met days of a goal, walking back from
// yesterday. Weekdays restricts which days are considered; empty means all.
type GoalStreak struct {
	GoalID   string
	Weekdays []time.Weekday
}

// CalcOperator is an arithmetic or comparison operator.
type CalcOperator string

const (
	Add      CalcOperator = "+"
	Subtract CalcOperator = "-"
	Multiply CalcOperator = "*"
	Divide   CalcOperator = "/"
)

// Calculation combines its operands with a single operator. Arithmetic
// operators fold left over any number of operands; comparison operators take
// exactly two.
type Calculation struct {
	Operator CalcOperator
	Operands []Operand
}

func (List) Kind() Kind        { return KindList }
func (Tag) Kind() Kind         { return KindTag }
func (Latest) Kind() Kind      { return KindLatest }
func (Group) Kind() Kind       { return KindGroup }
func (Aggregate) Kind() Kind   { return KindAggregate }
func (Goal) Kind() Kind        { return KindGoal }
func (GoalStreak) Kind() Kind  { return KindGoalStreak }
func (Calculation) Kind() Kind { return KindCalculation }

func (List) isTypeDef()        {}
func (Tag) isTypeDef()         {}
func (Latest) isTypeDef()      {}
func (Group) isTypeDef()       {}
func (Aggregate) isTypeDef()   {}
func (Goal) isTypeDef()        {}
func (GoalStreak) isTypeDef()  {}
func (Calculation) isTypeDef() {}

// Dependencies returns the ids of the variables v reads directly, without
// duplicates and never including v itself.
func (v Variable) Dependencies() []string {
	deps := directDependencies(v.Type)
	out := make([]string, 0, len(deps))
	for _, id := range deps {
		if id == "" || id == v.ID || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func directDependencies(def TypeDef) []string {
	switch t := def.(type) {
	case Aggregate:
		return []string{t.Source}
	case Goal:
		var ids []string
		for _, c := range t.Conditions {
			switch check := c.Check.(type) {
			case ComparisonCheck:
				ids = append(ids, check.Source.VariableID, check.Target.VariableID)
			case GoalMetCheck:
				ids = append(ids, check.GoalID)
			}
		}
		return ids
	case GoalStreak:
		return []string{t.GoalID}
	case Calculation:
		ids := make([]string, 0, len(t.Operands))
		for _, op := range t.Operands {
			ids = append(ids, op.VariableID)
		}
		return ids
	}
	return nil
}

// Incremental reports whether def has an incremental update handler.
func Incremental(def TypeDef) bool {
	switch def.(type) {
	case List, Tag, Latest, Group:
		return true
	}
	return false
}
