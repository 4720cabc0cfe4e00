package variable

import (
	"context"
	"fmt"
	"time"

	"github.com/rafaeljc/tally/internal/filter"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/record"
	"github.com/rafaeljc/tally/internal/timescope"
)

// Evaluator is the view of the engine a TypeDef evaluates against. Record
// fetches are already restricted to the range of TimeScope().
type Evaluator interface {
	TimeScope() timescope.TimeScope
	Now() time.Time
	Location() *time.Location

	JournalEntries(ctx context.Context, formID string) ([]record.JournalEntry, error)
	TagEntries(ctx context.Context, tagID string) ([]record.TagEntry, error)

	// Evaluate evaluates another variable in the current time scope. Unknown
	// ids yield Null.
	Evaluate(ctx context.Context, variableID string) (primitive.Value, error)

	// WithTimeScope returns an evaluator bound to ts for sub-evaluations.
	WithTimeScope(ts timescope.TimeScope) Evaluator
}

// Evaluate computes the value of def.
func Evaluate(ctx context.Context, def TypeDef, ev Evaluator) (primitive.Value, error) {
	switch t := def.(type) {
	case List:
		return evaluateList(ctx, t, ev)
	case Tag:
		return evaluateTag(ctx, t, ev)
	case Latest:
		return evaluateLatest(ctx, t, ev)
	case Group:
		return evaluateGroup(ctx, t, ev)
	case Aggregate:
		return evaluateAggregate(ctx, t, ev)
	case Goal:
		return evaluateGoal(ctx, t, ev)
	case GoalStreak:
		return evaluateGoalStreak(ctx, t, ev)
	case Calculation:
		return evaluateCalculation(ctx, t, ev)
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownVariableType, def)
}

// FixedTimeScope returns the scope a kind is always evaluated in when it is
// the evaluation root, if it has one.
func FixedTimeScope(def TypeDef, now time.Time, loc *time.Location) (timescope.TimeScope, bool) {
	switch def.(type) {
	case GoalStreak:
		return timescope.NewSimple(timescope.Daily, timescope.Monday, now, loc), true
	}
	return nil, false
}

func evaluateList(ctx context.Context, def List, ev Evaluator) (primitive.Value, error) {
	entries, err := ev.JournalEntries(ctx, def.FormID)
	if err != nil {
		return nil, err
	}
	out := primitive.List{}
	for _, e := range entries {
		if filter.AllMet(e.Answers, def.Filters, true) {
			out = append(out, projectJournal(e, def.Fields))
		}
	}
	return out, nil
}

func evaluateTag(ctx context.Context, def Tag, ev Evaluator) (primitive.Value, error) {
	entries, err := ev.TagEntries(ctx, def.TagID)
	if err != nil {
		return nil, err
	}
	out := make(primitive.List, 0, len(entries))
	for _, e := range entries {
		out = append(out, projectTag(e))
	}
	return out, nil
}

// evaluateLatest keeps the first entry seen among those sharing the maximum
// timestamp.
func evaluateLatest(ctx context.Context, def Latest, ev Evaluator) (primitive.Value, error) {
	entries, err := ev.JournalEntries(ctx, def.FormID)
	if err != nil {
		return nil, err
	}
	var (
		latest record.JournalEntry
		found  bool
	)
	for _, e := range entries {
		if !filter.AllMet(e.Answers, def.Filters, true) {
			continue
		}
		if !found || e.Timestamp.After(latest.Timestamp) {
			latest, found = e, true
		}
	}
	if !found {
		return primitive.Null{}, nil
	}
	return projectJournal(latest, def.Fields), nil
}

func evaluateGroup(ctx context.Context, def Group, ev Evaluator) (primitive.Value, error) {
	entries, err := ev.JournalEntries(ctx, def.FormID)
	if err != nil {
		return nil, err
	}
	out := primitive.Map{}
	for _, e := range entries {
		if !filter.AllMet(e.Answers, def.Filters, true) {
			continue
		}
		key, ok := groupKey(e.Answers, def.GroupBy)
		if !ok {
			continue
		}
		list, _ := out[key].(primitive.List)
		out[key] = append(list, projectJournal(e, def.Fields))
	}
	return out, nil
}

func evaluateAggregate(ctx context.Context, def Aggregate, ev Evaluator) (primitive.Value, error) {
	source, err := ev.Evaluate(ctx, def.Source)
	if err != nil {
		return nil, err
	}
	return aggregate(def, primitive.Unwrap(source)), nil
}

func aggregate(def Aggregate, source primitive.Value) primitive.Value {
	if groups, ok := source.(primitive.Map); ok {
		out := make(primitive.Map, len(groups))
		for key, group := range groups {
			out[key] = aggregate(def, primitive.Unwrap(group))
		}
		return out
	}

	var acc accumulator
	acc.collect(source, def.Field)

	switch def.Operation {
	case Count:
		return primitive.Number(acc.count)
	case Sum:
		return primitive.Number(acc.sum())
	case Mean:
		if len(acc.numbers) == 0 {
			return primitive.Number(0)
		}
		return primitive.Number(acc.sum() / float64(len(acc.numbers)))
	}
	return primitive.Number(0)
}

type accumulator struct {
	numbers []float64
	count   int
}

func (a *accumulator) sum() float64 {
	var total float64
	for _, n := range a.numbers {
		total += n
	}
	return total
}

// collect flattens v into numbers. Record projections contribute the value of
// field; without a field they only count.
func (a *accumulator) collect(v primitive.Value, field string) {
	switch t := primitive.Unwrap(v).(type) {
	case primitive.Null:
	case primitive.List:
		for _, item := range t {
			a.collect(item, field)
		}
	case primitive.Map:
		for _, item := range t {
			a.collect(item, field)
		}
	case primitive.JournalEntryRef:
		if field == "" {
			a.count++
			return
		}
		answer, ok := t.Fields[field]
		if !ok {
			return
		}
		var inner accumulator
		inner.collect(answer, "")
		if len(inner.numbers) > 0 {
			a.numbers = append(a.numbers, inner.sum())
			a.count++
		}
	case primitive.TagEntryRef:
		if field == "" {
			a.count++
		}
	default:
		if n, ok := primitive.ToNumber(t); ok {
			a.numbers = append(a.numbers, n)
			a.count++
		}
	}
}

func evaluateGoal(ctx context.Context, def Goal, ev Evaluator) (primitive.Value, error) {
	scoped := ev
	if def.Scope != nil {
		scoped = ev.WithTimeScope(goalTimeScope(*def.Scope, ev))
	}

	out := make(primitive.Map, len(def.Conditions))
	for _, c := range def.Conditions {
		switch check := c.Check.(type) {
		case ComparisonCheck:
			source, err := resolveOperand(ctx, check.Source, scoped)
			if err != nil {
				return nil, err
			}
			target, err := resolveOperand(ctx, check.Target, scoped)
			if err != nil {
				return nil, err
			}
			out[c.ID] = primitive.ComparisonResult{
				Source: source,
				Target: target,
				Met:    primitive.Compare(check.Operator, source, target),
			}
		case GoalMetCheck:
			nested, err := scoped.Evaluate(ctx, check.GoalID)
			if err != nil {
				return nil, err
			}
			out[c.ID] = primitive.Boolean(IsGoalFullyMet(nested))
		}
	}
	return out, nil
}

// goalTimeScope anchors the goal period on the caller's scope timestamp, or on
// now when the caller's scope has none.
func goalTimeScope(gs GoalScope, ev Evaluator) timescope.TimeScope {
	loc := ev.Location()
	anchor, ok := scopeAnchor(ev.TimeScope())
	if !ok {
		anchor = ev.Now()
	}
	period := gs.Period
	if !period.Valid() {
		period = timescope.Daily
	}
	if gs.Offset != 0 {
		anchor = timescope.Shift(period, timescope.StartOfPeriod(period, gs.WeekStart, anchor, loc), gs.Offset, loc)
	}
	return timescope.NewSimple(period, gs.WeekStart, anchor, loc)
}

// scopeAnchor returns the instant a scope starts at. Forever and ranges
// without a start have none.
func scopeAnchor(ts timescope.TimeScope) (time.Time, bool) {
	switch t := ts.(type) {
	case timescope.Simple:
		return t.Timestamp, true
	case timescope.Range:
		if t.Start != nil {
			return *t.Start, true
		}
	}
	return time.Time{}, false
}

// IsGoalFullyMet reports whether a goal result has at least one condition and
// every condition is met.
func IsGoalFullyMet(v primitive.Value) bool {
	switch t := primitive.Unwrap(v).(type) {
	case primitive.Boolean:
		return bool(t)
	case primitive.ComparisonResult:
		return t.Met
	case primitive.Map:
		if len(t) == 0 {
			return false
		}
		for _, c := range t {
			if !IsGoalFullyMet(c) {
				return false
			}
		}
		return true
	}
	return false
}

func evaluateGoalStreak(ctx context.Context, def GoalStreak, ev Evaluator) (primitive.Value, error) {
	allowed, ok := weekdaySet(def.Weekdays)
	if !ok {
		return primitive.Number(0), nil
	}

	// Under its fixed scope the anchor is today; a caller overriding the
	// scope moves the walk to that scope's start.
	loc := ev.Location()
	anchor, ok := scopeAnchor(ev.TimeScope())
	if !ok {
		anchor = ev.Now()
	}
	today := timescope.StartOfDay(anchor, loc)
	streak := 0
	for i := 1; i <= MaxStreakDays; i++ {
		day := timescope.Shift(timescope.Daily, today, -i, loc)
		if !allowed[day.Weekday()] {
			continue
		}
		scope := timescope.NewSimple(timescope.Daily, timescope.Monday, day, loc)
		result, err := ev.WithTimeScope(scope).Evaluate(ctx, def.GoalID)
		if err != nil {
			return nil, err
		}
		if !IsGoalFullyMet(result) {
			break
		}
		streak++
	}
	return primitive.Number(streak), nil
}

// weekdaySet returns false when days is non-empty but names no valid weekday.
func weekdaySet(days []time.Weekday) (map[time.Weekday]bool, bool) {
	set := make(map[time.Weekday]bool, 7)
	if len(days) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			set[d] = true
		}
		return set, true
	}
	for _, d := range days {
		if d >= time.Sunday && d <= time.Saturday {
			set[d] = true
		}
	}
	return set, len(set) > 0
}

func evaluateCalculation(ctx context.Context, def Calculation, ev Evaluator) (primitive.Value, error) {
	values := make([]primitive.Value, len(def.Operands))
	for i, op := range def.Operands {
		v, err := resolveOperand(ctx, op, ev)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	if cmp := primitive.Operator(def.Operator); cmp.Valid() {
		if len(values) != 2 {
			return primitive.Null{}, nil
		}
		return primitive.Boolean(primitive.Compare(cmp, values[0], values[1])), nil
	}

	if len(values) == 0 {
		return primitive.Null{}, nil
	}
	result := numberOrZero(values[0])
	for _, v := range values[1:] {
		n := numberOrZero(v)
		switch def.Operator {
		case Add:
			result += n
		case Subtract:
			result -= n
		case Multiply:
			result *= n
		case Divide:
			if n == 0 {
				return primitive.Null{}, nil
			}
			result /= n
		default:
			return primitive.Null{}, nil
		}
	}
	return primitive.Number(result), nil
}

func numberOrZero(v primitive.Value) float64 {
	n, ok := primitive.ToNumber(primitive.Unwrap(v))
	if !ok {
		return 0
	}
	return n
}

func resolveOperand(ctx context.Context, op Operand, ev Evaluator) (primitive.Value, error) {
	if op.VariableID != "" {
		v, err := ev.Evaluate(ctx, op.VariableID)
		if err != nil {
			return nil, err
		}
		return primitive.OrNull(v), nil
	}
	return primitive.OrNull(op.Constant), nil
}

func projectJournal(e record.JournalEntry, fields []Field) primitive.JournalEntryRef {
	ref := primitive.JournalEntryRef{ID: e.ID, Timestamp: e.Timestamp}
	if len(fields) == 0 {
		ref.Fields = make(map[string]primitive.Value, len(e.Answers))
		for k, v := range e.Answers {
			ref.Fields[k] = primitive.Clone(v)
		}
		return ref
	}
	ref.Fields = make(map[string]primitive.Value, len(fields))
	for _, f := range fields {
		answer, ok := e.Answers[f.Key]
		if !ok {
			continue
		}
		if f.Display {
			ref.Fields[f.Key] = primitive.DisplayOrValue(answer)
		} else {
			ref.Fields[f.Key] = primitive.Clone(primitive.Unwrap(answer))
		}
	}
	return ref
}

func projectTag(e record.TagEntry) primitive.TagEntryRef {
	return primitive.TagEntryRef{ID: e.ID, Timestamp: e.Timestamp}
}

func groupKey(answers map[string]primitive.Value, field string) (string, bool) {
	answer, ok := answers[field]
	if !ok || primitive.IsNull(answer) {
		return "", false
	}
	return primitive.ToString(primitive.Unwrap(answer))
}
