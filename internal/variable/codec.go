package variable

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rafaeljc/tally/internal/filter"
	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/timescope"
)

// Wire format:
//
//	{"id":"v1","name":"Sum","owner_id":"","type":{"kind":"AGGREGATE","source":"v0","operation":"SUM"}}
//
// The type object is flat: the kind tag sits next to the payload fields.

type variableJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	OwnerID string          `json:"owner_id,omitempty"`
	Type    json.RawMessage `json:"type"`
}

type typeJSON struct {
	Kind Kind `json:"kind"`

	FormID  string          `json:"form_id,omitempty"`
	TagID   string          `json:"tag_id,omitempty"`
	Filters []filter.Filter `json:"filters,omitempty"`
	Fields  []Field         `json:"fields,omitempty"`
	GroupBy string          `json:"group_by,omitempty"`

	Source    string    `json:"source,omitempty"`
	Field     string    `json:"field,omitempty"`
	Operation Operation `json:"operation,omitempty"`

	Conditions []conditionJSON `json:"conditions,omitempty"`
	Scope      *goalScopeJSON  `json:"scope,omitempty"`

	GoalID   string         `json:"goal_id,omitempty"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	Operator CalcOperator  `json:"operator,omitempty"`
	Operands []operandJSON `json:"operands,omitempty"`
}

type goalScopeJSON struct {
	Period    timescope.Period    `json:"period"`
	WeekStart timescope.WeekStart `json:"week_start,omitempty"`
	Offset    int                 `json:"offset,omitempty"`
}

type conditionJSON struct {
	ID       string             `json:"id"`
	Name     string             `json:"name,omitempty"`
	Type     string             `json:"type"`
	Source   *operandJSON       `json:"source,omitempty"`
	Target   *operandJSON       `json:"target,omitempty"`
	Operator primitive.Operator `json:"operator,omitempty"`
	GoalID   string             `json:"goal_id,omitempty"`
}

type operandJSON struct {
	VariableID string              `json:"variable_id,omitempty"`
	Constant   *primitive.Envelope `json:"constant,omitempty"`
}

const (
	checkComparison = "COMPARISON"
	checkGoalMet    = "GOAL_MET"
)

// MarshalJSON implements json.Marshaler.
func (v Variable) MarshalJSON() ([]byte, error) {
	typ, err := MarshalTypeDef(v.Type)
	if err != nil {
		return nil, err
	}
	return json.Marshal(variableJSON{ID: v.ID, Name: v.Name, OwnerID: v.OwnerID, Type: typ})
}

// UnmarshalJSON implements json.Unmarshaler. An unknown kind tag yields an
// error wrapping ErrUnknownVariableType.
func (v *Variable) UnmarshalJSON(data []byte) error {
	var raw variableJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	def, err := UnmarshalTypeDef(raw.Type)
	if err != nil {
		return err
	}
	*v = Variable{ID: raw.ID, Name: raw.Name, OwnerID: raw.OwnerID, Type: def}
	return nil
}

// MarshalTypeDef encodes a payload together with its kind tag.
func MarshalTypeDef(def TypeDef) ([]byte, error) {
	var out typeJSON
	switch t := def.(type) {
	case List:
		out = typeJSON{Kind: KindList, FormID: t.FormID, Filters: t.Filters, Fields: t.Fields}
	case Tag:
		out = typeJSON{Kind: KindTag, TagID: t.TagID}
	case Latest:
		out = typeJSON{Kind: KindLatest, FormID: t.FormID, Filters: t.Filters, Fields: t.Fields}
	case Group:
		out = typeJSON{Kind: KindGroup, FormID: t.FormID, Filters: t.Filters, Fields: t.Fields, GroupBy: t.GroupBy}
	case Aggregate:
		out = typeJSON{Kind: KindAggregate, Source: t.Source, Field: t.Field, Operation: t.Operation}
	case Goal:
		out = typeJSON{Kind: KindGoal, Conditions: make([]conditionJSON, 0, len(t.Conditions))}
		for _, c := range t.Conditions {
			cj, err := encodeCondition(c)
			if err != nil {
				return nil, err
			}
			out.Conditions = append(out.Conditions, cj)
		}
		if t.Scope != nil {
			out.Scope = &goalScopeJSON{Period: t.Scope.Period, WeekStart: t.Scope.WeekStart, Offset: t.Scope.Offset}
		}
	case GoalStreak:
		out = typeJSON{Kind: KindGoalStreak, GoalID: t.GoalID, Weekdays: t.Weekdays}
	case Calculation:
		out = typeJSON{Kind: KindCalculation, Operator: t.Operator, Operands: make([]operandJSON, 0, len(t.Operands))}
		for _, op := range t.Operands {
			out.Operands = append(out.Operands, encodeOperand(op))
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownVariableType, def)
	}
	return json.Marshal(out)
}

// UnmarshalTypeDef decodes a payload produced by MarshalTypeDef.
func UnmarshalTypeDef(data []byte) (TypeDef, error) {
	var raw typeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding variable type: %w", err)
	}

	switch raw.Kind {
	case KindList:
		return List{FormID: raw.FormID, Filters: raw.Filters, Fields: raw.Fields}, nil
	case KindTag:
		return Tag{TagID: raw.TagID}, nil
	case KindLatest:
		return Latest{FormID: raw.FormID, Filters: raw.Filters, Fields: raw.Fields}, nil
	case KindGroup:
		return Group{FormID: raw.FormID, Filters: raw.Filters, Fields: raw.Fields, GroupBy: raw.GroupBy}, nil
	case KindAggregate:
		if !raw.Operation.Valid() {
			return nil, fmt.Errorf("unknown aggregate operation %q", raw.Operation)
		}
		return Aggregate{Source: raw.Source, Field: raw.Field, Operation: raw.Operation}, nil
	case KindGoal:
		goal := Goal{Conditions: make([]Condition, 0, len(raw.Conditions))}
		for _, cj := range raw.Conditions {
			c, err := decodeCondition(cj)
			if err != nil {
				return nil, err
			}
			goal.Conditions = append(goal.Conditions, c)
		}
		if raw.Scope != nil {
			if !raw.Scope.Period.Valid() {
				return nil, fmt.Errorf("unknown goal period %q", raw.Scope.Period)
			}
			goal.Scope = &GoalScope{Period: raw.Scope.Period, WeekStart: raw.Scope.WeekStart, Offset: raw.Scope.Offset}
		}
		return goal, nil
	case KindGoalStreak:
		return GoalStreak{GoalID: raw.GoalID, Weekdays: raw.Weekdays}, nil
	case KindCalculation:
		calc := Calculation{Operator: raw.Operator, Operands: make([]Operand, 0, len(raw.Operands))}
		for _, oj := range raw.Operands {
			calc.Operands = append(calc.Operands, decodeOperand(oj))
		}
		return calc, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownVariableType, raw.Kind)
}

func encodeCondition(c Condition) (conditionJSON, error) {
	out := conditionJSON{ID: c.ID, Name: c.Name}
	switch check := c.Check.(type) {
	case ComparisonCheck:
		src, tgt := encodeOperand(check.Source), encodeOperand(check.Target)
		out.Type, out.Source, out.Target, out.Operator = checkComparison, &src, &tgt, check.Operator
	case GoalMetCheck:
		out.Type, out.GoalID = checkGoalMet, check.GoalID
	default:
		return out, fmt.Errorf("condition %q: unsupported check %T", c.ID, c.Check)
	}
	return out, nil
}

func decodeCondition(cj conditionJSON) (Condition, error) {
	c := Condition{ID: cj.ID, Name: cj.Name}
	switch cj.Type {
	case checkComparison:
		if !cj.Operator.Valid() {
			return c, fmt.Errorf("condition %q: unknown operator %q", cj.ID, cj.Operator)
		}
		check := ComparisonCheck{Operator: cj.Operator}
		if cj.Source != nil {
			check.Source = decodeOperand(*cj.Source)
		}
		if cj.Target != nil {
			check.Target = decodeOperand(*cj.Target)
		}
		c.Check = check
	case checkGoalMet:
		c.Check = GoalMetCheck{GoalID: cj.GoalID}
	default:
		return c, fmt.Errorf("condition %q: unknown check type %q", cj.ID, cj.Type)
	}
	return c, nil
}

func encodeOperand(op Operand) operandJSON {
	if op.VariableID != "" {
		return operandJSON{VariableID: op.VariableID}
	}
	return operandJSON{Constant: &primitive.Envelope{Value: op.Constant}}
}

func decodeOperand(oj operandJSON) Operand {
	if oj.VariableID != "" {
		return Operand{VariableID: oj.VariableID}
	}
	if oj.Constant == nil {
		return Operand{Constant: primitive.Null{}}
	}
	return Operand{Constant: primitive.OrNull(oj.Constant.Value)}
}
