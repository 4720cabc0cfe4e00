package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rafaeljc/tally/internal/primitive"
	"github.com/rafaeljc/tally/internal/timescope"
	"github.com/rafaeljc/tally/internal/variable"
)

// queryArgs collects positional arguments and renders placeholders in the
// dialect of the target database.
type queryArgs struct {
	values []any
	dollar bool
}

func (a *queryArgs) add(v any) string {
	a.values = append(a.values, v)
	if a.dollar {
		return "$" + strconv.Itoa(len(a.values))
	}
	return "?"
}

// rangeClause renders r as a condition on the ts column (unix millis),
// prefixed with AND. RangeAll renders nothing.
func rangeClause(r timescope.TimeRange, args *queryArgs) string {
	switch r.Kind {
	case timescope.RangeBetween:
		return fmt.Sprintf(" AND ts >= %s AND ts < %s", args.add(r.Lower.UnixMilli()), args.add(r.Upper.UnixMilli()))
	case timescope.RangeAfter:
		return " AND ts >= " + args.add(r.Lower.UnixMilli())
	case timescope.RangeBefore:
		return " AND ts < " + args.add(r.Upper.UnixMilli())
	case timescope.RangeList:
		if len(r.Timestamps) == 0 {
			return " AND 1 = 0"
		}
		placeholders := make([]string, len(r.Timestamps))
		for i, t := range r.Timestamps {
			placeholders[i] = args.add(t.UnixMilli())
		}
		return " AND ts IN (" + strings.Join(placeholders, ", ") + ")"
	}
	return ""
}

func encodeAnswers(answers map[string]primitive.Value) ([]byte, error) {
	wrapped := primitive.WrapFields(answers)
	if wrapped == nil {
		wrapped = map[string]primitive.Envelope{}
	}
	return json.Marshal(wrapped)
}

func decodeAnswers(data []byte) (map[string]primitive.Value, error) {
	var wrapped map[string]primitive.Envelope
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	answers := primitive.UnwrapFields(wrapped)
	if answers == nil {
		answers = map[string]primitive.Value{}
	}
	return answers, nil
}

func decodeIndexValue(data []byte) (primitive.Value, error) {
	v, err := primitive.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode index value: %w", err)
	}
	return primitive.OrNull(v), nil
}

func decodeVariable(id, name, ownerID string, typ []byte) (variable.Variable, error) {
	def, err := variable.UnmarshalTypeDef(typ)
	if err != nil {
		return variable.Variable{}, fmt.Errorf("variable %s: %w", id, err)
	}
	return variable.Variable{ID: id, Name: name, OwnerID: ownerID, Type: def}, nil
}
