package primitive

import (
	"strconv"
	"strings"
)

// Operator is a binary comparison operator.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
)

// Valid reports whether op is one of the known comparison operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
		return true
	}
	return false
}

// Equal reports structural, type-checked equality.
// Values of different kinds are never equal.
func Equal(a, b Value) bool {
	a, b = OrNull(a), OrNull(b)
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case Null:
		return true
	case String:
		return x == b.(String)
	case Number:
		return x == b.(Number)
	case Boolean:
		return x == b.(Boolean)
	case List:
		y := b.(List)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Map:
		return equalMaps(x, b.(Map))
	case JournalEntryRef:
		y := b.(JournalEntryRef)
		return x.ID == y.ID &&
			x.Timestamp.UnixMilli() == y.Timestamp.UnixMilli() &&
			equalMaps(x.Fields, y.Fields)
	case TagEntryRef:
		y := b.(TagEntryRef)
		return x.ID == y.ID && x.Timestamp.UnixMilli() == y.Timestamp.UnixMilli()
	case Display:
		y := b.(Display)
		if (x.DisplayValue == nil) != (y.DisplayValue == nil) {
			return false
		}
		if x.DisplayValue != nil && *x.DisplayValue != *y.DisplayValue {
			return false
		}
		return Equal(x.Value, y.Value)
	case ComparisonResult:
		y := b.(ComparisonResult)
		return x.Met == y.Met && Equal(x.Source, y.Source) && Equal(x.Target, y.Target)
	}
	return false
}

func equalMaps(x, y map[string]Value) bool {
	if len(x) != len(y) {
		return false
	}
	for k, xv := range x {
		yv, ok := y[k]
		if !ok || !Equal(xv, yv) {
			return false
		}
	}
	return true
}

// Coerce converts v to the requested kind. The boolean result is false when
// no sensible conversion exists.
func Coerce(v Value, kind Kind) (Value, bool) {
	v = OrNull(v)
	if v.Kind() == kind {
		return v, true
	}

	switch t := v.(type) {
	case Display:
		if kind == KindString && t.DisplayValue != nil {
			return String(*t.DisplayValue), true
		}
		return Coerce(t.Value, kind)
	case ComparisonResult:
		if kind == KindBoolean {
			return Boolean(t.Met), true
		}
		return Coerce(t.Source, kind)
	case List:
		if len(t) == 1 {
			return Coerce(t[0], kind)
		}
		return Null{}, false
	}

	switch kind {
	case KindString:
		switch t := v.(type) {
		case Number:
			return String(strconv.FormatFloat(float64(t), 'f', -1, 64)), true
		case Boolean:
			return String(strconv.FormatBool(bool(t))), true
		}
	case KindNumber:
		switch t := v.(type) {
		case String:
			f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
			if err != nil {
				return Null{}, false
			}
			return Number(f), true
		case Boolean:
			if t {
				return Number(1), true
			}
			return Number(0), true
		}
	case KindBoolean:
		switch t := v.(type) {
		case String:
			b, err := strconv.ParseBool(strings.TrimSpace(string(t)))
			if err != nil {
				return Null{}, false
			}
			return Boolean(b), true
		case Number:
			return Boolean(t != 0), true
		}
	case KindList:
		return List{v}, true
	}

	return Null{}, false
}

// ToNumber coerces v to a float64.
func ToNumber(v Value) (float64, bool) {
	n, ok := Coerce(v, KindNumber)
	if !ok {
		return 0, false
	}
	return float64(n.(Number)), true
}

// ToString coerces v to a string.
func ToString(v Value) (string, bool) {
	s, ok := Coerce(v, KindString)
	if !ok {
		return "", false
	}
	return string(s.(String)), true
}

// LooseEqual coerces the left operand to the right operand's kind before
// comparing. A list on the left compared with a non-list matches when any of
// its elements does, which also unwraps single-element lists.
func LooseEqual(left, right Value) bool {
	left, right = Unwrap(left), Unwrap(right)

	if l, ok := left.(List); ok && right.Kind() != KindList {
		for _, item := range l {
			if LooseEqual(item, right) {
				return true
			}
		}
		return false
	}

	coerced, ok := Coerce(left, right.Kind())
	if !ok {
		return false
	}
	return Equal(coerced, right)
}

// Compare evaluates "left op right". Equality operators use loose comparison,
// ordering operators compare both sides as numbers.
func Compare(op Operator, left, right Value) bool {
	switch op {
	case OpEqual:
		return LooseEqual(left, right)
	case OpNotEqual:
		return !LooseEqual(left, right)
	}

	l, okL := ToNumber(Unwrap(left))
	r, okR := ToNumber(Unwrap(right))
	if !okL || !okR {
		return false
	}

	switch op {
	case OpGreater:
		return l > r
	case OpGreaterEqual:
		return l >= r
	case OpLess:
		return l < r
	case OpLessEqual:
		return l <= r
	}
	return false
}
