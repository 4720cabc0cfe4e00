// Package timescope models the time windows a variable is evaluated against
// and their canonical string form, which is used as the index cache key.
//
// The serialized form is a persisted contract:
//
//	SIMPLE|<PERIOD>:<unix-millis>
//	RANGE|<start-millis-or-empty>:<end-millis-or-empty>
//	FOREVER|
package timescope

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeScope is returned when a serialized scope cannot be parsed.
var ErrInvalidTimeScope = errors.New("invalid time scope")

// Kind discriminates the TimeScope variants.
type Kind string

const (
	KindSimple  Kind = "SIMPLE"
	KindRange   Kind = "RANGE"
	KindForever Kind = "FOREVER"
)

// Period is the length of a Simple scope.
type Period string

const (
	Daily   Period = "DAILY"
	Weekly  Period = "WEEKLY"
	Monthly Period = "MONTHLY"
	Yearly  Period = "YEARLY"
)

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// WeekStart anchors weekly periods.
type WeekStart string

const (
	Sunday   WeekStart = "SUNDAY"
	Monday   WeekStart = "MONDAY"
	Saturday WeekStart = "SATURDAY"
)

// Weekday returns the calendar weekday a week starts on. Unknown values
// default to Monday.
func (w WeekStart) Weekday() time.Weekday {
	switch w {
	case Sunday:
		return time.Sunday
	case Saturday:
		return time.Saturday
	default:
		return time.Monday
	}
}

// Valid reports whether w is a known week start.
func (w WeekStart) Valid() bool {
	switch w {
	case Sunday, Monday, Saturday:
		return true
	}
	return false
}

// TimeScope is the sealed union of Simple, Range and Forever.
type TimeScope interface {
	// Kind returns the variant discriminator.
	Kind() Kind
	// ToRange converts the scope into the concrete range used to filter records.
	ToRange() TimeRange
	// String returns the canonical serialized form.
	String() string
	isTimeScope()
}

// Simple is a single calendar period. Timestamp is always the start of the
// period; NewSimple performs the normalization.
type Simple struct {
	Period    Period
	WeekStart WeekStart
	Timestamp time.Time
	loc       *time.Location
}

// Range is an optionally bounded interval. Start is inclusive, End exclusive.
type Range struct {
	Start *time.Time
	End   *time.Time
}

// Forever covers every record.
type Forever struct{}

// NewSimple builds a Simple scope whose timestamp is the start of the period
// containing t, computed in loc (UTC when nil).
func NewSimple(period Period, weekStart WeekStart, t time.Time, loc *time.Location) Simple {
	if loc == nil {
		loc = time.UTC
	}
	if !weekStart.Valid() {
		weekStart = Monday
	}
	return Simple{
		Period:    period,
		WeekStart: weekStart,
		Timestamp: StartOfPeriod(period, weekStart, t, loc),
		loc:       loc,
	}
}

// NewRange builds a Range scope. Either bound may be nil.
func NewRange(start, end *time.Time) Range {
	return Range{Start: start, End: end}
}

func (Simple) Kind() Kind  { return KindSimple }
func (Range) Kind() Kind   { return KindRange }
func (Forever) Kind() Kind { return KindForever }

func (Simple) isTimeScope()  {}
func (Range) isTimeScope()   {}
func (Forever) isTimeScope() {}

// Location returns the reference timezone of the scope.
func (s Simple) Location() *time.Location {
	if s.loc == nil {
		return time.UTC
	}
	return s.loc
}

// ToRange returns [start of period, start of next period).
func (s Simple) ToRange() TimeRange {
	loc := s.Location()
	return Between(s.Timestamp, Shift(s.Period, s.Timestamp, 1, loc))
}

// ToRange maps the optional bounds onto Between/After/Before/All.
func (r Range) ToRange() TimeRange {
	switch {
	case r.Start != nil && r.End != nil:
		return Between(*r.Start, *r.End)
	case r.Start != nil:
		return After(*r.Start)
	case r.End != nil:
		return Before(*r.End)
	default:
		return All()
	}
}

// ToRange always returns All.
func (Forever) ToRange() TimeRange { return All() }

func (s Simple) String() string {
	return fmt.Sprintf("%s|%s:%d", KindSimple, s.Period, s.Timestamp.UnixMilli())
}

func (r Range) String() string {
	return fmt.Sprintf("%s|%s:%s", KindRange, formatBound(r.Start), formatBound(r.End))
}

func (Forever) String() string {
	return string(KindForever) + "|"
}

func formatBound(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Serialize returns the canonical form of ts. It is equivalent to ts.String().
func Serialize(ts TimeScope) string {
	return ts.String()
}

// Parse decodes a serialized scope using UTC as the reference timezone.
func Parse(s string) (TimeScope, error) {
	return ParseInLocation(s, time.UTC)
}

// ParseInLocation decodes a serialized scope. loc is attached to Simple
// scopes so that month and year arithmetic in ToRange uses the same calendar
// that normalized them.
func ParseInLocation(s string, loc *time.Location) (TimeScope, error) {
	if loc == nil {
		loc = time.UTC
	}

	kind, payload, found := strings.Cut(s, "|")
	switch Kind(kind) {
	case KindForever:
		if payload != "" {
			return nil, fmt.Errorf("%w: unexpected FOREVER payload %q", ErrInvalidTimeScope, payload)
		}
		return Forever{}, nil

	case KindSimple:
		if !found {
			return nil, fmt.Errorf("%w: missing SIMPLE payload", ErrInvalidTimeScope)
		}
		periodStr, tsStr, ok := strings.Cut(payload, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed SIMPLE payload %q", ErrInvalidTimeScope, payload)
		}
		period := Period(periodStr)
		if !period.Valid() {
			return nil, fmt.Errorf("%w: unknown period %q", ErrInvalidTimeScope, periodStr)
		}
		millis, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timestamp %q", ErrInvalidTimeScope, tsStr)
		}
		ts := time.UnixMilli(millis).In(loc)
		ws := weekStartOf(ts)
		// The key names the period by its start. Anything else would decode
		// to a scope whose String differs from s.
		if start := StartOfPeriod(period, ws, ts, loc); !start.Equal(ts) {
			return nil, fmt.Errorf("%w: timestamp %d is not the start of a %s period (want %d)",
				ErrInvalidTimeScope, millis, period, start.UnixMilli())
		}
		return Simple{Period: period, WeekStart: ws, Timestamp: ts, loc: loc}, nil

	case KindRange:
		if !found {
			return nil, fmt.Errorf("%w: missing RANGE payload", ErrInvalidTimeScope)
		}
		startStr, endStr, ok := strings.Cut(payload, ":")
		if !ok {
			return nil, fmt.Errorf("%w: malformed RANGE payload %q", ErrInvalidTimeScope, payload)
		}
		start, err := parseBound(startStr)
		if err != nil {
			return nil, err
		}
		end, err := parseBound(endStr)
		if err != nil {
			return nil, err
		}
		return Range{Start: start, End: end}, nil
	}

	return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTimeScope, kind)
}

func parseBound(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	millis, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid bound %q", ErrInvalidTimeScope, s)
	}
	t := time.UnixMilli(millis).UTC()
	return &t, nil
}

// weekStartOf recovers the week start of a parsed weekly scope from the
// weekday of its normalized timestamp.
func weekStartOf(t time.Time) WeekStart {
	switch t.Weekday() {
	case time.Sunday:
		return Sunday
	case time.Saturday:
		return Saturday
	default:
		return Monday
	}
}
