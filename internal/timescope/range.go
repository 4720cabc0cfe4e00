package timescope

import (
	"slices"
	"time"
)

// RangeKind discriminates TimeRange variants.
type RangeKind int

const (
	RangeAll RangeKind = iota
	RangeBetween
	RangeAfter
	RangeBefore
	RangeList
)

// TimeRange is the concrete window used to select records.
// Lower bounds are inclusive, upper bounds exclusive.
type TimeRange struct {
	Kind       RangeKind
	Lower      time.Time
	Upper      time.Time
	Timestamps []time.Time
}

// All matches every timestamp.
func All() TimeRange { return TimeRange{Kind: RangeAll} }

// Between matches lower <= t < upper.
func Between(lower, upper time.Time) TimeRange {
	return TimeRange{Kind: RangeBetween, Lower: lower, Upper: upper}
}

// After matches t >= lower.
func After(lower time.Time) TimeRange { return TimeRange{Kind: RangeAfter, Lower: lower} }

// Before matches t < upper.
func Before(upper time.Time) TimeRange { return TimeRange{Kind: RangeBefore, Upper: upper} }

// List matches exactly the given timestamps (millisecond precision).
func List(timestamps ...time.Time) TimeRange {
	return TimeRange{Kind: RangeList, Timestamps: timestamps}
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	switch r.Kind {
	case RangeAll:
		return true
	case RangeBetween:
		return !t.Before(r.Lower) && t.Before(r.Upper)
	case RangeAfter:
		return !t.Before(r.Lower)
	case RangeBefore:
		return t.Before(r.Upper)
	case RangeList:
		ms := t.UnixMilli()
		return slices.ContainsFunc(r.Timestamps, func(c time.Time) bool { return c.UnixMilli() == ms })
	}
	return false
}

// StartOfPeriod returns the first instant of the period containing t in loc.
func StartOfPeriod(period Period, weekStart WeekStart, t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	y, m, d := t.Date()

	switch period {
	case Weekly:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		back := (int(day.Weekday()) - int(weekStart.Weekday()) + 7) % 7
		return day.AddDate(0, 0, -back)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case Yearly:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// StartOfDay is StartOfPeriod for Daily.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfPeriod(Daily, Monday, t, loc)
}

// Shift moves t by n periods using calendar arithmetic in loc, so daylight
// saving transitions keep day boundaries aligned.
func Shift(period Period, t time.Time, n int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)

	switch period {
	case Weekly:
		return t.AddDate(0, 0, 7*n)
	case Monthly:
		return t.AddDate(0, n, 0)
	case Yearly:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, 0, n)
	}
}
