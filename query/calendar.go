package query

import (
	"time"
)

// TimeRange limits a stored log query to a period. Both ends are in
// milliseconds since the epoch; 0 leaves the end open.
type TimeRange struct {
	StartMS int64
	EndMS   int64
}

// StartTime returns the start of the range, zero time if open
func (r TimeRange) StartTime() time.Time {
	if r.StartMS == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.StartMS)
}

// EndTime returns the end of the range, zero time if open
func (r TimeRange) EndTime() time.Time {
	if r.EndMS == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.EndMS)
}

// Apply writes the range into the query part of q
func (r TimeRange) Apply(q *Query) {
	q.UpdateQuery(map[string]any{
		"start_ms": r.StartMS,
		"end_ms":   r.EndMS,
	})
}

// Clock produces time ranges relative to its current time
type Clock func() time.Time

// SystemClock uses the wall clock
var SystemClock Clock = time.Now

// Last returns the range from d ago to now. The start is truncated to the
// second.
func (c Clock) Last(d time.Duration) TimeRange {
	now := c()
	return TimeRange{
		StartMS: now.Add(-d).Truncate(time.Second).UnixMilli(),
		EndMS:   now.UnixMilli(),
	}
}

func (c Clock) LastFiveMinutes() TimeRange    { return c.Last(5 * time.Minute) }
func (c Clock) LastFifteenMinutes() TimeRange { return c.Last(15 * time.Minute) }
func (c Clock) LastThirtyMinutes() TimeRange  { return c.Last(30 * time.Minute) }
func (c Clock) LastHour() TimeRange           { return c.Last(time.Hour) }
func (c Clock) LastDay() TimeRange            { return c.Last(24 * time.Hour) }
func (c Clock) LastWeek() TimeRange           { return c.Last(7 * 24 * time.Hour) }

// CustomRange returns the range between start and end. A zero end means now.
func (c Clock) CustomRange(start, end time.Time) TimeRange {
	if end.IsZero() {
		end = c()
	}
	return TimeRange{StartMS: start.UnixMilli(), EndMS: end.UnixMilli()}
}
