package domain

import "time"

// Calendar years accepted by ToEventTime. Values outside this range cannot be
// written to a TIMESTAMP column as a meaningful date and are treated as invalid.
const (
	minEventYear = 1
	maxEventYear = 9999
)

// ToEventTime converts epoch milliseconds into a local calendar timestamp.
// When ms is nil or out of range it returns the current time and false; the
// caller must record the fallback rather than treat the value as authoritative.
func ToEventTime(ms *int64) (time.Time, bool) {
	if ms == nil {
		return clock.Now(), false
	}

	t := time.UnixMilli(*ms).In(time.Local)
	if y := t.Year(); y < minEventYear || y > maxEventYear {
		return clock.Now(), false
	}

	return t, true
}
