package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Window is an inclusive range of calendar days in local time.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow truncates start and end to local midnight and checks start <= end.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: midnight(start), End: midnight(end)}
	if w.End.Before(w.Start) {
		return Window{}, fmt.Errorf("%w: start %s is after end %s", ErrInvalidWindow, w.Start.Format(dateLayout), w.End.Format(dateLayout))
	}
	return w, nil
}

// ParseWindow builds a Window from two YYYY-MM-DD dates.
func ParseWindow(start, end string) (Window, error) {
	s, err := time.ParseInLocation(dateLayout, start, time.Local)
	if err != nil {
		return Window{}, fmt.Errorf("%w: start date %q: %v", ErrInvalidWindow, start, err)
	}
	e, err := time.ParseInLocation(dateLayout, end, time.Local)
	if err != nil {
		return Window{}, fmt.Errorf("%w: end date %q: %v", ErrInvalidWindow, end, err)
	}
	return NewWindow(s, e)
}

// DefaultWindow returns [today-days, today] using the package clock.
func DefaultWindow(days int) Window {
	today := midnight(clock.Now())
	return Window{Start: today.AddDate(0, 0, -days), End: today}
}

// Bounds returns the half-open instant range [Start 00:00, End+1day 00:00).
func (w Window) Bounds() (from, to time.Time) {
	return w.Start, w.End.AddDate(0, 0, 1)
}

// BoundsMillis returns Bounds as epoch milliseconds, matching the raw time column.
func (w Window) BoundsMillis() (from, to int64) {
	f, t := w.Bounds()
	return f.UnixMilli(), t.UnixMilli()
}

// Contains reports whether t falls inside the window's half-open bounds.
func (w Window) Contains(t time.Time) bool {
	from, to := w.Bounds()
	return !t.Before(from) && t.Before(to)
}

func (w Window) String() string {
	return w.Start.Format(dateLayout) + ".." + w.End.Format(dateLayout)
}

// MarshalJSON renders the window as {"start": "YYYY-MM-DD", "end": "YYYY-MM-DD"}.
func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{w.Start.Format(dateLayout), w.End.Format(dateLayout)})
}

func midnight(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}
