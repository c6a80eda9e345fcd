package fetch_window

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calsync/calsync/internal/utils"
)

type ViewMode string

const (
	Month  ViewMode = "month"
	Week   ViewMode = "week"
	Day    ViewMode = "day"
	Agenda ViewMode = "agenda"
)

var (
	ErrInvalidAnchor   = errors.New("invalid anchor date")
	ErrUnknownViewMode = errors.New("unknown view mode")
)

// FetchWindow is a half-open [Start, End) range requested from the backend.
type FetchWindow struct {
	Start    time.Time
	End      time.Time
	ViewMode ViewMode
}

func (w FetchWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

func (w FetchWindow) String() string {
	return fmt.Sprintf("%s [%s, %s)", w.ViewMode, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

type Calculator struct {
	clock    utils.Clock
	location *time.Location
}

func NewCalculator(clock utils.Clock, location *time.Location) *Calculator {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if location == nil {
		location = time.Local
	}
	return &Calculator{clock: clock, location: location}
}

// Compute returns the window for mode around anchor. Calendar boundaries are midnights
// in the calculator location; agenda ignores the anchor and rolls forward from now.
func (c *Calculator) Compute(mode ViewMode, anchor time.Time) (FetchWindow, error) {
	if anchor.IsZero() {
		return FetchWindow{}, ErrInvalidAnchor
	}
	day := startOfDay(anchor.In(c.location))

	var start, end time.Time
	switch mode {
	case Month:
		start = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, c.location)
		end = start.AddDate(0, 1, 0)
	case Week:
		delta := int(day.Weekday() - time.Sunday)
		start = day.AddDate(0, 0, -delta)
		end = start.AddDate(0, 0, 7)
	case Day:
		start = day
		end = start.AddDate(0, 0, 1)
	case Agenda:
		start = c.clock.Now().In(c.location)
		end = start.AddDate(0, 1, 0)
	default:
		return FetchWindow{}, fmt.Errorf("%w: %q", ErrUnknownViewMode, mode)
	}
	return FetchWindow{Start: start, End: end, ViewMode: mode}, nil
}

// Step moves anchor one view unit forward (n > 0) or backward (n < 0).
func Step(mode ViewMode, anchor time.Time, n int) time.Time {
	switch mode {
	case Month, Agenda:
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		return first.AddDate(0, n, 0)
	case Week:
		return anchor.AddDate(0, 0, 7*n)
	default:
		return anchor.AddDate(0, 0, n)
	}
}

func ParseViewMode(s string) (ViewMode, error) {
	switch mode := ViewMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case Month, Week, Day, Agenda:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownViewMode, s)
	}
}

// ParseAnchor accepts a calendar date (2006-01-02) or an RFC3339 timestamp.
func ParseAnchor(s string, location *time.Location) (time.Time, error) {
	if location == nil {
		location = time.Local
	}
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02", s, location); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidAnchor, s, err)
	}
	return t.In(location), nil
}

var defaultCalculator = NewCalculator(utils.SystemClock{}, nil)

// Compute uses the system clock in local time.
func Compute(mode ViewMode, anchor time.Time) (FetchWindow, error) {
	return defaultCalculator.Compute(mode, anchor)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
