package calendar_event

import (
	"strings"
	"time"

	"github.com/calsync/calsync/internal/utils"
	log "github.com/sirupsen/logrus"
)

const (
	dateLayout         = "2006-01-02"
	floatingTimeLayout = "2006-01-02T15:04:05"
	defaultTimedLength = time.Hour
)

// WireOptions controls how an internal event is written back to the wire.
type WireOptions struct {
	AllDay bool
}

// Normalizer converts between WireEvent and CalendarEvent. Date-only values are
// interpreted in location; "now" fallbacks come from clock.
type Normalizer struct {
	clock    utils.Clock
	location *time.Location
}

func NewNormalizer(clock utils.Clock, location *time.Location) *Normalizer {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	if location == nil {
		location = time.Local
	}
	return &Normalizer{clock: clock, location: location}
}

func (n *Normalizer) Location() *time.Location {
	return n.location
}

// ToInternal never fails: unusable boundaries fall back to sane defaults so a single
// bad record cannot break a list.
func (n *Normalizer) ToInternal(w WireEvent) CalendarEvent {
	allDay := w.IsAllDay()

	start, ok := n.ParseBoundary(w.Start)
	var end time.Time
	if !ok {
		log.Debugf("event %q has no usable start %+v, defaulting to now", w.Id, w.Start)
		start = n.clock.Now().In(n.location)
		end = start.Add(defaultTimedLength)
	} else {
		var endOk bool
		end, endOk = n.ParseBoundary(w.End)
		switch {
		case !endOk && allDay:
			end = start
		case !endOk:
			end = start.Add(defaultTimedLength)
		case allDay:
			// exclusive provider end date -> inclusive last day
			end = end.AddDate(0, 0, -1)
		}
		if end.Before(start) {
			end = start
		}
	}

	title := strings.TrimSpace(w.Summary)
	if title == "" {
		title = UntitledEvent
	}

	var attendees []string
	for _, a := range w.Attendees {
		if a.Email != "" {
			attendees = append(attendees, a.Email)
		}
	}

	source := w
	return CalendarEvent{
		Id:          w.Id,
		Title:       title,
		Start:       start,
		End:         end,
		Description: w.Description,
		Location:    w.Location,
		Attendees:   attendees,
		SourceRef:   &source,
		allDay:      allDay,
	}
}

// ToInternalAll normalizes every item of a list, preserving order.
func (n *Normalizer) ToInternalAll(list []WireEvent) []CalendarEvent {
	events := make([]CalendarEvent, 0, len(list))
	for _, w := range list {
		events = append(events, n.ToInternal(w))
	}
	return events
}

// ToWire converts e back to the provider shape. All-day events get their exclusive
// end date back; optional fields that are empty are left out.
func (n *Normalizer) ToWire(e CalendarEvent, opts WireOptions) WireEvent {
	w := WireEvent{
		Id:          e.Id,
		Summary:     e.Title,
		Description: e.Description,
		Location:    e.Location,
	}
	for _, email := range e.Attendees {
		if email = strings.TrimSpace(email); email != "" {
			w.Attendees = append(w.Attendees, Attendee{Email: email})
		}
	}

	if opts.AllDay {
		end := e.End
		if end.Before(e.Start) {
			end = e.Start
		}
		w.Start = &EventDateTime{Date: e.Start.Format(dateLayout)}
		w.End = &EventDateTime{Date: end.AddDate(0, 0, 1).Format(dateLayout)}
		return w
	}

	w.Start = timedBoundary(e.Start)
	w.End = timedBoundary(e.End)
	return w
}

// ParseBoundary parses one wire boundary. It reports false when d is nil or carries no
// parseable date.
func (n *Normalizer) ParseBoundary(d *EventDateTime) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}

	if d.DateTime != "" {
		loc := n.location
		if d.TimeZone != "" {
			if tz, err := time.LoadLocation(d.TimeZone); err == nil {
				loc = tz
			} else {
				log.Debugf("ignoring unknown time zone %q: %v", d.TimeZone, err)
			}
		}
		if t, err := time.Parse(time.RFC3339, d.DateTime); err == nil {
			return t.In(loc), true
		}
		if t, err := time.ParseInLocation(floatingTimeLayout, d.DateTime, loc); err == nil {
			return t, true
		}
		return time.Time{}, false
	}

	if d.Date != "" {
		t, err := time.ParseInLocation(dateLayout, d.Date, n.location)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func timedBoundary(t time.Time) *EventDateTime {
	return &EventDateTime{
		DateTime: t.Format(time.RFC3339),
		TimeZone: zoneName(t.Location()),
	}
}

// zoneName returns loc's IANA name, or "" when the location has none.
func zoneName(loc *time.Location) string {
	name := loc.String()
	if name == "" || name == "Local" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}

var defaultNormalizer = NewNormalizer(utils.SystemClock{}, nil)

// ToInternal normalizes w with the system clock in local time.
func ToInternal(w WireEvent) CalendarEvent {
	return defaultNormalizer.ToInternal(w)
}

// ToWire converts e with the default normalizer.
func ToWire(e CalendarEvent, opts WireOptions) WireEvent {
	return defaultNormalizer.ToWire(e, opts)
}
