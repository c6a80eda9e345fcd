package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/calsync/calsync/pkg/calendar_event"
)

const dateLayout = "2006-01-02"

// wireParser reads boundaries in UTC so all-day dates are stored as UTC midnights.
var wireParser = calendar_event.NewNormalizer(nil, time.UTC)

// EventFromWire builds the editable fields of an Event from a request payload.
func EventFromWire(w calendar_event.WireEvent) (Event, error) {
	allDay := w.IsAllDay()

	start, ok := wireParser.ParseBoundary(w.Start)
	if !ok {
		return Event{}, fmt.Errorf("%w: start is missing or malformed", ErrValidation)
	}
	end, ok := wireParser.ParseBoundary(w.End)
	switch {
	case !ok && allDay:
		end = start.AddDate(0, 0, 1)
	case !ok:
		return Event{}, fmt.Errorf("%w: end is missing or malformed", ErrValidation)
	}

	var timeZone string
	if !allDay && w.Start.TimeZone != "" {
		timeZone = w.Start.TimeZone
	}

	var attendees []string
	for _, a := range w.Attendees {
		if email := strings.TrimSpace(a.Email); email != "" {
			attendees = append(attendees, email)
		}
	}

	e := Event{
		Summary:     strings.TrimSpace(w.Summary),
		Description: w.Description,
		Location:    w.Location,
		Attendees:   attendees,
		AllDay:      allDay,
		StartTime:   start,
		EndTime:     end,
		TimeZone:    timeZone,
	}
	return e, e.Validate()
}

// EventToWire renders a stored event. Local events never carry a provider link so
// clients treat them as locally managed.
func EventToWire(e Event) calendar_event.WireEvent {
	w := calendar_event.WireEvent{
		Id:          e.UID.String(),
		Summary:     e.Summary,
		Description: e.Description,
		Location:    e.Location,
	}
	for _, email := range e.Attendees {
		w.Attendees = append(w.Attendees, calendar_event.Attendee{Email: email})
	}

	if e.AllDay {
		w.Start = &calendar_event.EventDateTime{Date: e.StartTime.UTC().Format(dateLayout)}
		w.End = &calendar_event.EventDateTime{Date: e.EndTime.UTC().Format(dateLayout)}
		return w
	}

	loc := time.UTC
	if e.TimeZone != "" {
		if tz, err := time.LoadLocation(e.TimeZone); err == nil {
			loc = tz
		}
	}
	w.Start = &calendar_event.EventDateTime{DateTime: e.StartTime.In(loc).Format(time.RFC3339), TimeZone: e.TimeZone}
	w.End = &calendar_event.EventDateTime{DateTime: e.EndTime.In(loc).Format(time.RFC3339), TimeZone: e.TimeZone}
	return w
}
