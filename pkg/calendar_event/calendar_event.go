package calendar_event

import (
	"strings"
	"time"
)

const UntitledEvent = "Untitled Event"

// CalendarEvent is the normalized event rendered by the grid. Boundaries are
// concrete instants and End is inclusive for all-day events.
type CalendarEvent struct {
	Id          string
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Location    string
	Attendees   []string
	// SourceRef is the payload the event was built from.
	SourceRef *WireEvent

	allDay bool
}

// AllDay is derived from the wire payload and cannot be set directly.
func (e CalendarEvent) AllDay() bool {
	return e.allDay
}

// ProviderManaged reports whether the provider owns this event, which is signalled
// by a deep link in the payload. Such events cannot be archived locally.
func (e CalendarEvent) ProviderManaged() bool {
	return e.SourceRef != nil && e.SourceRef.HtmlLink != ""
}

// AttendeesDisplay joins attendee emails for an edit form.
func AttendeesDisplay(emails []string) string {
	return strings.Join(emails, ", ")
}

// AttendeesFromDisplay splits a comma separated attendee string, dropping blanks.
func AttendeesFromDisplay(display string) []string {
	var emails []string
	for _, part := range strings.Split(display, ",") {
		if email := strings.TrimSpace(part); email != "" {
			emails = append(emails, email)
		}
	}
	return emails
}
