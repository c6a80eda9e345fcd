package calendar_event

import (
	"bytes"
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// EventDateTime is one boundary of a provider event. All-day boundaries carry Date
// only, timed boundaries carry DateTime and optionally TimeZone.
type EventDateTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type Attendee struct {
	Email string `json:"email"`
}

// WireEvent is the Google-Calendar-style event exchanged with the backend.
type WireEvent struct {
	Id          string         `json:"id,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Attendees   []Attendee     `json:"attendees,omitempty"`
	Start       *EventDateTime `json:"start,omitempty"`
	End         *EventDateTime `json:"end,omitempty"`
	// HtmlLink is set only for events owned by the provider.
	HtmlLink string `json:"htmlLink,omitempty"`
}

func (d *EventDateTime) dateOnly() bool {
	return d != nil && d.Date != "" && d.DateTime == ""
}

// IsAllDay reports whether the payload encodes an all-day event: a date-only start
// and an end without a time of day.
func (w WireEvent) IsAllDay() bool {
	return w.Start.dateOnly() && (w.End == nil || w.End.DateTime == "")
}

// EventList is the list envelope of the REST boundary. It decodes {"events": [...]},
// {"items": [...]} and bare arrays; entries that are not event objects are dropped.
// It always encodes as {"events": [...]}.
type EventList []WireEvent

func (l *EventList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)

	var raw []json.RawMessage
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
	} else {
		var envelope struct {
			Events []json.RawMessage `json:"events"`
			Items  []json.RawMessage `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return err
		}
		raw = envelope.Events
		if raw == nil {
			raw = envelope.Items
		}
	}

	events := make(EventList, 0, len(raw))
	for i, item := range raw {
		var w WireEvent
		if err := json.Unmarshal(item, &w); err != nil {
			log.Warnf("discarding malformed event at index %d: %v", i, err)
			continue
		}
		events = append(events, w)
	}
	*l = events
	return nil
}

func (l EventList) MarshalJSON() ([]byte, error) {
	events := []WireEvent(l)
	if events == nil {
		events = []WireEvent{}
	}
	return json.Marshal(struct {
		Events []WireEvent `json:"events"`
	}{Events: events})
}
