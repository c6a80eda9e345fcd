package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/calsync/calsync/pkg/calendar"
	"github.com/calsync/calsync/pkg/calendar_event"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

var ErrUnauthenticated = errors.New("user is unauthenticated, authentication is required")

// RemoteEvent identifies the Google copy of a stored event.
type RemoteEvent struct {
	Id       string
	HtmlLink string
}

// Calendar is one Google calendar of one owner.
type Calendar struct {
	service    *gcal.Service
	owner      string
	calendarId string
}

func newGoogleCalendar(service *gcal.Service, owner string, calendarId string) *Calendar {
	return &Calendar{
		service:    service,
		owner:      owner,
		calendarId: calendarId,
	}
}

func (c *Calendar) InsertEvent(ctx context.Context, event calendar.Event) (RemoteEvent, error) {
	log.Debugf("Adding event %s to calendar %s of %s", event.UID, c.calendarId, c.owner)
	result, err := c.service.Events.Insert(c.calendarId, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		err := fmt.Errorf("unable to insert event in Google Calendar: %w", err)
		log.Error(err)
		return RemoteEvent{}, err
	}
	return RemoteEvent{Id: result.Id, HtmlLink: result.HtmlLink}, nil
}

// UpdateEvent replaces the Google copy of event. A copy that was removed on the Google
// side is inserted again.
func (c *Calendar) UpdateEvent(ctx context.Context, event calendar.Event) (RemoteEvent, error) {
	if event.ProviderEventId == "" {
		return c.InsertEvent(ctx, event)
	}
	result, err := c.service.Events.Update(c.calendarId, event.ProviderEventId, toGoogleEvent(event)).Context(ctx).Do()
	if isGone(err) {
		log.Infof("event %s no longer exists in Google Calendar, inserting it again", event.ProviderEventId)
		return c.InsertEvent(ctx, event)
	}
	if err != nil {
		err := fmt.Errorf("unable to update event in Google Calendar: %w", err)
		log.Error(err)
		return RemoteEvent{}, err
	}
	return RemoteEvent{Id: result.Id, HtmlLink: result.HtmlLink}, nil
}

// DeleteEvent succeeds when the event is already gone.
func (c *Calendar) DeleteEvent(ctx context.Context, providerEventId string) error {
	err := c.service.Events.Delete(c.calendarId, providerEventId).Context(ctx).Do()
	if isGone(err) {
		log.Debugf("event %s already deleted from Google Calendar", providerEventId)
		return nil
	}
	if err != nil {
		err := fmt.Errorf("unable to delete event from Google Calendar: %w", err)
		log.Error(err)
		return err
	}
	return nil
}

// ListEvents returns the single (expanded) events overlapping [from, to).
func (c *Calendar) ListEvents(ctx context.Context, from time.Time, to time.Time) ([]calendar_event.WireEvent, error) {
	events := make([]calendar_event.WireEvent, 0)
	err := c.service.Events.List(c.calendarId).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.Status == "cancelled" {
					continue
				}
				events = append(events, fromGoogleEvent(item))
			}
			return nil
		})
	if err != nil {
		err := fmt.Errorf("unable to retrieve events from Google Calendar: %w", err)
		log.Error(err)
		return nil, err
	}
	return events, nil
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone)
}

func toGoogleEvent(event calendar.Event) *gcal.Event {
	w := calendar.EventToWire(event)
	g := &gcal.Event{
		Summary:     w.Summary,
		Description: w.Description,
		Location:    w.Location,
		Start:       toGoogleDateTime(w.Start),
		End:         toGoogleDateTime(w.End),
	}
	for _, a := range w.Attendees {
		g.Attendees = append(g.Attendees, &gcal.EventAttendee{Email: a.Email})
	}
	return g
}

func toGoogleDateTime(d *calendar_event.EventDateTime) *gcal.EventDateTime {
	if d == nil {
		return nil
	}
	return &gcal.EventDateTime{Date: d.Date, DateTime: d.DateTime, TimeZone: d.TimeZone}
}

func fromGoogleEvent(g *gcal.Event) calendar_event.WireEvent {
	w := calendar_event.WireEvent{
		Id:          g.Id,
		Summary:     g.Summary,
		Description: g.Description,
		Location:    g.Location,
		HtmlLink:    g.HtmlLink,
		Start:       fromGoogleDateTime(g.Start),
		End:         fromGoogleDateTime(g.End),
	}
	for _, a := range g.Attendees {
		if a != nil && a.Email != "" {
			w.Attendees = append(w.Attendees, calendar_event.Attendee{Email: a.Email})
		}
	}
	return w
}

func fromGoogleDateTime(d *gcal.EventDateTime) *calendar_event.EventDateTime {
	if d == nil {
		return nil
	}
	return &calendar_event.EventDateTime{Date: d.Date, DateTime: d.DateTime, TimeZone: d.TimeZone}
}
