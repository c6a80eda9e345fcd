package grid

import (
	"context"
	"strconv"
	"sync"

	"github.com/calsync/calsync/pkg/calendar_event"
	"github.com/calsync/calsync/pkg/fetch_window"
	"github.com/calsync/calsync/pkg/sync_client"
)

// ClientStub is an in-memory Client. Events are kept in wire form and normalized on
// every list, like the real backend round trip.
type ClientStub struct {
	mu         sync.Mutex
	normalizer *calendar_event.Normalizer
	events     []calendar_event.WireEvent
	nextId     int

	ListCalls  int
	LastWindow fetch_window.FetchWindow
	Created    []sync_client.Draft
	Updated    []sync_client.Patch
	Deleted    []string
	ListErr    error
	SaveErr    error
	DeleteErrs map[string]error
}

func NewClientStub(normalizer *calendar_event.Normalizer, events ...calendar_event.WireEvent) *ClientStub {
	return &ClientStub{
		normalizer: normalizer,
		events:     events,
		DeleteErrs: make(map[string]error),
	}
}

func (s *ClientStub) ListEvents(_ context.Context, window fetch_window.FetchWindow, _ string) ([]calendar_event.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ListCalls++
	s.LastWindow = window
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.normalizer.ToInternalAll(s.events), nil
}

func (s *ClientStub) CreateEvent(_ context.Context, draft sync_client.Draft) (calendar_event.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return calendar_event.CalendarEvent{}, s.SaveErr
	}
	s.Created = append(s.Created, draft)
	s.nextId++
	w := s.toWire("stub-"+strconv.Itoa(s.nextId), draft)
	s.events = append(s.events, w)
	return s.normalizer.ToInternal(w), nil
}

func (s *ClientStub) UpdateEvent(_ context.Context, patch sync_client.Patch) (calendar_event.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return calendar_event.CalendarEvent{}, s.SaveErr
	}
	s.Updated = append(s.Updated, patch)
	w := s.toWire(patch.Id, patch.Draft)
	for i := range s.events {
		if s.events[i].Id == patch.Id {
			s.events[i] = w
		}
	}
	return s.normalizer.ToInternal(w), nil
}

func (s *ClientStub) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deleted = append(s.Deleted, id)
	if err := s.DeleteErrs[id]; err != nil {
		return err
	}
	for i := range s.events {
		if s.events[i].Id == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			break
		}
	}
	return nil
}

func (s *ClientStub) ListCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ListCalls
}

func (s *ClientStub) toWire(id string, draft sync_client.Draft) calendar_event.WireEvent {
	return s.normalizer.ToWire(calendar_event.CalendarEvent{
		Id:        id,
		Title:     draft.Title,
		Start:     draft.Start,
		End:       draft.End,
		Location:  draft.Location,
		Attendees: draft.Attendees,
	}, calendar_event.WireOptions{AllDay: draft.AllDay})
}
