package mirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/calsync/calsync/pkg/calendar"
	"github.com/calsync/calsync/pkg/google"
)

// RemoteStub is an in-memory provider serving every owner except the disconnected ones.
type RemoteStub struct {
	mu           sync.Mutex
	events       map[string]calendar.Event
	nextId       int
	disconnected map[string]bool

	InsertErr error
	UpdateErr error
	DeleteErr error
	Inserts   int
	Updates   int
	Deletes   int
}

func NewRemoteStub() *RemoteStub {
	return &RemoteStub{
		events:       make(map[string]calendar.Event),
		disconnected: make(map[string]bool),
	}
}

func (s *RemoteStub) Disconnect(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected[owner] = true
}

func (s *RemoteStub) SetErrors(insertErr, updateErr, deleteErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InsertErr, s.UpdateErr, s.DeleteErr = insertErr, updateErr, deleteErr
}

func (s *RemoteStub) Calendar(ctx context.Context, owner string, calendarId string) (RemoteCalendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected[owner] {
		return nil, google.ErrUnauthenticated
	}
	return s, nil
}

func (s *RemoteStub) InsertEvent(ctx context.Context, event calendar.Event) (google.RemoteEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inserts++
	if s.InsertErr != nil {
		return google.RemoteEvent{}, s.InsertErr
	}
	s.nextId++
	id := fmt.Sprintf("remote-%d", s.nextId)
	s.events[id] = event
	return google.RemoteEvent{Id: id, HtmlLink: "https://calendar.google.com/event?eid=" + id}, nil
}

func (s *RemoteStub) UpdateEvent(ctx context.Context, event calendar.Event) (google.RemoteEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Updates++
	if s.UpdateErr != nil {
		return google.RemoteEvent{}, s.UpdateErr
	}
	s.events[event.ProviderEventId] = event
	return google.RemoteEvent{Id: event.ProviderEventId, HtmlLink: "https://calendar.google.com/event?eid=" + event.ProviderEventId}, nil
}

func (s *RemoteStub) DeleteEvent(ctx context.Context, providerEventId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Deletes++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.events, providerEventId)
	return nil
}

func (s *RemoteStub) Get(providerEventId string) (calendar.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[providerEventId]
	return e, ok
}

func (s *RemoteStub) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *RemoteStub) Calls() (inserts, updates, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Inserts, s.Updates, s.Deletes
}
