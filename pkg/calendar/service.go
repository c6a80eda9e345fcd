package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/calsync/calsync/internal/event_bus"
	"github.com/calsync/calsync/internal/utils"
	"github.com/calsync/calsync/pkg/calendar_event"
	"github.com/calsync/calsync/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Service struct {
	repo              Repository
	eventBus          *event_bus.EventBus
	provider          Provider
	clock             utils.Clock
	defaultCalendarId string
}

// NewService creates the local store service. provider may be nil when no remote
// calendar is configured.
func NewService(repo Repository, eventBus *event_bus.EventBus, provider Provider, clock utils.Clock, defaultCalendarId string) *Service {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &Service{
		repo:              repo,
		eventBus:          eventBus,
		provider:          provider,
		clock:             clock,
		defaultCalendarId: defaultCalendarId,
	}
}

func (s *Service) calendarId(calendarId string) string {
	if calendarId == "" {
		return s.defaultCalendarId
	}
	return calendarId
}

func (s *Service) CreateEvent(ctx context.Context, calendarId string, event Event) (Event, error) {
	owner, err := user.CurrentOwner(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}

	event.UID = uuid.New()
	event.Owner = owner
	event.CalendarId = s.calendarId(calendarId)
	event.SyncStatus = SyncPending
	stored, err := s.repo.StoreEvent(ctx, event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to store event: %w", err)
	}

	s.publish(ctx, stored, event_bus.CalendarEventCreated)
	return stored, nil
}

func (s *Service) UpdateEvent(ctx context.Context, uid uuid.UUID, event Event) (Event, error) {
	owner, err := user.CurrentOwner(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := event.Validate(); err != nil {
		return Event{}, err
	}

	event.UID = uid
	event.Owner = owner
	updated, err := s.repo.UpdateEvent(ctx, event)
	if err != nil {
		return Event{}, fmt.Errorf("failed to update event: %w", err)
	}

	s.publish(ctx, updated, event_bus.CalendarEventUpdated)
	return updated, nil
}

// ArchiveEvent soft deletes the event. Archiving an already archived event succeeds
// without publishing anything.
func (s *Service) ArchiveEvent(ctx context.Context, uid uuid.UUID) error {
	owner, err := user.CurrentOwner(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current user: %w", err)
	}

	var archived bool
	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		existing, err := repo.GetEvent(ctx, owner, uid)
		if err != nil {
			return err
		}
		if existing.Archived() {
			log.Debugf("event %s already archived", uid)
			return nil
		}
		archived = true
		return repo.ArchiveEvent(ctx, owner, uid, s.clock.Now())
	})
	if err != nil {
		return fmt.Errorf("failed to archive event: %w", err)
	}

	if archived {
		s.publish(ctx, Event{UID: uid, Owner: owner}, event_bus.CalendarEventArchived)
	}
	return nil
}

func (s *Service) GetEvents(ctx context.Context, calendarId string, from, to time.Time) ([]Event, error) {
	owner, err := user.CurrentOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return s.repo.GetEvents(ctx, owner, s.calendarId(calendarId), from, to)
}

// ListEvents returns the local events of the window in wire form, followed by the
// provider's events that are not mirrors of local ones. Provider failures are logged
// and only the local events are returned.
func (s *Service) ListEvents(ctx context.Context, calendarId string, from, to time.Time) (calendar_event.EventList, error) {
	local, err := s.GetEvents(ctx, calendarId, from, to)
	if err != nil {
		return nil, err
	}

	list := make(calendar_event.EventList, 0, len(local))
	mirrored := make(map[string]struct{}, len(local))
	for _, e := range local {
		list = append(list, EventToWire(e))
		if e.ProviderEventId != "" {
			mirrored[e.ProviderEventId] = struct{}{}
		}
	}
	if s.provider == nil {
		return list, nil
	}

	owner, _ := user.CurrentOwner(ctx)
	remote, err := s.provider.ListEvents(ctx, owner, s.calendarId(calendarId), from, to)
	if err != nil {
		log.Warnf("failed to list provider events for %s, returning local events only: %v", owner, err)
		return list, nil
	}
	for _, w := range remote {
		if _, ok := mirrored[w.Id]; ok {
			continue
		}
		list = append(list, w)
	}
	return list, nil
}

// GetEventForSync returns an event of owner regardless of its archive state.
func (s *Service) GetEventForSync(ctx context.Context, owner string, uid uuid.UUID) (Event, error) {
	return s.repo.GetEvent(ctx, owner, uid)
}

// GetEventsToSync returns pending and failed events that still have attempts left.
func (s *Service) GetEventsToSync(ctx context.Context, owner string, maxAttempts int, limit int) ([]Event, error) {
	return s.repo.GetEventsBySyncStatus(ctx, owner, []SyncStatus{SyncPending, SyncFailed}, maxAttempts, limit)
}

// RecordSyncResult stores the outcome of a mirror attempt for event. When the event
// changed meanwhile only the provider reference is kept and the event stays pending.
func (s *Service) RecordSyncResult(ctx context.Context, event Event, result SyncResult) error {
	status := SyncSynced
	if result.Err != nil {
		status = SyncFailed
	}
	applied, err := s.repo.UpdateSyncState(ctx, event.UID, event.UpdatedAt, status, result)
	if err != nil {
		return fmt.Errorf("failed to record sync result: %w", err)
	}
	if !applied {
		log.Debugf("event %s changed during sync, kept provider reference only", event.UID)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, e Event, op event_bus.CalendarOperation) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.CalendarEventChangedType, event_bus.CalendarEventChanged{
		UID:       e.UID,
		Owner:     e.Owner,
		Operation: op,
	}))
	if err != nil {
		// the mirror job picks the event up later
		log.Errorf("failed to publish %s for event %s: %v", op, e.UID, err)
	}
}
