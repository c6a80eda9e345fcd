package calendar

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type RepositoryStub struct {
	mu             sync.RWMutex
	items          map[uuid.UUID]Event
	tick           time.Time
	transactionErr error
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		items: make(map[uuid.UUID]Event),
		tick:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.mu.Lock()
	originalItems := make(map[uuid.UUID]Event, len(r.items))
	for k, v := range r.items {
		originalItems[k] = v
	}
	failWith := r.transactionErr
	r.transactionErr = nil
	r.mu.Unlock()

	err := fn(r)
	if err == nil {
		err = failWith
	}
	if err != nil {
		r.mu.Lock()
		r.items = originalItems
		r.mu.Unlock()
	}
	return err
}

// now returns a strictly increasing timestamp so updated_at guards behave like in Postgres.
func (r *RepositoryStub) now() time.Time {
	r.tick = r.tick.Add(time.Millisecond)
	return r.tick
}

func (r *RepositoryStub) StoreEvent(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.UID == uuid.Nil {
		event.UID = uuid.New()
	}
	if event.SyncStatus == "" {
		event.SyncStatus = SyncPending
	}
	event.UpdatedAt = r.now()
	r.items[event.UID] = event
	return event, nil
}

func (r *RepositoryStub) GetEvent(ctx context.Context, owner string, uid uuid.UUID) (Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.items[uid]
	if !ok || e.Owner != owner {
		return Event{}, ErrEventNotFound
	}
	return e, nil
}

func (r *RepositoryStub) GetEvents(ctx context.Context, owner string, calendarId string, from, to time.Time) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Event, 0)
	for _, e := range r.items {
		if e.Owner == owner && e.CalendarId == calendarId && !e.Archived() && overlaps(e, from, to) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

func (r *RepositoryStub) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[event.UID]
	if !ok || existing.Owner != event.Owner || existing.Archived() {
		return Event{}, ErrEventNotFound
	}
	existing.Summary = event.Summary
	existing.Description = event.Description
	existing.Location = event.Location
	existing.Attendees = event.Attendees
	existing.AllDay = event.AllDay
	existing.StartTime = event.StartTime
	existing.EndTime = event.EndTime
	existing.TimeZone = event.TimeZone
	existing.SyncStatus = SyncPending
	existing.SyncError = ""
	existing.SyncAttempts = 0
	existing.UpdatedAt = r.now()
	r.items[event.UID] = existing
	return existing, nil
}

func (r *RepositoryStub) ArchiveEvent(ctx context.Context, owner string, uid uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[uid]
	if !ok || e.Owner != owner {
		return ErrEventNotFound
	}
	if e.Archived() {
		return nil
	}
	e.ArchivedAt = &at
	e.SyncStatus = SyncPending
	e.SyncError = ""
	e.SyncAttempts = 0
	e.UpdatedAt = r.now()
	r.items[uid] = e
	return nil
}

func (r *RepositoryStub) GetEventsBySyncStatus(ctx context.Context, owner string, statuses []SyncStatus, maxAttempts int, limit int) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Event, 0)
	for _, e := range r.items {
		if slices.Contains(statuses, e.SyncStatus) && e.SyncAttempts < maxAttempts && (owner == "" || e.Owner == owner) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *RepositoryStub) UpdateSyncState(ctx context.Context, uid uuid.UUID, seenUpdatedAt time.Time, status SyncStatus, result SyncResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.items[uid]
	if !ok {
		return false, nil
	}
	if status != SyncFailed {
		e.ProviderEventId = result.ProviderEventId
		e.ProviderLink = result.ProviderLink
	}
	applied := e.UpdatedAt.Equal(seenUpdatedAt)
	if applied {
		e.SyncStatus = status
		if status == SyncFailed {
			e.SyncAttempts++
			if result.Err != nil {
				e.SyncError = result.Err.Error()
			}
		} else {
			e.SyncAttempts = 0
			e.SyncError = ""
		}
	}
	r.items[uid] = e
	return applied, nil
}

// SetTransactionError makes the next transaction roll back with err.
func (r *RepositoryStub) SetTransactionError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transactionErr = err
}

// GetAllEvents returns every stored event, archived ones included.
func (r *RepositoryStub) GetAllEvents() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Event, 0, len(r.items))
	for _, event := range r.items {
		result = append(result, event)
	}
	return result
}
