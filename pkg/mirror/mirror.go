package mirror

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/calsync/calsync/internal/config"
	"github.com/calsync/calsync/internal/event_bus"
	"github.com/calsync/calsync/pkg/calendar"
	"github.com/calsync/calsync/pkg/google"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Events is the part of the local store the mirror reads and updates.
type Events interface {
	GetEventForSync(ctx context.Context, owner string, uid uuid.UUID) (calendar.Event, error)
	GetEventsToSync(ctx context.Context, owner string, maxAttempts int, limit int) ([]calendar.Event, error)
	RecordSyncResult(ctx context.Context, event calendar.Event, result calendar.SyncResult) error
}

// RemoteCalendar is one provider calendar of one owner.
type RemoteCalendar interface {
	InsertEvent(ctx context.Context, event calendar.Event) (google.RemoteEvent, error)
	UpdateEvent(ctx context.Context, event calendar.Event) (google.RemoteEvent, error)
	DeleteEvent(ctx context.Context, providerEventId string) error
}

type Remotes interface {
	Calendar(ctx context.Context, owner string, calendarId string) (RemoteCalendar, error)
}

// GoogleRemotes resolves remote calendars through the Google service.
type GoogleRemotes struct {
	service google.Service
}

func NewGoogleRemotes(service google.Service) *GoogleRemotes {
	return &GoogleRemotes{service: service}
}

func (g *GoogleRemotes) Calendar(ctx context.Context, owner string, calendarId string) (RemoteCalendar, error) {
	cal, err := g.service.GetCalendar(ctx, owner, calendarId)
	if err != nil {
		return nil, err
	}
	return cal, nil
}

type Stats struct {
	Pushed int
	Failed int
}

// Mirror copies local writes to the provider. Writes are dispatched in the background
// as they are published and the cron job retries whatever is still pending or failed.
type Mirror struct {
	events  Events
	remotes Remotes
	cfg     config.Mirror
	cron    *cron.Cron

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func NewMirror(events Events, remotes Remotes, cfg config.Mirror) *Mirror {
	logger := cron.PrintfLogger(log.StandardLogger())
	return &Mirror{
		events:   events,
		remotes:  remotes,
		cfg:      cfg,
		cron:     cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger))),
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// Subscribe dispatches every committed local write published on bus.
func (m *Mirror) Subscribe(bus *event_bus.EventBus) (unsubscribe func()) {
	if !m.cfg.Enabled {
		log.Info("Google Calendar mirror disabled")
		return func() {}
	}
	return event_bus.SubscribeTyped(bus, event_bus.CalendarEventChangedType, m.handleChanged)
}

func (m *Mirror) handleChanged(e event_bus.EventT[event_bus.CalendarEventChanged]) error {
	ctx := context.WithoutCancel(e.Context())
	changed := e.Data
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		event, err := m.events.GetEventForSync(ctx, changed.Owner, changed.UID)
		if err != nil {
			log.Errorf("failed to load %s event %s for mirroring: %v", changed.Operation, changed.UID, err)
			return
		}
		m.syncOne(ctx, event)
	}()
	return nil
}

// Start schedules the reconciliation job.
func (m *Mirror) Start() error {
	if !m.cfg.Enabled {
		return nil
	}
	_, err := m.cron.AddFunc(m.cfg.Schedule, func() {
		if _, err := m.Reconcile(context.Background()); err != nil {
			log.Errorf("mirror reconciliation failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid mirror schedule %q: %w", m.cfg.Schedule, err)
	}
	m.cron.Start()
	log.Infof("Google Calendar mirror reconciliation scheduled: %s", m.cfg.Schedule)
	return nil
}

// Stop waits for the running job and all dispatched writes.
func (m *Mirror) Stop() {
	<-m.cron.Stop().Done()
	m.wg.Wait()
}

// Wait blocks until all dispatched writes have finished.
func (m *Mirror) Wait() {
	m.wg.Wait()
}

// Reconcile retries pending and failed events of all owners that still have attempts left.
func (m *Mirror) Reconcile(ctx context.Context) (Stats, error) {
	events, err := m.events.GetEventsToSync(ctx, "", m.cfg.MaxAttempts, m.cfg.BatchSize)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get events to sync: %w", err)
	}
	stats := m.syncAll(ctx, events)
	if len(events) > 0 {
		log.Infof("mirror reconciliation finished: %d pushed, %d failed", stats.Pushed, stats.Failed)
	}
	return stats, nil
}

// Push mirrors every unsynced event of owner regardless of previous attempts.
func (m *Mirror) Push(ctx context.Context, owner string) (Stats, error) {
	var total Stats
	seen := make(map[uuid.UUID]struct{})
	for {
		events, err := m.events.GetEventsToSync(ctx, owner, math.MaxInt32, m.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("failed to get events to push: %w", err)
		}
		fresh := make([]calendar.Event, 0, len(events))
		for _, e := range events {
			if _, ok := seen[e.UID]; !ok {
				seen[e.UID] = struct{}{}
				fresh = append(fresh, e)
			}
		}
		if len(fresh) == 0 {
			break
		}
		stats := m.syncAll(ctx, fresh)
		total.Pushed += stats.Pushed
		total.Failed += stats.Failed
		if len(events) < m.cfg.BatchSize {
			break
		}
	}
	log.Infof("pushed events of %s: %d pushed, %d failed", owner, total.Pushed, total.Failed)
	return total, nil
}

func (m *Mirror) syncAll(ctx context.Context, events []calendar.Event) Stats {
	var stats Stats
	for _, e := range events {
		if m.syncOne(ctx, e) {
			stats.Pushed++
		} else {
			stats.Failed++
		}
	}
	return stats
}

func (m *Mirror) acquire(uid uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inflight[uid]; busy {
		return false
	}
	m.inflight[uid] = struct{}{}
	return true
}

func (m *Mirror) release(uid uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, uid)
}

// syncOne mirrors a single event and records the outcome. It reports whether the
// provider accepted the change.
func (m *Mirror) syncOne(ctx context.Context, event calendar.Event) bool {
	if !m.acquire(event.UID) {
		log.Debugf("event %s is already being mirrored, skipping", event.UID)
		return false
	}
	defer m.release(event.UID)

	result := m.mirror(ctx, event)
	if result.Err != nil {
		log.Warnf("failed to mirror event %s of %s: %v", event.UID, event.Owner, result.Err)
	}
	if err := m.events.RecordSyncResult(ctx, event, result); err != nil {
		log.Errorf("failed to record sync result of event %s: %v", event.UID, err)
		return false
	}
	return result.Err == nil
}

func (m *Mirror) mirror(ctx context.Context, event calendar.Event) calendar.SyncResult {
	if event.Archived() && event.ProviderEventId == "" {
		return calendar.SyncResult{}
	}
	remote, err := m.remotes.Calendar(ctx, event.Owner, event.CalendarId)
	if err != nil {
		return calendar.SyncResult{Err: err}
	}

	if event.Archived() {
		if err := remote.DeleteEvent(ctx, event.ProviderEventId); err != nil {
			return calendar.SyncResult{Err: err}
		}
		return calendar.SyncResult{}
	}

	var stored google.RemoteEvent
	if event.ProviderEventId == "" {
		stored, err = remote.InsertEvent(ctx, event)
	} else {
		stored, err = remote.UpdateEvent(ctx, event)
	}
	if err != nil {
		return calendar.SyncResult{Err: err}
	}
	return calendar.SyncResult{ProviderEventId: stored.Id, ProviderLink: stored.HtmlLink}
}
