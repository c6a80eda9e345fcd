package grid

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/calsync/calsync/internal/event_bus"
	"github.com/calsync/calsync/internal/utils"
	"github.com/calsync/calsync/pkg/archive"
	"github.com/calsync/calsync/pkg/calendar_event"
	"github.com/calsync/calsync/pkg/fetch_window"
	"github.com/calsync/calsync/pkg/refresh"
	"github.com/calsync/calsync/pkg/sync_client"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoDraft       = errors.New("no draft is open")
	ErrEventNotFound = errors.New("event is not in the current view")
)

type Client interface {
	ListEvents(ctx context.Context, window fetch_window.FetchWindow, calendarId string) ([]calendar_event.CalendarEvent, error)
	CreateEvent(ctx context.Context, draft sync_client.Draft) (calendar_event.CalendarEvent, error)
	UpdateEvent(ctx context.Context, patch sync_client.Patch) (calendar_event.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string) error
}

type Config struct {
	CalendarId      string
	Location        *time.Location
	RefreshInterval time.Duration
	Mode            fetch_window.ViewMode
	// Anchor defaults to now.
	Anchor time.Time
}

// Draft is the create or edit form. Id is empty for a new event. Attendees is the
// comma separated display string.
type Draft struct {
	Id          string
	Title       string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Description string
	Location    string
	Attendees   string
}

type Option func(*Controller)

func WithClock(clock utils.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithBus subscribes the controller to credential changes while it is started.
func WithBus(bus *event_bus.EventBus) Option {
	return func(c *Controller) { c.bus = bus }
}

// WithOnChange registers fn to be called after every change of the view state.
func WithOnChange(fn func()) Option {
	return func(c *Controller) { c.onChange = fn }
}

// Controller drives one calendar view: it keeps the window, the fetched events, the
// selection and the open draft, and routes every mutation through the client.
type Controller struct {
	client     Client
	calendarId string
	clock      utils.Clock
	bus        *event_bus.EventBus
	onChange   func()

	calculator  *fetch_window.Calculator
	scheduler   *refresh.Scheduler
	reconciler  *archive.Reconciler
	unsubscribe func()

	mu        sync.RWMutex
	window    fetch_window.FetchWindow
	anchor    time.Time
	events    []calendar_event.CalendarEvent
	loading   bool
	err       error
	selection map[string]struct{}
	draft     *Draft
}

func NewController(client Client, cfg Config, opts ...Option) (*Controller, error) {
	c := &Controller{
		client:     client,
		calendarId: cfg.CalendarId,
		clock:      utils.SystemClock{},
		selection:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	c.calculator = fetch_window.NewCalculator(c.clock, location)

	mode := cfg.Mode
	if mode == "" {
		mode = fetch_window.Month
	}
	anchor := cfg.Anchor
	if anchor.IsZero() {
		anchor = c.clock.Now()
	}
	window, err := c.calculator.Compute(mode, anchor)
	if err != nil {
		return nil, fmt.Errorf("failed to compute initial window: %w", err)
	}
	c.window, c.anchor = window, anchor

	interval := cfg.RefreshInterval
	if interval == 0 {
		interval = refresh.DefaultInterval
	}
	c.scheduler = refresh.NewScheduler(c.fetch, c, refresh.WithInterval(interval))
	c.reconciler = archive.NewReconciler(client, func() { c.scheduler.Trigger(refresh.Mutation) }, c)
	return c, nil
}

// Start begins periodic refreshes and fetches the initial window.
func (c *Controller) Start() {
	if c.bus != nil && c.unsubscribe == nil {
		c.unsubscribe = event_bus.SubscribeTyped(c.bus, event_bus.CredentialChangedType,
			func(e event_bus.EventT[event_bus.CredentialChanged]) error {
				log.Debugf("credential changed (signed in: %t), reloading view", e.Data.HasCredential)
				c.scheduler.CredentialChanged()
				return nil
			})
	}
	c.scheduler.Start()
	c.scheduler.Trigger(refresh.Navigation)
}

func (c *Controller) Stop() {
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.scheduler.Stop()
}

// Wait blocks until the in-flight fetch, if any, has been applied.
func (c *Controller) Wait() {
	c.scheduler.Wait()
}

func (c *Controller) Scheduler() *refresh.Scheduler {
	return c.scheduler
}

func (c *Controller) fetch(ctx context.Context) ([]calendar_event.CalendarEvent, error) {
	window := c.Window()
	return c.client.ListEvents(ctx, window, c.calendarId)
}

// Navigate moves the view to the window of mode around anchor and fetches it.
func (c *Controller) Navigate(mode fetch_window.ViewMode, anchor time.Time) error {
	window, err := c.calculator.Compute(mode, anchor)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.window, c.anchor = window, anchor
	c.mu.Unlock()

	log.Debugf("navigating to %s", window)
	c.scheduler.Trigger(refresh.Navigation)
	c.changed()
	return nil
}

// Step navigates n view units forward or backward from the current anchor.
func (c *Controller) Step(n int) error {
	c.mu.RLock()
	mode, anchor := c.window.ViewMode, c.anchor
	c.mu.RUnlock()
	return c.Navigate(mode, fetch_window.Step(mode, anchor, n))
}

// SelectSlot opens a create draft for [start, end). A slot spanning whole days from
// midnight to midnight becomes an all-day draft with an inclusive end.
func (c *Controller) SelectSlot(start, end time.Time) Draft {
	draft := Draft{Start: start, End: end}
	if spansWholeDays(start, end) {
		draft.AllDay = true
		draft.End = end.AddDate(0, 0, -1)
	}

	c.mu.Lock()
	c.draft = &draft
	c.mu.Unlock()
	c.changed()
	return draft
}

func spansWholeDays(start, end time.Time) bool {
	return end.After(start) && isMidnight(start) && isMidnight(end)
}

func isMidnight(t time.Time) bool {
	h, m, s := t.Clock()
	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}

// SelectEvent opens an edit draft for the event with id.
func (c *Controller) SelectEvent(id string) (Draft, error) {
	c.mu.Lock()
	idx := slices.IndexFunc(c.events, func(e calendar_event.CalendarEvent) bool { return e.Id == id })
	if idx < 0 {
		c.mu.Unlock()
		return Draft{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	e := c.events[idx]
	draft := Draft{
		Id:          e.Id,
		Title:       e.Title,
		Start:       e.Start,
		End:         e.End,
		AllDay:      e.AllDay(),
		Description: e.Description,
		Location:    e.Location,
		Attendees:   calendar_event.AttendeesDisplay(e.Attendees),
	}
	c.draft = &draft
	c.mu.Unlock()

	c.changed()
	return draft, nil
}

// EditDraft applies fn to the open draft.
func (c *Controller) EditDraft(fn func(d *Draft)) error {
	c.mu.Lock()
	if c.draft == nil {
		c.mu.Unlock()
		return ErrNoDraft
	}
	fn(c.draft)
	c.mu.Unlock()
	c.changed()
	return nil
}

func (c *Controller) Draft() (Draft, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.draft == nil {
		return Draft{}, false
	}
	return *c.draft, true
}

func (c *Controller) CancelDraft() {
	c.mu.Lock()
	c.draft = nil
	c.mu.Unlock()
	c.changed()
}

// SaveDraft creates or updates the event described by the open draft. On success the
// draft is closed and the view refreshed; on failure the draft stays open.
func (c *Controller) SaveDraft(ctx context.Context) (calendar_event.CalendarEvent, error) {
	draft, ok := c.Draft()
	if !ok {
		return calendar_event.CalendarEvent{}, ErrNoDraft
	}

	payload := sync_client.Draft{
		CalendarId:  c.calendarId,
		Title:       draft.Title,
		Start:       draft.Start,
		End:         draft.End,
		AllDay:      draft.AllDay,
		Description: draft.Description,
		Location:    draft.Location,
		Attendees:   calendar_event.AttendeesFromDisplay(draft.Attendees),
	}

	var saved calendar_event.CalendarEvent
	var err error
	if draft.Id == "" {
		saved, err = c.client.CreateEvent(ctx, payload)
	} else {
		saved, err = c.client.UpdateEvent(ctx, sync_client.Patch{Id: draft.Id, Draft: payload})
	}
	if err != nil {
		log.Errorf("failed to save event %q: %v", draft.Title, err)
		return calendar_event.CalendarEvent{}, err
	}

	c.mu.Lock()
	c.draft = nil
	c.mu.Unlock()
	c.scheduler.Trigger(refresh.Mutation)
	c.changed()
	return saved, nil
}

// ArchiveEvent archives a single event, as from its context menu.
func (c *Controller) ArchiveEvent(ctx context.Context, id string) archive.Result {
	return c.archive(ctx, []string{id})
}

// ArchiveSelected archives every selected event.
func (c *Controller) ArchiveSelected(ctx context.Context) archive.Result {
	return c.archive(ctx, c.Selection())
}

// DeleteFocused archives the event of the open edit draft and closes the draft.
func (c *Controller) DeleteFocused(ctx context.Context) (archive.Result, error) {
	draft, ok := c.Draft()
	if !ok || draft.Id == "" {
		return archive.Result{}, ErrNoDraft
	}
	result := c.archive(ctx, []string{draft.Id})
	c.CancelDraft()
	return result, nil
}

func (c *Controller) archive(ctx context.Context, ids []string) archive.Result {
	c.mu.RLock()
	deletable := make([]string, 0, len(ids))
	for _, id := range ids {
		idx := slices.IndexFunc(c.events, func(e calendar_event.CalendarEvent) bool { return e.Id == id })
		if idx >= 0 && c.events[idx].ProviderManaged() {
			log.Warnf("event %s is managed by the calendar provider, skipping archive", id)
			continue
		}
		deletable = append(deletable, id)
	}
	c.mu.RUnlock()

	result := c.reconciler.Archive(ctx, deletable)
	// skipped provider events leave the selection as well
	c.Deselect(ids...)
	c.changed()
	return result
}

func (c *Controller) ToggleSelection(id string) bool {
	c.mu.Lock()
	_, selected := c.selection[id]
	if selected {
		delete(c.selection, id)
	} else {
		c.selection[id] = struct{}{}
	}
	c.mu.Unlock()
	c.changed()
	return !selected
}

// Deselect removes ids from the selection.
func (c *Controller) Deselect(ids ...string) {
	c.mu.Lock()
	for _, id := range ids {
		delete(c.selection, id)
	}
	c.mu.Unlock()
}

// Selection returns the selected ids in sorted order.
func (c *Controller) Selection() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.selection))
	for id := range c.selection {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Controller) Events() []calendar_event.CalendarEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.events)
}

func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *Controller) Window() fetch_window.FetchWindow {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window
}

// SetLoading, SetEvents and SetError implement refresh.View.

func (c *Controller) SetLoading(loading bool) {
	c.mu.Lock()
	c.loading = loading
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) SetEvents(events []calendar_event.CalendarEvent) {
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) SetError(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	if err != nil {
		c.changed()
	}
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
