package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/calsync/calsync/pkg/calendar_event"
	log "github.com/sirupsen/logrus"
)

const DefaultInterval = 60 * time.Second

type State int

const (
	Idle State = iota
	Fetching
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

type Trigger int

const (
	Navigation Trigger = iota
	Mutation
	Focus
	Visibility
	Interval
)

func (t Trigger) String() string {
	switch t {
	case Navigation:
		return "navigation"
	case Mutation:
		return "mutation"
	case Focus:
		return "focus"
	case Visibility:
		return "visibility"
	case Interval:
		return "interval"
	default:
		return "unknown"
	}
}

// Silent triggers keep the current list on screen until the new one arrives.
func (t Trigger) Silent() bool {
	return t != Navigation
}

// View receives the results of every fetch. Methods are called from the fetch
// goroutine and must be safe for concurrent use.
type View interface {
	SetLoading(loading bool)
	SetEvents(events []calendar_event.CalendarEvent)
	SetError(err error)
}

type FetchFunc func(ctx context.Context) ([]calendar_event.CalendarEvent, error)

type Option func(*Scheduler)

func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) { s.interval = interval }
}

// Scheduler runs at most one fetch at a time for a view. Triggers arriving while a
// fetch is in flight are dropped, not queued. The one exception is a credential
// change: the in-flight result belongs to the previous account, so it is discarded
// and a navigation fetch follows as soon as it resolves.
type Scheduler struct {
	fetch    FetchFunc
	view     View
	interval time.Duration

	mu       sync.Mutex
	state    State
	lastErr  error
	inflight chan struct{}
	stop     chan struct{}
	stopped  chan struct{}
	closed   bool
	// generation counts credential changes; a fetch started under an older one is stale.
	generation uint64
	// applyMu orders applying a fetch result against clearing on a credential change.
	applyMu sync.Mutex
}

func NewScheduler(fetch FetchFunc, view View, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetch:    fetch,
		view:     view,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the interval timer. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.closed = false
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.tick(s.interval, s.stop, s.stopped)
}

// Stop tears down the timer and waits for an in-flight fetch to be applied. Triggers
// after Stop are ignored until the next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}
	s.Wait()
}

func (s *Scheduler) tick(interval time.Duration, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	if interval <= 0 {
		<-stop
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Trigger(Interval)
		case <-stop:
			return
		}
	}
}

// Trigger starts a fetch unless one is already running. It reports whether a fetch
// was started.
func (s *Scheduler) Trigger(t Trigger) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Tracef("refresh: %s ignored, scheduler stopped", t)
		return false
	}
	if s.state == Fetching {
		s.mu.Unlock()
		log.Tracef("refresh: %s dropped, fetch in flight", t)
		return false
	}
	done := s.begin()
	s.mu.Unlock()

	s.launch(t, done)
	return true
}

// begin marks a fetch as in flight. It must be called with mu held.
func (s *Scheduler) begin() chan struct{} {
	s.state = Fetching
	done := make(chan struct{})
	s.inflight = done
	return done
}

func (s *Scheduler) launch(t Trigger, done chan struct{}) {
	log.Debugf("refresh: fetching on %s", t)
	if !t.Silent() {
		s.view.SetLoading(true)
		s.view.SetEvents(nil)
	}
	go s.run(t, s.currentGeneration(), done)
}

func (s *Scheduler) run(t Trigger, generation uint64, done chan struct{}) {
	events, err := s.fetch(context.Background())

	s.applyMu.Lock()
	stale := s.currentGeneration() != generation
	if stale {
		log.Debugf("refresh: discarding %s result fetched before a credential change", t)
	} else if err != nil {
		log.Errorf("refresh: %s fetch failed: %v", t, err)
		s.view.SetEvents(nil)
		s.view.SetError(err)
	} else {
		s.view.SetError(nil)
		s.view.SetEvents(events)
	}
	s.applyMu.Unlock()

	s.mu.Lock()
	if s.generation != generation && !s.closed {
		// start over with the current credential
		next := s.begin()
		s.mu.Unlock()
		close(done)
		s.launch(Navigation, next)
		return
	}
	switch {
	case stale:
		s.state = Idle
	case err != nil:
		s.state = Error
		s.lastErr = err
	default:
		s.state = Idle
		s.lastErr = nil
	}
	s.mu.Unlock()

	if !t.Silent() {
		s.view.SetLoading(false)
	}
	close(done)
}

func (s *Scheduler) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Scheduler) OnFocus() bool {
	return s.Trigger(Focus)
}

// OnVisibilityChange refreshes when the view becomes visible again.
func (s *Scheduler) OnVisibilityChange(visible bool) bool {
	if !visible {
		return false
	}
	return s.Trigger(Visibility)
}

// CredentialChanged drops the list fetched with the previous credential and fetches
// again. A fetch already in flight is not cancelled; its result is discarded and the
// navigation fetch starts when it resolves, in which case false is returned.
func (s *Scheduler) CredentialChanged() bool {
	s.applyMu.Lock()
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
	s.view.SetEvents(nil)
	s.applyMu.Unlock()
	return s.Trigger(Navigation)
}

// Wait blocks until the in-flight fetch, if any, has been applied to the view,
// including the follow-up fetch of a credential change.
func (s *Scheduler) Wait() {
	for {
		s.mu.Lock()
		done := s.inflight
		s.mu.Unlock()
		if done == nil {
			return
		}
		<-done
		s.mu.Lock()
		same := s.inflight == done
		s.mu.Unlock()
		if same {
			return
		}
	}
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
