package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEventNotFound = errors.New("event not found")
	ErrValidation    = errors.New("invalid event")
)

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// Event is a locally stored calendar event. EndTime is exclusive; for all-day events
// both boundaries are midnights in UTC.
type Event struct {
	UID             uuid.UUID
	Owner           string
	CalendarId      string
	Summary         string
	Description     string
	Location        string
	Attendees       []string
	AllDay          bool
	StartTime       time.Time
	EndTime         time.Time
	TimeZone        string
	ProviderEventId string
	ProviderLink    string
	SyncStatus      SyncStatus
	SyncError       string
	SyncAttempts    int
	ArchivedAt      *time.Time
	UpdatedAt       time.Time
}

func (e Event) Archived() bool {
	return e.ArchivedAt != nil
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Summary) == "" {
		return fmt.Errorf("%w: summary is required", ErrValidation)
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrValidation)
	}
	if !e.EndTime.After(e.StartTime) {
		return fmt.Errorf("%w: end must be after start", ErrValidation)
	}
	return nil
}

// SyncResult is the outcome of one attempt to mirror an event to the provider.
type SyncResult struct {
	ProviderEventId string
	ProviderLink    string
	Err             error
}
