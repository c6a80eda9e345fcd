package calendar

import (
	"context"
	"time"

	"github.com/calsync/calsync/pkg/calendar_event"
)

// Provider lists the events a remote calendar holds for an owner. Implementations
// return no events and no error when the owner has not connected the provider.
type Provider interface {
	ListEvents(ctx context.Context, owner string, calendarId string, from time.Time, to time.Time) ([]calendar_event.WireEvent, error)
}
