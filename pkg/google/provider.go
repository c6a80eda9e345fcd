package google

import (
	"context"
	"errors"
	"time"

	"github.com/calsync/calsync/pkg/calendar_event"
)

// ProviderEvents lists Google events for the local store's merged listing.
type ProviderEvents struct {
	service Service
}

func NewProviderEvents(service Service) *ProviderEvents {
	return &ProviderEvents{service: service}
}

// ListEvents returns no events for owners that have not connected Google.
func (p *ProviderEvents) ListEvents(ctx context.Context, owner string, calendarId string, from time.Time, to time.Time) ([]calendar_event.WireEvent, error) {
	cal, err := p.service.GetCalendar(ctx, owner, calendarId)
	if errors.Is(err, ErrUnauthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cal.ListEvents(ctx, from, to)
}
