package calendar

import (
	"context"
	"time"

	"github.com/calsync/calsync/pkg/calendar_event"
)

type ProviderStub struct {
	Events []calendar_event.WireEvent
	Err    error
	Calls  int
}

func (p *ProviderStub) ListEvents(ctx context.Context, owner string, calendarId string, from time.Time, to time.Time) ([]calendar_event.WireEvent, error) {
	p.Calls++
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Events, nil
}
