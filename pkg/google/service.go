package google

import (
	"context"
	"fmt"

	"github.com/calsync/calsync/pkg/user"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

type CalendarItem struct {
	ID      string
	Summary string
}

type Service interface {
	GetCalendar(ctx context.Context, owner string, calendarId string) (*Calendar, error)
	ListCalendars(ctx context.Context) ([]CalendarItem, error)
}

type ServiceImpl struct {
	auth          *GoogleAuth
	clientOptions []option.ClientOption
}

// NewService creates the Google Calendar service. Extra client options are appended
// after the owner's authenticated HTTP client.
func NewService(auth *GoogleAuth, opts ...option.ClientOption) *ServiceImpl {
	return &ServiceImpl{
		auth:          auth,
		clientOptions: opts,
	}
}

// GetCalendar takes the owner explicitly because the mirror runs outside of a request.
func (s *ServiceImpl) GetCalendar(ctx context.Context, owner string, calendarId string) (*Calendar, error) {
	service, err := s.prepareGoogleService(ctx, owner)
	if err != nil {
		return nil, err
	}
	return newGoogleCalendar(service, owner, calendarId), nil
}

func (s *ServiceImpl) ListCalendars(ctx context.Context) ([]CalendarItem, error) {
	owner, err := user.CurrentOwner(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	googleService, err := s.prepareGoogleService(ctx, owner)
	if err != nil {
		return nil, err
	}
	calendars, err := googleService.CalendarList.List().Context(ctx).Do()
	if err != nil {
		err := fmt.Errorf("unable to retrieve calendars from Google Calendar: %w", err)
		log.Error(err)
		return nil, err
	}
	googleCalendars := make([]CalendarItem, 0, len(calendars.Items))
	for _, cal := range calendars.Items {
		googleCalendars = append(googleCalendars, CalendarItem{
			ID:      cal.Id,
			Summary: cal.Summary,
		})
	}
	return googleCalendars, nil
}

func (s *ServiceImpl) prepareGoogleService(ctx context.Context, owner string) (*calendar.Service, error) {
	client, err := s.auth.getClient(ctx, owner)
	if err != nil {
		err := fmt.Errorf("unable to retrieve Google auth client: %w", err)
		log.Error(err)
		return nil, err
	}
	if client == nil {
		log.Debugf("%s is unauthenticated, authentication is required", owner)
		return nil, ErrUnauthenticated
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, s.clientOptions...)
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		err := fmt.Errorf("unable to retrieve Calendar client: %w", err)
		log.Error(err)
		return nil, err
	}

	return service, nil
}
