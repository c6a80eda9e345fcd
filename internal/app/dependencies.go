package app

import (
	"github.com/calsync/calsync/internal/config"
	"github.com/calsync/calsync/internal/event_bus"
	"github.com/calsync/calsync/internal/utils"
	"github.com/calsync/calsync/pkg/calendar"
	"github.com/calsync/calsync/pkg/google"
	"github.com/calsync/calsync/pkg/mirror"
	"github.com/calsync/calsync/pkg/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/api/option"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Authenticator user.Authenticator
	EventBus      *event_bus.EventBus
	Clock         utils.Clock

	GoogleAuth    *google.GoogleAuth
	GoogleService google.Service
	GoogleHandler *google.Handler

	CalendarService *calendar.Service
	CalendarHandler *calendar.Handler

	Mirror        *mirror.Mirror
	MirrorHandler *mirror.Handler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) *Dependencies {
	return buildDependencies(cfg, calendar.NewRepository(db), google.NewTokenRepository(db))
}

func buildDependencies(cfg config.Application, calendarRepo calendar.Repository, tokens google.TokenRepository, googleOpts ...option.ClientOption) *Dependencies {
	deps := &Dependencies{}

	deps.Authenticator = user.NewTokenAuthenticator(cfg.Auth.Tokens)
	deps.EventBus = event_bus.NewEventBus()
	deps.Clock = &utils.SystemClock{}

	deps.GoogleAuth = google.NewGoogleAuth(tokens, cfg)
	deps.GoogleService = google.NewService(deps.GoogleAuth, googleOpts...)
	deps.GoogleHandler = google.NewHandler(deps.GoogleService)

	deps.CalendarService = calendar.NewService(calendarRepo, deps.EventBus,
		google.NewProviderEvents(deps.GoogleService), deps.Clock, cfg.Calendar.DefaultId)
	deps.CalendarHandler = calendar.NewHandler(deps.CalendarService)

	deps.Mirror = mirror.NewMirror(deps.CalendarService, mirror.NewGoogleRemotes(deps.GoogleService), cfg.Mirror)
	deps.Mirror.Subscribe(deps.EventBus)
	deps.MirrorHandler = mirror.NewHandler(deps.Mirror, cfg.Calendar.PushEnabled)

	return deps
}
