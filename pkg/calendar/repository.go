package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	StoreEvent(ctx context.Context, event Event) (Event, error)
	// GetEvent returns the event including archived ones.
	GetEvent(ctx context.Context, owner string, uid uuid.UUID) (Event, error)
	// GetEvents returns non-archived events of a calendar overlapping [from, to).
	GetEvents(ctx context.Context, owner string, calendarId string, from, to time.Time) ([]Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	ArchiveEvent(ctx context.Context, owner string, uid uuid.UUID, at time.Time) error
	// GetEventsBySyncStatus returns events in one of statuses with fewer than maxAttempts
	// failed attempts, oldest change first. An empty owner matches every owner.
	GetEventsBySyncStatus(ctx context.Context, owner string, statuses []SyncStatus, maxAttempts int, limit int) ([]Event, error)
	// UpdateSyncState records a sync attempt unless the event changed after seenUpdatedAt.
	// It reports whether the row was updated.
	UpdateSyncState(ctx context.Context, uid uuid.UUID, seenUpdatedAt time.Time, status SyncStatus, result SyncResult) (bool, error)
}

type RepositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepository(db *pgxpool.Pool) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
func (r *RepositoryImpl) getQueryer() interface {
	Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) pgx.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *RepositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &RepositoryImpl{db: r.db, tx: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

const eventColumns = `uid, owner, calendar_id, summary, description, location, attendees, all_day,
	start_time, end_time, time_zone, provider_event_id, provider_link, sync_status, sync_error,
	sync_attempts, archived_at, updated_at`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	var status string
	err := row.Scan(&e.UID, &e.Owner, &e.CalendarId, &e.Summary, &e.Description, &e.Location, &e.Attendees,
		&e.AllDay, &e.StartTime, &e.EndTime, &e.TimeZone, &e.ProviderEventId, &e.ProviderLink, &status,
		&e.SyncError, &e.SyncAttempts, &e.ArchivedAt, &e.UpdatedAt)
	if err != nil {
		return Event{}, err
	}
	e.SyncStatus = SyncStatus(status)
	return e, nil
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	events := make([]Event, 0, 10)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			err := fmt.Errorf("could not scan row: %w", err)
			log.Error(err)
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not read rows: %w", err)
	}
	return events, nil
}

func attendeesOrEmpty(attendees []string) []string {
	if attendees == nil {
		return []string{}
	}
	return attendees
}

func (r *RepositoryImpl) StoreEvent(ctx context.Context, event Event) (Event, error) {
	query := `INSERT INTO calendar_event (uid, owner, calendar_id, summary, description, location, attendees,
                            all_day, start_time, end_time, time_zone, sync_status, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
			  RETURNING ` + eventColumns

	if event.UID == uuid.Nil {
		event.UID = uuid.New()
	}
	if event.SyncStatus == "" {
		event.SyncStatus = SyncPending
	}
	stored, err := scanEvent(r.getQueryer().QueryRow(ctx, query,
		event.UID, event.Owner, event.CalendarId, event.Summary, event.Description, event.Location,
		attendeesOrEmpty(event.Attendees), event.AllDay, event.StartTime, event.EndTime, event.TimeZone,
		string(event.SyncStatus)))
	if err != nil {
		err := fmt.Errorf("could not store calendar event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return stored, nil
}

func (r *RepositoryImpl) GetEvent(ctx context.Context, owner string, uid uuid.UUID) (Event, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_event WHERE owner = $1 AND uid = $2`

	e, err := scanEvent(r.getQueryer().QueryRow(ctx, query, owner, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		err := fmt.Errorf("could not get calendar event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return e, nil
}

// GetEvents returns the events overlapping [from, to). Timed events are compared as
// instants; all-day events by calendar date in the zone of the window bounds.
func (r *RepositoryImpl) GetEvents(ctx context.Context, owner string, calendarId string, from, to time.Time) ([]Event, error) {
	query := `SELECT ` + eventColumns + `
              FROM calendar_event
              WHERE owner = $1
                AND calendar_id = $2
                AND archived_at IS NULL
                AND ((NOT all_day AND start_time < $3 AND end_time > $4)
                  OR (all_day AND start_time < $5 AND end_time > $6))
			  ORDER BY start_time, uid`

	firstDay, endDay := allDayRange(from, to)
	rows, err := r.getQueryer().Query(ctx, query, owner, calendarId, to, from, endDay, firstDay)
	if err != nil {
		err := fmt.Errorf("could not query calendar events: %w", err)
		log.Error(err)
		return nil, err
	}
	return collectEvents(rows)
}

// allDayRange maps a window to the UTC midnights all-day events are stored with: the
// wall date of from and the first wall date not touched by the window.
func allDayRange(from, to time.Time) (time.Time, time.Time) {
	midnight := func(t time.Time) time.Time {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	endDay := midnight(to)
	if h, m, sec := to.Clock(); h != 0 || m != 0 || sec != 0 || to.Nanosecond() != 0 {
		endDay = endDay.AddDate(0, 0, 1)
	}
	return midnight(from), endDay
}

func overlaps(e Event, from, to time.Time) bool {
	if e.AllDay {
		firstDay, endDay := allDayRange(from, to)
		return e.StartTime.Before(endDay) && e.EndTime.After(firstDay)
	}
	return e.StartTime.Before(to) && e.EndTime.After(from)
}

// UpdateEvent replaces the editable fields of a non-archived event and marks it pending.
func (r *RepositoryImpl) UpdateEvent(ctx context.Context, event Event) (Event, error) {
	query := `UPDATE calendar_event
			  SET summary = $3, description = $4, location = $5, attendees = $6, all_day = $7,
			      start_time = $8, end_time = $9, time_zone = $10,
			      sync_status = 'pending', sync_error = '', sync_attempts = 0, updated_at = now()
			  WHERE owner = $1 AND uid = $2 AND archived_at IS NULL
			  RETURNING ` + eventColumns

	updated, err := scanEvent(r.getQueryer().QueryRow(ctx, query,
		event.Owner, event.UID, event.Summary, event.Description, event.Location,
		attendeesOrEmpty(event.Attendees), event.AllDay, event.StartTime, event.EndTime, event.TimeZone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, ErrEventNotFound
		}
		err := fmt.Errorf("could not update calendar event: %w", err)
		log.Error(err)
		return Event{}, err
	}
	return updated, nil
}

// ArchiveEvent soft deletes the event so the mirror can still remove the provider copy.
// Archiving an archived event is a no-op.
func (r *RepositoryImpl) ArchiveEvent(ctx context.Context, owner string, uid uuid.UUID, at time.Time) error {
	query := `UPDATE calendar_event
			  SET archived_at = $3, sync_status = 'pending', sync_error = '', sync_attempts = 0, updated_at = now()
			  WHERE owner = $1 AND uid = $2 AND archived_at IS NULL`

	tag, err := r.getQueryer().Exec(ctx, query, owner, uid, at)
	if err != nil {
		err := fmt.Errorf("could not archive calendar event: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, owner, uid); err != nil {
			return err
		}
	}
	return nil
}

func (r *RepositoryImpl) GetEventsBySyncStatus(ctx context.Context, owner string, statuses []SyncStatus, maxAttempts int, limit int) ([]Event, error) {
	query := `SELECT ` + eventColumns + `
			  FROM calendar_event
			  WHERE sync_status = ANY($1)
			    AND sync_attempts < $2
			    AND ($3::text = '' OR owner = $3)
			  ORDER BY updated_at, uid
			  LIMIT $4`

	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	rows, err := r.getQueryer().Query(ctx, query, names, maxAttempts, owner, limit)
	if err != nil {
		err := fmt.Errorf("could not query events by sync status: %w", err)
		log.Error(err)
		return nil, err
	}
	return collectEvents(rows)
}

// UpdateSyncState records a mirror attempt. The provider reference of a successful
// attempt is always stored because it describes the remote copy that now exists. Status,
// attempts and error only apply while updated_at still equals seenUpdatedAt; the result
// reports whether they did.
func (r *RepositoryImpl) UpdateSyncState(ctx context.Context, uid uuid.UUID, seenUpdatedAt time.Time, status SyncStatus, result SyncResult) (bool, error) {
	query := `UPDATE calendar_event
			  SET provider_event_id = CASE WHEN $3 = 'failed' THEN provider_event_id ELSE $4 END,
			      provider_link = CASE WHEN $3 = 'failed' THEN provider_link ELSE $5 END,
			      sync_status = CASE WHEN updated_at = $2 THEN $3 ELSE sync_status END,
			      sync_error = CASE WHEN updated_at = $2 THEN $6 ELSE sync_error END,
			      sync_attempts = CASE
			          WHEN updated_at <> $2 THEN sync_attempts
			          WHEN $3 = 'failed' THEN sync_attempts + 1
			          ELSE 0 END
			  WHERE uid = $1
			  RETURNING updated_at = $2`

	var syncError string
	if result.Err != nil {
		syncError = result.Err.Error()
	}
	var applied bool
	err := r.getQueryer().QueryRow(ctx, query, uid, seenUpdatedAt, string(status),
		result.ProviderEventId, result.ProviderLink, syncError).Scan(&applied)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		err := fmt.Errorf("could not update sync state: %w", err)
		log.Error(err)
		return false, err
	}
	return applied, nil
}
