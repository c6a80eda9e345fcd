package calendar

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/calsync/calsync/internal/test_utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	code := m.Run()
	if err := testcontainers.TerminateContainer(pgContainer); err != nil {
		log.Errorf("failed to terminate container: %s", err)
	}
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, *RepositoryImpl) {
	ctx := context.Background()
	db := openDb()
	repository := NewRepository(db)
	t.Cleanup(func() {
		db.Close()
		err := test_utils.Restore(ctx, pgContainer)
		require.NoError(t, err)
	})
	return ctx, repository
}

func storedEvent(owner, calendarId, summary string, start time.Time, length time.Duration) Event {
	return Event{
		Owner:      owner,
		CalendarId: calendarId,
		Summary:    summary,
		StartTime:  start,
		EndTime:    start.Add(length),
		Attendees:  []string{"a@example.edu"},
		TimeZone:   "Europe/Warsaw",
	}
}

func TestRepositoryImpl_StoreEvent(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	// when
	stored, err := repo.StoreEvent(ctx, storedEvent("registrar", "primary", "Interview", start, time.Hour))

	// then
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, stored.UID)
	assert.Equal(t, SyncPending, stored.SyncStatus)
	assert.True(t, start.Equal(stored.StartTime))
	assert.Equal(t, []string{"a@example.edu"}, stored.Attendees)
	assert.False(t, stored.UpdatedAt.IsZero())

	fetched, err := repo.GetEvent(ctx, "registrar", stored.UID)
	require.NoError(t, err)
	assert.Equal(t, stored.UID, fetched.UID)
	assert.Equal(t, "Europe/Warsaw", fetched.TimeZone)
}

func TestRepositoryImpl_StoreEventRejectsEmptyRange(t *testing.T) {
	ctx, repo := setupTestRepository(t)
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)

	_, err := repo.StoreEvent(ctx, storedEvent("registrar", "primary", "Broken", start, 0))

	assert.Error(t, err)
}

func TestRepositoryImpl_GetEvents(t *testing.T) {
	base := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	testCases := []struct {
		name          string
		eventStart    time.Duration // relative to base
		eventLength   time.Duration
		shouldBeFound bool
	}{
		{"event fully inside window", 30 * time.Minute, 15 * time.Minute, true},
		{"event contains window", -30 * time.Minute, 3 * time.Hour, true},
		{"event overlaps window start", -30 * time.Minute, time.Hour, true},
		{"event overlaps window end", 30 * time.Minute, time.Hour, true},
		{"event ends at window start", -time.Hour, time.Hour, false},
		{"event starts at window end", time.Hour, time.Hour, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, repo := setupTestRepository(t)
			stored, err := repo.StoreEvent(ctx, storedEvent("registrar", "primary", tc.name, base.Add(tc.eventStart), tc.eventLength))
			require.NoError(t, err)

			events, err := repo.GetEvents(ctx, "registrar", "primary", base, base.Add(time.Hour))

			require.NoError(t, err)
			if tc.shouldBeFound {
				require.Len(t, events, 1)
				assert.Equal(t, stored.UID, events[0].UID)
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

func TestRepositoryImpl_GetAllDayEventsByDate(t *testing.T) {
	pacific := time.FixedZone("PDT", -7*60*60)
	tokyo := time.FixedZone("JST", 9*60*60)
	testCases := []struct {
		name          string
		day           time.Time
		from, to      time.Time
		shouldBeFound bool
	}{
		{"first day of window west of UTC", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 1, 0, 0, 0, 0, pacific), time.Date(2024, 6, 1, 0, 0, 0, 0, pacific), true},
		{"day after window west of UTC", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 1, 0, 0, 0, 0, pacific), time.Date(2024, 6, 1, 0, 0, 0, 0, pacific), false},
		{"day before window east of UTC", time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 1, 0, 0, 0, 0, tokyo), time.Date(2024, 6, 1, 0, 0, 0, 0, tokyo), false},
		{"last day of window east of UTC", time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 1, 0, 0, 0, 0, tokyo), time.Date(2024, 6, 1, 0, 0, 0, 0, tokyo), true},
		{"window ending mid day", time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 5, 2, 12, 0, 0, 0, pacific), time.Date(2024, 5, 3, 8, 0, 0, 0, pacific), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			ctx, repo := setupTestRepository(t)
			event := storedEvent("registrar", "primary", tc.name, tc.day, 24*time.Hour)
			event.AllDay = true
			_, err := repo.StoreEvent(ctx, event)
			require.NoError(t, err)

			// when
			events, err := repo.GetEvents(ctx, "registrar", "primary", tc.from, tc.to)

			// then
			require.NoError(t, err)
			if tc.shouldBeFound {
				assert.Len(t, events, 1)
			} else {
				assert.Empty(t, events)
			}
		})
	}
}

func TestRepositoryImpl_GetEventsIsScoped(t *testing.T) {
	ctx, repo := setupTestRepository(t)
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	_, err := repo.StoreEvent(ctx, storedEvent("registrar", "primary", "Mine", start, time.Hour))
	require.NoError(t, err)
	_, err = repo.StoreEvent(ctx, storedEvent("dean", "primary", "Someone else's", start, time.Hour))
	require.NoError(t, err)
	_, err = repo.StoreEvent(ctx, storedEvent("registrar", "other", "Other calendar", start, time.Hour))
	require.NoError(t, err)

	events, err := repo.GetEvents(ctx, "registrar", "primary", start.Add(-time.Hour), start.Add(2*time.Hour))

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Mine", events[0].Summary)
}

func TestRepositoryImpl_UpdateEvent(t *testing.T) {
	ctx, repo := setupTestRepository(t)
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	stored, err := repo.StoreEvent(ctx, storedEvent("registrar", "primary", "Interview", start, time.Hour))
	require.NoError(t, err)
	_, err = repo.UpdateSyncState(ctx, stored.UID, stored.UpdatedAt, SyncFailed, SyncResult{Err: errors.New("boom")})
	require.NoError(t, err)

	stored.Summary = "Interview (moved)"
	stored.Attendees = nil
	updated, err := repo.UpdateEvent(ctx, stored)

	require.NoError(t, err)
	assert.Equal(t, "Interview (moved)", updated.Summary)
	assert.Empty(t, updated.Attendees)
	assert.Equal(t, SyncPending, updated.SyncStatus)
	assert.Equal(t, 0, updated.SyncAttempts)
	assert.Empty(t, updated.SyncError)

	stored.UID = uuid.New()
	_, err = repo.UpdateEvent(ctx, stored)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestRepositoryImpl_ArchiveEvent(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	stored, err := repo.StoreEvent(ctx, storedEvent("registrar", "primary", "Interview", start, time.Hour))
	require.NoError(t, err)
	archivedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// when
	err = repo.ArchiveEvent(ctx, "registrar", stored.UID, archivedAt)
	require.NoError(t, err)
	again := repo.ArchiveEvent(ctx, "registrar", stored.UID, archivedAt.Add(time.Hour))
	missing := repo.ArchiveEvent(ctx, "registrar", uuid.New(), archivedAt)

	// then
	assert.NoError(t, again)
	assert.ErrorIs(t, missing, ErrEventNotFound)
	archived, err := repo.GetEvent(ctx, "registrar", stored.UID)
	require.NoError(t, err)
	require.NotNil(t, archived.ArchivedAt)
	assert.True(t, archivedAt.Equal(*archived.ArchivedAt))
	events, err := repo.GetEvents(ctx, "registrar", "primary", start.Add(-time.Hour), start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = repo.UpdateEvent(ctx, archived)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestRepositoryImpl_SyncState(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	first, err := repo.StoreEvent(ctx, storedEvent("registrar", "primary", "First", start, time.Hour))
	require.NoError(t, err)
	second, err := repo.StoreEvent(ctx, storedEvent("dean", "primary", "Second", start, time.Hour))
	require.NoError(t, err)

	// when
	applied, err := repo.UpdateSyncState(ctx, first.UID, first.UpdatedAt, SyncSynced,
		SyncResult{ProviderEventId: "g-1", ProviderLink: "https://calendar.google.com/g-1"})
	require.NoError(t, err)
	require.True(t, applied)
	for i := 0; i < 2; i++ {
		applied, err = repo.UpdateSyncState(ctx, second.UID, second.UpdatedAt, SyncFailed, SyncResult{Err: errors.New("quota")})
		require.NoError(t, err)
		require.True(t, applied)
	}
	stale, err := repo.UpdateSyncState(ctx, first.UID, first.UpdatedAt.Add(-time.Second), SyncFailed, SyncResult{Err: errors.New("late")})
	require.NoError(t, err)

	// then
	assert.False(t, stale)

	synced, err := repo.GetEvent(ctx, "registrar", first.UID)
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, synced.SyncStatus)
	assert.Equal(t, "g-1", synced.ProviderEventId)
	assert.Equal(t, "https://calendar.google.com/g-1", synced.ProviderLink)

	failed, err := repo.GetEvent(ctx, "dean", second.UID)
	require.NoError(t, err)
	assert.Equal(t, SyncFailed, failed.SyncStatus)
	assert.Equal(t, 2, failed.SyncAttempts)
	assert.Equal(t, "quota", failed.SyncError)

	toSync, err := repo.GetEventsBySyncStatus(ctx, "", []SyncStatus{SyncPending, SyncFailed}, 5, 10)
	require.NoError(t, err)
	require.Len(t, toSync, 1)
	assert.Equal(t, second.UID, toSync[0].UID)

	exhausted, err := repo.GetEventsBySyncStatus(ctx, "", []SyncStatus{SyncFailed}, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, exhausted)

	otherOwner, err := repo.GetEventsBySyncStatus(ctx, "registrar", []SyncStatus{SyncPending, SyncFailed}, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, otherOwner)
}

func TestRepositoryImpl_SyncStateOfChangedEvent(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	stored, err := repo.StoreEvent(ctx, storedEvent("registrar", "primary", "Interview", start, time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.ArchiveEvent(ctx, "registrar", stored.UID, start))

	// when
	applied, err := repo.UpdateSyncState(ctx, stored.UID, stored.UpdatedAt, SyncSynced,
		SyncResult{ProviderEventId: "g-1", ProviderLink: "https://calendar.google.com/g-1"})

	// then
	require.NoError(t, err)
	assert.False(t, applied)
	archived, err := repo.GetEvent(ctx, "registrar", stored.UID)
	require.NoError(t, err)
	assert.Equal(t, "g-1", archived.ProviderEventId)
	assert.Equal(t, "https://calendar.google.com/g-1", archived.ProviderLink)
	assert.Equal(t, SyncPending, archived.SyncStatus)
	assert.Equal(t, 0, archived.SyncAttempts)
}

func TestRepositoryImpl_SyncStateOfUnknownEvent(t *testing.T) {
	ctx, repo := setupTestRepository(t)

	applied, err := repo.UpdateSyncState(ctx, uuid.New(), time.Now(), SyncSynced, SyncResult{ProviderEventId: "g-1"})

	require.NoError(t, err)
	assert.False(t, applied)
}

func TestRepositoryImpl_WithTransaction(t *testing.T) {
	ctx, repo := setupTestRepository(t)
	start := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	rollback := errors.New("rollback")

	err := repo.WithTransaction(ctx, func(txRepo Repository) error {
		_, err := txRepo.StoreEvent(ctx, storedEvent("registrar", "primary", "Temporary", start, time.Hour))
		require.NoError(t, err)
		return rollback
	})

	assert.ErrorIs(t, err, rollback)
	events, err := repo.GetEvents(ctx, "registrar", "primary", start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}
