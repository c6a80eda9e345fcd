package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func TestHandler_ListCalendars(t *testing.T) {
	auth, tokens, fake := setupAuthTest(t)
	handler := NewHandler(NewService(auth, option.WithEndpoint(fake.server.URL+"/")))

	t.Run("should return 403 when Google is not connected", func(t *testing.T) {
		w := httptest.NewRecorder()

		handler.ListCalendars(w, authenticated(httptest.NewRequest(http.MethodGet, "/api/integrations/google/calendars", nil), "registrar"))

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("should list calendars", func(t *testing.T) {
		tokens.SetToken("registrar", &oauth2.Token{AccessToken: "access-1", Expiry: time.Now().Add(time.Hour)})
		w := httptest.NewRecorder()

		handler.ListCalendars(w, authenticated(httptest.NewRequest(http.MethodGet, "/api/integrations/google/calendars", nil), "registrar"))

		require.Equal(t, http.StatusOK, w.Code)
		var items []CalendarItemDto
		require.NoError(t, json.NewDecoder(w.Body).Decode(&items))
		require.Len(t, items, 2)
		assert.Equal(t, CalendarItemDto{Id: "primary", Summary: "Registrar"}, items[0])
	})
}

func TestProviderEvents_ListEvents(t *testing.T) {
	auth, tokens, fake := setupAuthTest(t)
	provider := NewProviderEvents(NewService(auth, option.WithEndpoint(fake.server.URL+"/")))
	fake.put(&gcal.Event{
		Id:       "g-1",
		Summary:  "Board meeting",
		HtmlLink: "https://calendar.google.com/event?eid=g-1",
		Start:    &gcal.EventDateTime{DateTime: "2024-05-02T09:00:00Z"},
		End:      &gcal.EventDateTime{DateTime: "2024-05-02T10:00:00Z"},
	})
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	t.Run("should return nothing for owners without Google", func(t *testing.T) {
		events, err := provider.ListEvents(context.Background(), "registrar", "primary", from, to)

		assert.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("should list Google events of connected owners", func(t *testing.T) {
		tokens.SetToken("registrar", &oauth2.Token{AccessToken: "access-1", Expiry: time.Now().Add(time.Hour)})

		events, err := provider.ListEvents(context.Background(), "registrar", "primary", from, to)

		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "g-1", events[0].Id)
		assert.Equal(t, "https://calendar.google.com/event?eid=g-1", events[0].HtmlLink)
	})

	t.Run("should return provider failures", func(t *testing.T) {
		fake.setFailStatus(http.StatusServiceUnavailable)
		defer fake.setFailStatus(0)

		_, err := provider.ListEvents(context.Background(), "registrar", "primary", from, to)

		assert.Error(t, err)
	})
}
