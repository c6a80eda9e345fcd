package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/calsync/calsync/internal/config"
	"github.com/calsync/calsync/internal/rest"
	"github.com/calsync/calsync/pkg/calendar"
	"github.com/calsync/calsync/pkg/calendar_event"
	"github.com/calsync/calsync/pkg/google"
	"github.com/calsync/calsync/pkg/mirror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T, pushEnabled bool) http.Handler {
	cfg := config.Defaults()
	cfg.Auth.Tokens = map[string]string{"registrar-token": "registrar", "dean-token": "dean"}
	cfg.Mirror.Enabled = false
	cfg.Calendar.PushEnabled = pushEnabled
	deps := buildDependencies(cfg, calendar.NewRepositoryStub(), google.NewTokenRepositoryStub())
	t.Cleanup(deps.Mirror.Stop)
	return NewRouter(deps)
}

func call(t *testing.T, h http.Handler, token, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Authentication(t *testing.T) {
	h := setupRouter(t, true)
	eventsUrl := "/api/calendar/events?timeMin=2024-05-01T00:00:00Z&timeMax=2024-06-01T00:00:00Z"

	testCases := []struct {
		name   string
		token  string
		target string
		status int
	}{
		{"missing token", "", eventsUrl, http.StatusUnauthorized},
		{"unknown token", "intruder", eventsUrl, http.StatusUnauthorized},
		{"known token", "registrar-token", eventsUrl, http.StatusOK},
		{"oauth callback without token", "", google.CallbackPath + "?state=broken", http.StatusBadRequest},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(t, h, tc.token, http.MethodGet, tc.target, nil)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusUnauthorized {
				var errorResponse rest.ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&errorResponse))
				assert.Equal(t, "unauthorized", errorResponse.Error)
			}
		})
	}
}

func TestRouter_EventLifecycle(t *testing.T) {
	// given
	h := setupRouter(t, true)
	listUrl := "/api/calendar/events?timeMin=2024-05-01T00:00:00Z&timeMax=2024-06-01T00:00:00Z"

	// when
	created := call(t, h, "registrar-token", http.MethodPost, "/api/calendar/events", calendar_event.WireEvent{
		Summary: "Registration",
		Start:   &calendar_event.EventDateTime{Date: "2024-05-01"},
		End:     &calendar_event.EventDateTime{Date: "2024-05-03"},
	})

	// then
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var event calendar_event.WireEvent
	require.NoError(t, json.NewDecoder(created.Body).Decode(&event))

	var mine calendar_event.EventList
	require.NoError(t, json.Unmarshal(call(t, h, "registrar-token", http.MethodGet, listUrl, nil).Body.Bytes(), &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, event.Id, mine[0].Id)

	var theirs calendar_event.EventList
	require.NoError(t, json.Unmarshal(call(t, h, "dean-token", http.MethodGet, listUrl, nil).Body.Bytes(), &theirs))
	assert.Empty(t, theirs)

	assert.Equal(t, http.StatusNotFound, call(t, h, "dean-token", http.MethodDelete, "/api/calendar/events/"+event.Id, nil).Code)

	push := call(t, h, "registrar-token", http.MethodPost, "/api/calendar/push", nil)
	require.Equal(t, http.StatusCreated, push.Code)
	var status mirror.PushStatusDTO
	require.NoError(t, json.NewDecoder(push.Body).Decode(&status))
	// Google is not connected, so the event cannot be pushed
	assert.Equal(t, mirror.PushStatusDTO{Status: "COMPLETED", Pushed: 0, Failed: 1}, status)

	assert.Equal(t, http.StatusNoContent, call(t, h, "registrar-token", http.MethodDelete, "/api/calendar/events/"+event.Id, nil).Code)
	assert.Equal(t, http.StatusNoContent, call(t, h, "registrar-token", http.MethodDelete, "/api/calendar/events/"+event.Id, nil).Code)
}

func TestRouter_PushDisabled(t *testing.T) {
	h := setupRouter(t, false)

	w := call(t, h, "registrar-token", http.MethodPost, "/api/calendar/push", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_GoogleCalendarsRequireConnection(t *testing.T) {
	h := setupRouter(t, false)

	w := call(t, h, "registrar-token", http.MethodGet, "/api/integrations/google/calendars", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
