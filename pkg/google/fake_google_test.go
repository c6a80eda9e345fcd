package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// fakeGoogle serves the subset of the Calendar v3 API and the OAuth token endpoint
// used by this package.
type fakeGoogle struct {
	mu         sync.Mutex
	server     *httptest.Server
	events     map[string]*gcal.Event
	nextId     int
	failStatus int
	lastQuery  url.Values
	authHeader string
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	f := &fakeGoogle{events: make(map[string]*gcal.Event)}

	r := mux.NewRouter()
	r.HandleFunc("/token", f.token).Methods("POST")
	r.HandleFunc("/users/me/calendarList", f.calendarList).Methods("GET")
	r.HandleFunc("/calendars/{calendarId}/events", f.listEvents).Methods("GET")
	r.HandleFunc("/calendars/{calendarId}/events", f.insertEvent).Methods("POST")
	r.HandleFunc("/calendars/{calendarId}/events/{eventId}", f.updateEvent).Methods("PUT")
	r.HandleFunc("/calendars/{calendarId}/events/{eventId}", f.deleteEvent).Methods("DELETE")
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			f.mu.Lock()
			f.authHeader = req.Header.Get("Authorization")
			failStatus := f.failStatus
			f.mu.Unlock()
			if failStatus != 0 && req.URL.Path != "/token" {
				writeGoogleError(w, failStatus)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGoogle) calendar(t *testing.T) *Calendar {
	svc, err := gcal.NewService(context.Background(),
		option.WithHTTPClient(f.server.Client()),
		option.WithEndpoint(f.server.URL+"/"))
	require.NoError(t, err)
	return newGoogleCalendar(svc, "registrar", "primary")
}

func (f *fakeGoogle) put(e *gcal.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[e.Id] = e
}

func (f *fakeGoogle) get(id string) (*gcal.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	return e, ok
}

func (f *fakeGoogle) query() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeGoogle) authorization() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authHeader
}

func (f *fakeGoogle) setFailStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStatus = status
}

func writeGoogleError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": status, "message": http.StatusText(status)},
	})
}

func writeGoogleJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeGoogle) token(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("code") != "good-code" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}
	writeGoogleJSON(w, map[string]any{
		"access_token":  "access-1",
		"refresh_token": "refresh-1",
		"token_type":    "Bearer",
		"expires_in":    3600,
	})
}

func (f *fakeGoogle) calendarList(w http.ResponseWriter, _ *http.Request) {
	writeGoogleJSON(w, gcal.CalendarList{Items: []*gcal.CalendarListEntry{
		{Id: "primary", Summary: "Registrar"},
		{Id: "enrollment@group.calendar.google.com", Summary: "Enrollment"},
	}})
}

func (f *fakeGoogle) listEvents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.lastQuery = r.URL.Query()
	items := make([]*gcal.Event, 0, len(f.events))
	for _, e := range f.events {
		items = append(items, e)
	}
	f.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Id < items[j].Id })
	writeGoogleJSON(w, gcal.Events{Items: items})
}

func (f *fakeGoogle) insertEvent(w http.ResponseWriter, r *http.Request) {
	var e gcal.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeGoogleError(w, http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.nextId++
	e.Id = fmt.Sprintf("g-%d", f.nextId)
	e.HtmlLink = "https://calendar.google.com/event?eid=" + e.Id
	f.events[e.Id] = &e
	f.mu.Unlock()
	writeGoogleJSON(w, e)
}

func (f *fakeGoogle) updateEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["eventId"]
	if _, ok := f.get(id); !ok {
		writeGoogleError(w, http.StatusNotFound)
		return
	}
	var e gcal.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeGoogleError(w, http.StatusBadRequest)
		return
	}
	e.Id = id
	e.HtmlLink = "https://calendar.google.com/event?eid=" + id
	f.put(&e)
	writeGoogleJSON(w, e)
}

func (f *fakeGoogle) deleteEvent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["eventId"]
	f.mu.Lock()
	_, ok := f.events[id]
	delete(f.events, id)
	f.mu.Unlock()
	if !ok {
		writeGoogleError(w, http.StatusGone)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
