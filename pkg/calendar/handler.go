package calendar

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/calsync/calsync/internal/rest"
	"github.com/calsync/calsync/pkg/calendar_event"
	"github.com/calsync/calsync/pkg/user"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type Handler struct {
	calendar *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{s}
}

func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("timeMin"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid timeMin format", "'timeMin' must be in RFC3339 format")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("timeMax"))
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid timeMax format", "'timeMax' must be in RFC3339 format")
		return
	}
	if !to.After(from) {
		rest.WriteError(w, http.StatusBadRequest, "Invalid time range", "'timeMax' must be after 'timeMin'")
		return
	}

	events, err := h.calendar.ListEvents(r.Context(), r.URL.Query().Get("calendarId"), from, to)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	log.Tracef("Events returned: %d", len(events))
	rest.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	event, ok := decodeEvent(w, r)
	if !ok {
		return
	}

	created, err := h.calendar.CreateEvent(r.Context(), r.URL.Query().Get("calendarId"), event)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusCreated, EventToWire(created))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	uid, ok := eventUid(w, r)
	if !ok {
		return
	}
	event, ok := decodeEvent(w, r)
	if !ok {
		return
	}

	updated, err := h.calendar.UpdateEvent(r.Context(), uid, event)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	rest.WriteJSON(w, http.StatusOK, EventToWire(updated))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	uid, ok := eventUid(w, r)
	if !ok {
		return
	}

	if err := h.calendar.ArchiveEvent(r.Context(), uid); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// eventUid parses the {eventId} path variable. Ids that are not UUIDs cannot exist,
// so they are reported as not found.
func eventUid(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id := mux.Vars(r)["eventId"]
	uid, err := uuid.Parse(id)
	if err != nil {
		rest.WriteError(w, http.StatusNotFound, ErrEventNotFound.Error(), id)
		return uuid.Nil, false
	}
	return uid, true
}

func decodeEvent(w http.ResponseWriter, r *http.Request) (Event, bool) {
	var payload calendar_event.WireEvent
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid event payload", err.Error())
		return Event{}, false
	}
	event, err := EventFromWire(payload)
	if err != nil {
		rest.WriteError(w, http.StatusBadRequest, "Invalid event", err.Error())
		return Event{}, false
	}
	return event, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEventNotFound):
		rest.WriteError(w, http.StatusNotFound, ErrEventNotFound.Error(), "")
	case errors.Is(err, ErrValidation):
		rest.WriteError(w, http.StatusBadRequest, "Invalid event", err.Error())
	case errors.Is(err, user.ErrNoUser):
		rest.WriteError(w, http.StatusUnauthorized, "unauthorized", "")
	default:
		log.Errorf("calendar request failed: %v", err)
		rest.WriteError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
