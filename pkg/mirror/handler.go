package mirror

import (
	"net/http"

	"github.com/calsync/calsync/internal/rest"
	"github.com/calsync/calsync/pkg/user"
	log "github.com/sirupsen/logrus"
)

type PushStatusDTO struct {
	Status string `json:"status"`
	Pushed int    `json:"pushed"`
	Failed int    `json:"failed"`
}

type Handler struct {
	mirror  *Mirror
	enabled bool
}

func NewHandler(mirror *Mirror, enabled bool) *Handler {
	return &Handler{mirror: mirror, enabled: enabled}
}

func (h *Handler) Push(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		rest.WriteError(w, http.StatusNotFound, "Push is disabled", "")
		return
	}
	owner, err := user.CurrentOwner(r.Context())
	if err != nil {
		rest.WriteError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	stats, err := h.mirror.Push(r.Context(), owner)
	if err != nil {
		log.Errorf("push of %s failed: %v", owner, err)
		rest.WriteError(w, http.StatusInternalServerError, "Failed to push events", err.Error())
		return
	}
	rest.WriteJSON(w, http.StatusCreated, PushStatusDTO{
		Status: "COMPLETED",
		Pushed: stats.Pushed,
		Failed: stats.Failed,
	})
}
