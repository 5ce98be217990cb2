package records

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/pkg"
)

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{
		tracker: tracker,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.records.list")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "user id missing", http.StatusBadRequest)
		return
	}

	prs, err := h.tracker.List(ctx, userID)
	if err != nil {
		log.Errorf("list personal records for %s: %s", userID, err)
		http.Error(w, "list personal records failed", http.StatusInternalServerError)
		return
	}
	if prs == nil {
		prs = []trainload.PersonalRecord{}
	}

	respJson, err := json.Marshal(prs)
	if err != nil {
		log.Errorf("marshal personal records: %s", err)
		http.Error(w, "list personal records failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.records.get")
	defer span.End()

	vars := mux.Vars(r)
	userID, exerciseID := vars["userId"], vars["exerciseId"]
	if userID == "" || exerciseID == "" {
		http.Error(w, "user id or exercise id missing", http.StatusBadRequest)
		return
	}

	pr, err := h.tracker.Get(ctx, userID, exerciseID)
	if errors.Is(err, trainload.ErrNotFound) {
		http.Error(w, "personal record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Errorf("get personal record %s/%s: %s", userID, exerciseID, err)
		http.Error(w, "get personal record failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(pr)
	if err != nil {
		log.Errorf("marshal personal record: %s", err)
		http.Error(w, "get personal record failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
