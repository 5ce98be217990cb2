package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/internal/trainload/achievements"
	"github.com/2beens/trainload/pkg"
)

type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(dispatcher *Dispatcher) *Handler {
	return &Handler{
		dispatcher: dispatcher,
	}
}

type eventResponse struct {
	NewlyEarned []achievements.Earned `json:"newlyEarned"`
}

func (h *Handler) HandleSetRecorded(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.events.setRecorded")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var set trainload.Set
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		log.Errorf("set recorded, unmarshal json params: %s", err)
		http.Error(w, "record set failed", http.StatusBadRequest)
		return
	}

	newly, err := h.dispatcher.OnSetRecorded(ctx, set)
	if errors.Is(err, trainload.ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Errorf("set recorded %s: %s", set.SetID, err)
		http.Error(w, "record set failed", http.StatusInternalServerError)
		return
	}
	if newly == nil {
		newly = []achievements.Earned{}
	}

	respJson, err := json.Marshal(eventResponse{NewlyEarned: newly})
	if err != nil {
		log.Errorf("marshal set recorded response: %s", err)
		http.Error(w, "record set failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

func (h *Handler) HandleWorkoutCompleted(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.events.workoutCompleted")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var wc trainload.WorkoutCompletion
	if err := json.NewDecoder(r.Body).Decode(&wc); err != nil {
		log.Errorf("workout completed, unmarshal json params: %s", err)
		http.Error(w, "record workout completion failed", http.StatusBadRequest)
		return
	}

	newly, err := h.dispatcher.OnWorkoutCompleted(ctx, wc)
	if errors.Is(err, trainload.ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Errorf("workout completed %s: %s", wc.WorkoutID, err)
		http.Error(w, "record workout completion failed", http.StatusInternalServerError)
		return
	}
	if newly == nil {
		newly = []achievements.Earned{}
	}

	respJson, err := json.Marshal(eventResponse{NewlyEarned: newly})
	if err != nil {
		log.Errorf("marshal workout completed response: %s", err)
		http.Error(w, "record workout completion failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusCreated)
}

func (h *Handler) HandleRecalculateAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.events.recalculateAll")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "user id missing", http.StatusBadRequest)
		return
	}

	newlyEarned, err := h.dispatcher.RecalculateAll(ctx, userID)
	if err != nil {
		log.Errorf("recalculate all for %s: %s", userID, err)
		http.Error(w, "recalculation failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(struct {
		UserID      string `json:"userId"`
		NewlyEarned int    `json:"newlyEarnedAchievements"`
	}{userID, newlyEarned})
	if err != nil {
		log.Errorf("marshal recalculate response: %s", err)
		http.Error(w, "recalculation failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
