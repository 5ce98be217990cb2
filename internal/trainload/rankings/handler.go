package rankings

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/trainload/internal/telemetry/metrics"
	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/pkg"
)

type Handler struct {
	service *Service
	metrics *metrics.Manager
}

func NewHandler(service *Service, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		service: service,
		metrics: metricsManager,
	}
}

func (h *Handler) HandleExerciseRanking(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.exerciseRanking")
	defer span.End()

	vars := mux.Vars(r)
	userID, exerciseID := vars["userId"], vars["exerciseId"]
	if userID == "" || exerciseID == "" {
		http.Error(w, "user id or exercise id missing", http.StatusBadRequest)
		return
	}

	ranking, err := h.service.ExerciseRanking(ctx, userID, exerciseID)
	switch {
	case errors.Is(err, trainload.ErrNotFound):
		http.Error(w, "no personal record for exercise", http.StatusNotFound)
		return
	case errors.Is(err, trainload.ErrInsufficientData):
		ranking = &Ranking{
			UserID:           userID,
			ExerciseID:       exerciseID,
			InsufficientData: true,
		}
	case err != nil:
		log.Errorf("exercise ranking %s/%s: %s", userID, exerciseID, err)
		http.Error(w, "get exercise ranking failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(ranking)
	if err != nil {
		log.Errorf("marshal exercise ranking: %s", err)
		http.Error(w, "get exercise ranking failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (h *Handler) HandleAllRankings(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.allRankings")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "user id missing", http.StatusBadRequest)
		return
	}

	begin := time.Now()
	allRankings, err := h.service.AllRankings(ctx, userID)
	h.metrics.HistRankingsDuration.Observe(time.Since(begin).Seconds())
	if err != nil {
		log.Errorf("all rankings for %s: %s", userID, err)
		http.Error(w, "get rankings failed", http.StatusInternalServerError)
		return
	}
	if allRankings == nil {
		allRankings = []Ranking{}
	}

	respJson, err := json.Marshal(allRankings)
	if err != nil {
		log.Errorf("marshal rankings: %s", err)
		http.Error(w, "get rankings failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (h *Handler) HandleExerciseStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.exerciseStatistics")
	defer span.End()

	exerciseID := mux.Vars(r)["exerciseId"]
	if exerciseID == "" {
		http.Error(w, "exercise id missing", http.StatusBadRequest)
		return
	}

	exStats, err := h.service.Statistics(ctx, exerciseID)
	if err != nil {
		log.Errorf("exercise statistics for %s: %s", exerciseID, err)
		http.Error(w, "get exercise statistics failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(exStats)
	if err != nil {
		log.Errorf("marshal exercise statistics: %s", err)
		http.Error(w, "get exercise statistics failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.rankings.leaderboard")
	defer span.End()

	exerciseID := mux.Vars(r)["exerciseId"]
	if exerciseID == "" {
		http.Error(w, "exercise id missing", http.StatusBadRequest)
		return
	}

	statKind := trainload.StatKind(r.URL.Query().Get("statKind"))
	if statKind == "" {
		statKind = trainload.StatWeight
	}
	if !statKind.Valid() {
		http.Error(w, "unknown stat kind", http.StatusBadRequest)
		return
	}

	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	userID := r.URL.Query().Get("userId")

	begin := time.Now()
	lb, err := h.service.Leaderboard(ctx, exerciseID, statKind, limit, userID)
	h.metrics.HistRankingsDuration.Observe(time.Since(begin).Seconds())
	if errors.Is(err, trainload.ErrInsufficientData) {
		respJson, _ := json.Marshal(struct {
			ExerciseID       string             `json:"exerciseId"`
			StatKind         trainload.StatKind `json:"statKind"`
			InsufficientData bool               `json:"insufficientData"`
		}{exerciseID, statKind, true})
		pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
		return
	}
	if err != nil {
		log.Errorf("leaderboard for %s: %s", exerciseID, err)
		http.Error(w, "get leaderboard failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(lb)
	if err != nil {
		log.Errorf("marshal leaderboard: %s", err)
		http.Error(w, "get leaderboard failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
