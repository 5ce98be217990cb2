package stats

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/pkg"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service: service,
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.get")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "user id missing", http.StatusBadRequest)
		return
	}

	userStats, err := h.service.Get(ctx, userID)
	if err != nil {
		log.Errorf("get user statistics for %s: %s", userID, err)
		http.Error(w, "get user statistics failed", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(userStats)
	if err != nil {
		log.Errorf("marshal user statistics: %s", err)
		http.Error(w, "get user statistics failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
