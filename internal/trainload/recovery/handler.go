package recovery

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/internal/trainload"
	"github.com/2beens/trainload/pkg"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{
		ledger: ledger,
	}
}

type statusResponse struct {
	UserID    string                                 `json:"userId"`
	Muscles   map[trainload.MuscleGroup]MuscleStatus `json:"muscles"`
	Timestamp time.Time                              `json:"timestamp"`
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.recovery.status")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "user id missing", http.StatusBadRequest)
		return
	}

	now := time.Now()
	statuses, err := h.ledger.Status(ctx, userID, now)
	if err != nil {
		log.Errorf("get recovery status for %s: %s", userID, err)
		http.Error(w, "get recovery status failed", http.StatusInternalServerError)
		return
	}

	muscles := make(map[trainload.MuscleGroup]MuscleStatus, len(statuses))
	for _, st := range statuses {
		muscles[st.MuscleGroup] = st
	}

	respJson, err := json.Marshal(statusResponse{
		UserID:    userID,
		Muscles:   muscles,
		Timestamp: now,
	})
	if err != nil {
		log.Errorf("marshal recovery status: %s", err)
		http.Error(w, "get recovery status failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}
