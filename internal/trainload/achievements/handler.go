package achievements

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/trainload/internal/telemetry/tracing"
	"github.com/2beens/trainload/pkg"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine: engine,
	}
}

func (h *Handler) HandleListProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.achievements.listProgress")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "user id missing", http.StatusBadRequest)
		return
	}

	var category *Category
	if categoryParam := r.URL.Query().Get("category"); categoryParam != "" {
		c := Category(categoryParam)
		if !c.Valid() {
			http.Error(w, "unknown category", http.StatusBadRequest)
			return
		}
		category = &c
	}

	progress, err := h.engine.ListProgress(ctx, userID, category)
	if err != nil {
		log.Errorf("list achievement progress for %s: %s", userID, err)
		http.Error(w, "list achievement progress failed", http.StatusInternalServerError)
		return
	}
	if progress == nil {
		progress = []Progress{}
	}

	respJson, err := json.Marshal(progress)
	if err != nil {
		log.Errorf("marshal achievement progress: %s", err)
		http.Error(w, "list achievement progress failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (h *Handler) HandleUnnotified(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.achievements.unnotified")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "user id missing", http.StatusBadRequest)
		return
	}

	unnotified, err := h.engine.Unnotified(ctx, userID)
	if err != nil {
		log.Errorf("get unnotified achievements for %s: %s", userID, err)
		http.Error(w, "get unnotified achievements failed", http.StatusInternalServerError)
		return
	}
	if unnotified == nil {
		unnotified = []Earned{}
	}

	respJson, err := json.Marshal(unnotified)
	if err != nil {
		log.Errorf("marshal unnotified achievements: %s", err)
		http.Error(w, "get unnotified achievements failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (h *Handler) HandleMarkNotified(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.achievements.markNotified")
	defer span.End()

	userID := mux.Vars(r)["userId"]
	if userID == "" {
		http.Error(w, "user id missing", http.StatusBadRequest)
		return
	}

	var reqBody struct {
		AchievementIDs []string `json:"achievementIds"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			log.Errorf("mark achievements notified, unmarshal json params: %s", err)
			http.Error(w, "mark achievements notified failed", http.StatusBadRequest)
			return
		}
	}

	if err := h.engine.MarkNotified(ctx, userID, reqBody.AchievementIDs); err != nil {
		log.Errorf("mark achievements notified for %s: %s", userID, err)
		http.Error(w, "mark achievements notified failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteTextResponseOK(w, "marked")
}
