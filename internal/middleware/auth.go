package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/2beens/trainload/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/codes"
)

// AuthMiddlewareHandler guards the two surfaces with shared secrets: the
// workout subsystem posts events with the ingest secret, read clients query
// with the read secret. Session handling lives outside this service.
type AuthMiddlewareHandler struct {
	ingestSecret string
	readSecret   string
}

func NewAuthMiddlewareHandler(ingestSecret, readSecret string) *AuthMiddlewareHandler {
	return &AuthMiddlewareHandler{
		ingestSecret: ingestSecret,
		readSecret:   readSecret,
	}
}

func (h *AuthMiddlewareHandler) AuthCheck() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, span := tracing.GlobalTracer.Start(r.Context(), "middleware.auth")
			defer span.End()

			if r.Method == http.MethodOptions {
				w.Header().Add("Allow", "GET, POST, OPTIONS")
				w.WriteHeader(http.StatusOK)
				span.SetStatus(codes.Ok, "options-ok")
				return
			}

			authToken := r.Header.Get("X-TRAINLOAD-TOKEN")
			if authToken == "" {
				log.Tracef("[missing token] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "missing-auth-token")
				return
			}

			wantSecret := h.readSecret
			if strings.HasPrefix(r.URL.Path, "/trainload/events/") {
				wantSecret = h.ingestSecret
			}

			if subtle.ConstantTimeCompare([]byte(authToken), []byte(wantSecret)) != 1 {
				log.Tracef("[invalid token] [auth middleware] unauthorized => %s", r.URL.Path)
				http.Error(w, "no can do", http.StatusUnauthorized)
				span.SetStatus(codes.Error, "invalid-token")
				return
			}

			span.SetStatus(codes.Ok, "ok")
			next.ServeHTTP(w, r)
		})
	}
}
