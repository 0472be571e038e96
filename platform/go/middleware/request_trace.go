package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/agronova/tracker-backend/platform/go/auth"
	platformlogging "github.com/agronova/tracker-backend/platform/go/logging"
	"github.com/agronova/tracker-backend/platform/go/requesttrace"
)

// RequestTrace populates the context with request-scoped AuditInfo so services and repositories can stamp audit fields.
// It should run after authentication middleware so user credentials are available when present.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID, _ := r.Context().Value(middleware.RequestIDKey).(string)

		var audit requesttrace.AuditInfo
		if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
			var err error
			audit, err = requesttrace.FromCredentials(creds, requestID)
			if err != nil {
				if logger != nil {
					logger.Error("build audit info from credentials", zap.Error(err))
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		} else {
			audit = requesttrace.Anonymous(requestID)
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
			if audit.ActorID != nil {
				fields = append(fields, zap.Int64("user_id", *audit.ActorID))
			}
			logger = logger.With(fields...)
			ctx = platformlogging.WithLogger(ctx, logger)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
