package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agronova/tracker-backend/domains/users/be/repo"
	"github.com/agronova/tracker-backend/domains/users/be/service"
	platformauth "github.com/agronova/tracker-backend/platform/go/auth"
	platformlogging "github.com/agronova/tracker-backend/platform/go/logging"
	"github.com/agronova/tracker-backend/platform/go/resthandler"
)

// UserService extends the generic entity surface with the users-only
// operations; *service.Service satisfies it.
type UserService interface {
	resthandler.EntityService
	Login(ctx context.Context, email, password string) (service.LoginResult, error)
	Me(ctx context.Context, id int64) (map[string]any, error)
}

// Handler wires the users service to HTTP. Login lives on the public router;
// everything else sits behind the JWT middleware.
type Handler struct {
	svc    UserService
	ctrl   *resthandler.Controller
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc UserService, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		svc:    svc,
		ctrl:   resthandler.New(repo.Descriptor(), svc, logger),
		logger: logger,
	}
}

// PublicRoutes returns the routes reachable without a token.
func (h *Handler) PublicRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.login)
	return r
}

// Routes returns the authenticated routes: the generic entity surface plus /me.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/me", h.me)
	r.Mount("/", h.ctrl.Routes())
	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeEnvelope(w, http.StatusBadRequest, resthandler.Envelope{Message: "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeEnvelope(w, http.StatusBadRequest, resthandler.Envelope{Message: "email and password are required"})
		return
	}

	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.writeEnvelope(w, http.StatusUnauthorized, resthandler.Envelope{Message: "invalid credentials"})
			return
		}
		h.loggerFrom(r.Context()).Error("login failed", zap.Error(err))
		h.writeEnvelope(w, http.StatusInternalServerError, resthandler.Envelope{Message: "an unexpected error occurred"})
		return
	}

	h.writeEnvelope(w, http.StatusOK, resthandler.Envelope{Success: true, Object: result})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	creds, ok := platformauth.UserFromContext(r.Context())
	if !ok || creds == nil {
		h.writeEnvelope(w, http.StatusUnauthorized, resthandler.Envelope{Message: "unauthorized"})
		return
	}

	record, err := h.svc.Me(r.Context(), creds.ID)
	if err != nil {
		h.loggerFrom(r.Context()).Error("load own profile failed", zap.Int64("user_id", creds.ID), zap.Error(err))
		h.writeEnvelope(w, http.StatusInternalServerError, resthandler.Envelope{Message: "an unexpected error occurred"})
		return
	}

	h.writeEnvelope(w, http.StatusOK, resthandler.Envelope{Success: true, Object: record})
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, status int, envelope resthandler.Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}

func (h *Handler) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return h.logger
}
