package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/agronova/tracker-backend/domains/trackers/be/repo"
	"github.com/agronova/tracker-backend/domains/trackers/be/service"
	platformlogging "github.com/agronova/tracker-backend/platform/go/logging"
	"github.com/agronova/tracker-backend/platform/go/resthandler"
)

// TrackerService is the trackers-specific surface next to the generic CRUD.
type TrackerService interface {
	FindBySerialNumber(ctx context.Context, serial string) (map[string]any, error)
}

// Handler serves the trackers routes: the generic entity surface plus lookup
// by device serial.
type Handler struct {
	entity resthandler.EntityService
	svc    TrackerService
	ctrl   *resthandler.Controller
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(entity resthandler.EntityService, svc TrackerService, logger *zap.Logger) *Handler {
	if entity == nil {
		panic("entity service is required")
	}
	if svc == nil {
		panic("trackers service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Handler{
		entity: entity,
		svc:    svc,
		ctrl:   resthandler.New(repo.Descriptor(), entity, logger),
		logger: logger,
	}
}

// Routes returns the trackers routes ready to mount behind authentication.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/find_by_serial/{serial}", h.findBySerial)
	r.Mount("/", h.ctrl.Routes())
	return r
}

func (h *Handler) findBySerial(w http.ResponseWriter, r *http.Request) {
	serial := chi.URLParam(r, "serial")

	record, err := h.svc.FindBySerialNumber(r.Context(), serial)
	if err != nil {
		if errors.Is(err, service.ErrTrackerNotFound) {
			h.writeEnvelope(w, http.StatusBadRequest, resthandler.Envelope{Message: "tracker not found"})
			return
		}
		h.loggerFrom(r.Context()).Error("find tracker by serial failed", zap.String("serial", serial), zap.Error(err))
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
