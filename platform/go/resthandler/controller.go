// Package resthandler exposes the generic entity operations over HTTP. One
// Controller serves a single entity type; domains mount it on their own route
// prefix and add any extra endpoints next to it.
package resthandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	platformlogging "github.com/agronova/tracker-backend/platform/go/logging"
	"github.com/agronova/tracker-backend/platform/go/persistence"
	"github.com/agronova/tracker-backend/platform/go/requesttrace"
	"github.com/agronova/tracker-backend/platform/go/service"
)

type operation string

const (
	findAllOperation    operation = "findAll"
	findPagedOperation  operation = "findAllPaginated"
	findByIDOperation   operation = "findById"
	saveOperation       operation = "save"
	updateOperation     operation = "updateById"
	deleteOperation     operation = "deleteById"
	deactivateOperation operation = "deactivateById"
	activateOperation   operation = "activateById"
	auditOperation      operation = "audit"
)

const (
	defaultPageStart = 0
	defaultPageLimit = 100
)

// Envelope is the uniform response body for every entity endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Object  any    `json:"object"`
}

// EntityService is the slice of the generic service the controller needs;
// *service.Service satisfies it.
type EntityService interface {
	FindAll(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	FindAllPaginated(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	FindByID(ctx context.Context, desc persistence.EntityDescriptor, id int64) (map[string]any, error)
	Save(ctx context.Context, desc persistence.EntityDescriptor, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error)
	UpdateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error)
	DeleteByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	DeactivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	ActivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	Audit(ctx context.Context, desc persistence.EntityDescriptor, actorID int64, startDate, endDate *time.Time) ([]service.AuditEntry, error)
}

// Controller serves the generic CRUD and audit routes for one entity type.
type Controller struct {
	desc   persistence.EntityDescriptor
	svc    EntityService
	logger *zap.Logger
}

// New constructs a Controller.
func New(desc persistence.EntityDescriptor, svc EntityService, logger *zap.Logger) *Controller {
	if desc == nil {
		panic("descriptor is required")
	}
	if svc == nil {
		panic("entity service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{desc: desc, svc: svc, logger: logger}
}

// Routes returns the generic entity routes ready to mount on a prefix.
func (c *Controller) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/all", c.findAll)
	r.Post("/all/paginated", c.findAllPaginated)
	r.Get("/find_by_id/{id}", c.findByID)
	r.Post("/save", c.save)
	r.Put("/update_by_id/{id}", c.updateByID)
	r.Delete("/delete_by_id/{id}", c.deleteByID)
	r.Put("/deactivate_by_id/{id}", c.deactivateByID)
	r.Put("/activate_by_id/{id}", c.activateByID)
	r.Get("/audit/{id}", c.audit)

	return r
}

func (c *Controller) findAll(w http.ResponseWriter, r *http.Request) {
	filters, err := decodeFilters(r)
	if err != nil {
		c.writeError(w, r, err, findAllOperation)
		return
	}

	orderBy := r.URL.Query().Get("order_by")
	ascending := r.URL.Query().Get("ascending")

	records, err := c.svc.FindAll(r.Context(), c.desc, orderBy, ascending, filters)
	if err != nil {
		c.writeError(w, r, err, findAllOperation)
		return
	}

	c.writeObject(w, http.StatusOK, records)
}

func (c *Controller) findAllPaginated(w http.ResponseWriter, r *http.Request) {
	filters, err := decodeFilters(r)
	if err != nil {
		c.writeError(w, r, err, findPagedOperation)
		return
	}

	query := r.URL.Query()
	start := queryInt(query.Get("start"), defaultPageStart)
	limit := queryInt(query.Get("limit"), defaultPageLimit)
	orderBy := query.Get("order_by")
	ascending := query.Get("ascending")

	records, err := c.svc.FindAllPaginated(r.Context(), c.desc, start, limit, orderBy, ascending, filters)
	if err != nil {
		c.writeError(w, r, err, findPagedOperation)
		return
	}

	c.writeObject(w, http.StatusOK, records)
}

func (c *Controller) findByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err, findByIDOperation)
		return
	}

	record, err := c.svc.FindByID(r.Context(), c.desc, id)
	if err != nil {
		c.writeError(w, r, err, findByIDOperation)
		return
	}

	c.writeObject(w, http.StatusOK, record)
}

func (c *Controller) save(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		c.writeError(w, r, err, saveOperation)
		return
	}

	record, err := c.svc.Save(r.Context(), c.desc, payload, nil, c.actorID(r))
	if err != nil {
		c.writeError(w, r, err, saveOperation)
		return
	}

	c.writeObject(w, http.StatusCreated, record)
}

func (c *Controller) updateByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err, updateOperation)
		return
	}

	payload, err := decodePayload(r)
	if err != nil {
		c.writeError(w, r, err, updateOperation)
		return
	}

	record, err := c.svc.UpdateByID(r.Context(), c.desc, id, payload, nil, c.actorID(r))
	if err != nil {
		c.writeError(w, r, err, updateOperation)
		return
	}

	c.writeObject(w, http.StatusOK, record)
}

func (c *Controller) deleteByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err, deleteOperation)
		return
	}

	record, err := c.svc.DeleteByID(r.Context(), c.desc, id, c.actorID(r))
	if err != nil {
		c.writeError(w, r, err, deleteOperation)
		return
	}

	c.writeObject(w, http.StatusOK, record)
}

func (c *Controller) deactivateByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err, deactivateOperation)
		return
	}

	record, err := c.svc.DeactivateByID(r.Context(), c.desc, id, c.actorID(r))
	if err != nil {
		c.writeError(w, r, err, deactivateOperation)
		return
	}

	c.writeObject(w, http.StatusOK, record)
}

func (c *Controller) activateByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err, activateOperation)
		return
	}

	record, err := c.svc.ActivateByID(r.Context(), c.desc, id, c.actorID(r))
	if err != nil {
		c.writeError(w, r, err, activateOperation)
		return
	}

	c.writeObject(w, http.StatusOK, record)
}

func (c *Controller) audit(w http.ResponseWriter, r *http.Request) {
	actorID, err := pathID(r)
	if err != nil {
		c.writeError(w, r, err, auditOperation)
		return
	}

	query := r.URL.Query()
	startDate, err := queryDate(query.Get("start_date"))
	if err != nil {
		c.writeError(w, r, err, auditOperation)
		return
	}
	endDate, err := queryDate(query.Get("end_date"))
	if err != nil {
		c.writeError(w, r, err, auditOperation)
		return
	}

	entries, err := c.svc.Audit(r.Context(), c.desc, actorID, startDate, endDate)
	if err != nil {
		c.writeError(w, r, err, auditOperation)
		return
	}

	c.writeObject(w, http.StatusOK, entries)
}

// actorID pulls the authenticated actor from the request trace; nil for
// anonymous or system calls.
func (c *Controller) actorID(r *http.Request) *int64 {
	audit := requesttrace.FromContextOrAnonymous(r.Context())
	return audit.ActorID
}

func (c *Controller) writeObject(w http.ResponseWriter, status int, object any) {
	writeJSON(w, status, Envelope{Success: true, Object: object})
}

func (c *Controller) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	status, message := classifyError(err)

	logger := c.loggerFrom(r.Context())
	logFields := []zap.Field{
		zap.String("table", c.desc.TableName()),
		zap.String("operation", string(op)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("entity operation failed", logFields...)
	} else {
		logger.Warn("entity request rejected", logFields...)
	}

	writeJSON(w, status, Envelope{Success: false, Message: message})
}

func classifyError(err error) (int, string) {
	var notFound *service.EntityNotFoundError
	var attrErr *persistence.AttributeResolutionError
	var opErr *persistence.UnknownOperatorError

	switch {
	case errors.As(err, &notFound):
		return notFound.Status, notFound.Error()
	case errors.As(err, &attrErr), errors.As(err, &opErr), errors.Is(err, persistence.ErrInvalidFilter):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, persistence.ErrDuplicateEntity):
		return http.StatusBadRequest, "an entity with the same unique attributes already exists"
	case errors.Is(err, persistence.ErrLinkedEntities):
		return http.StatusConflict, "entity has linked entities and cannot be removed"
	case errors.As(err, new(*badRequestError)):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "an unexpected error occurred"
	}
}

// badRequestError marks malformed input caught before the service layer.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func decodeFilters(r *http.Request) (*persistence.FilterSet, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}

	var set persistence.FilterSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		return nil, badRequestf("invalid filter body: %v", err)
	}
	return &set, nil
}

func decodePayload(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, badRequestf("request body is required")
	}

	payload := make(map[string]any)
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, badRequestf("invalid request body: %v", err)
	}
	return payload, nil
}

func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, badRequestf("invalid id %q", raw)
	}
	return id, nil
}

func queryInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// queryDate accepts RFC 3339 timestamps and plain dates.
func queryDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, badRequestf("invalid date %q", raw)
	}
	return &ts, nil
}

func writeJSON(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (c *Controller) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return c.logger
}
