package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/agronova/tracker-backend/platform/go/persistence"
)

// EntityNotFoundError is the uniform client-facing miss: by long-standing API
// convention it surfaces as a 400, not a 404.
type EntityNotFoundError struct {
	ID     int64
	Status int
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %d is not registered", e.ID)
}

// NewEntityNotFound builds the standard not-found error for an id.
func NewEntityNotFound(id int64) *EntityNotFoundError {
	return &EntityNotFoundError{ID: id, Status: http.StatusBadRequest}
}

// AuditEntry is one reconstructed mutation: the version snapshot, the actor
// that performed it, and the attribute-level changes.
type AuditEntry struct {
	Data    map[string]any        `json:"data"`
	UserID  int64                 `json:"user_id"`
	Changes persistence.Changeset `json:"changes"`
}

// Repository is the slice of the generic persistence surface the service
// needs; *persistence.Repository satisfies it.
type Repository interface {
	FindAll(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	FindAllPaginated(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	FindByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, sess *persistence.Session) (map[string]any, error)
	Save(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, values map[string]any, loadRelations []string, actorID *int64) (map[string]any, error)
	UpdateByID(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, id int64, fields map[string]any, actorID *int64) (map[string]any, error)
	DeleteByID(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	DeactivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	ActivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	FindVersionsByTransactionID(ctx context.Context, desc persistence.EntityDescriptor, transactionID int64) (map[string]any, persistence.Changeset, error)
	FindTransactionsByActor(ctx context.Context, actorID int64, startDate, endDate *time.Time) ([]persistence.TransactionRecord, error)
}

// Service runs the generic entity operations for any descriptor: it owns the
// transaction boundary when the caller supplies no session, maps repository
// misses to EntityNotFoundError, builds entity values from raw payloads, and
// stamps timestamps. The acting user is always threaded in explicitly.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New constructs the generic entity service.
func New(repo Repository, logger *zap.Logger) *Service {
	if repo == nil {
		panic("repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// FindAll lists active entities with optional dynamic filters and ordering.
func (s *Service) FindAll(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
	return s.repo.FindAll(ctx, desc, orderBy, ascending, filters)
}

// FindAllPaginated lists a window of active entities.
func (s *Service) FindAllPaginated(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
	return s.repo.FindAllPaginated(ctx, desc, start, limit, orderBy, ascending, filters)
}

// FindByID returns the entity regardless of its active flag.
func (s *Service) FindByID(ctx context.Context, desc persistence.EntityDescriptor, id int64) (map[string]any, error) {
	record, err := s.repo.FindByID(ctx, desc, id, nil)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, NewEntityNotFound(id)
	}
	return record, nil
}

// Save builds an entity instance from the payload and persists it. Payload
// fields that are not declared columns are silently dropped. When sess is nil
// the whole call is one transaction; otherwise the insert joins the caller's
// scope and commit stays with the caller.
func (s *Service) Save(ctx context.Context, desc persistence.EntityDescriptor, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error) {
	values := buildEntityValues(desc, payload)
	values["created_at"] = time.Now().UTC()

	record, err := s.repo.Save(ctx, sess, desc, values, nil, actorID)
	if err != nil {
		s.logger.Error("save entity failed", zap.String("table", desc.TableName()), zap.Error(err))
		return nil, err
	}
	return record, nil
}

// UpdateByID applies a partial update; nil payload values mean "no change".
func (s *Service) UpdateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error) {
	fields := buildEntityValues(desc, payload)
	fields["updated_at"] = time.Now().UTC()

	record, err := s.repo.UpdateByID(ctx, sess, desc, id, fields, actorID)
	if err != nil {
		return nil, s.mapNotFound(id, err)
	}
	return record, nil
}

// DeleteByID removes the entity permanently and returns its last state.
func (s *Service) DeleteByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	record, err := s.repo.DeleteByID(ctx, nil, desc, id, actorID)
	if err != nil {
		return nil, s.mapNotFound(id, err)
	}
	return record, nil
}

// DeactivateByID soft-deletes the entity.
func (s *Service) DeactivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	record, err := s.repo.DeactivateByID(ctx, desc, id, actorID)
	if err != nil {
		return nil, s.mapNotFound(id, err)
	}
	return record, nil
}

// ActivateByID reverses a soft delete.
func (s *Service) ActivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	record, err := s.repo.ActivateByID(ctx, desc, id, actorID)
	if err != nil {
		return nil, s.mapNotFound(id, err)
	}
	return record, nil
}

// Audit reconstructs the mutation history the actor performed on this entity
// type within the optional date range, one entry per transaction, in
// occurrence order. Transactions that touched no row of the type are skipped.
func (s *Service) Audit(ctx context.Context, desc persistence.EntityDescriptor, actorID int64, startDate, endDate *time.Time) ([]AuditEntry, error) {
	transactions, err := s.repo.FindTransactionsByActor(ctx, actorID, startDate, endDate)
	if err != nil {
		return nil, err
	}

	entries := make([]AuditEntry, 0, len(transactions))
	for _, transaction := range transactions {
		snapshot, changes, err := s.repo.FindVersionsByTransactionID(ctx, desc, transaction.ID)
		if err != nil {
			return nil, err
		}
		if snapshot == nil {
			continue
		}
		entries = append(entries, AuditEntry{
			Data:    snapshot,
			UserID:  actorID,
			Changes: changes,
		})
	}

	return entries, nil
}

func (s *Service) mapNotFound(id int64, err error) error {
	if errors.Is(err, persistence.ErrEntityNotFound) {
		return NewEntityNotFound(id)
	}
	return err
}

// buildEntityValues filters the payload down to the entity's declared columns.
// Unknown fields are dropped, not rejected; the id column is never writable.
func buildEntityValues(desc persistence.EntityDescriptor, payload map[string]any) map[string]any {
	values := make(map[string]any, len(payload))
	for _, col := range desc.Columns() {
		if col.Name == "id" {
			continue
		}
		if value, ok := payload[col.Name]; ok {
			values[col.Name] = value
		}
	}
	return values
}
