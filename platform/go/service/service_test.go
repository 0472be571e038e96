package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agronova/tracker-backend/platform/go/persistence"
)

type mockRepository struct {
	findAllFn          func(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	findAllPaginatedFn func(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	findByIDFn         func(ctx context.Context, desc persistence.EntityDescriptor, id int64, sess *persistence.Session) (map[string]any, error)
	saveFn             func(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, values map[string]any, loadRelations []string, actorID *int64) (map[string]any, error)
	updateByIDFn       func(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, id int64, fields map[string]any, actorID *int64) (map[string]any, error)
	deleteByIDFn       func(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	deactivateByIDFn   func(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	activateByIDFn     func(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	versionsByTxFn     func(ctx context.Context, desc persistence.EntityDescriptor, transactionID int64) (map[string]any, persistence.Changeset, error)
	transactionsFn     func(ctx context.Context, actorID int64, startDate, endDate *time.Time) ([]persistence.TransactionRecord, error)
}

func (m *mockRepository) FindAll(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
	if m.findAllFn == nil {
		panic("findAllFn not configured")
	}
	return m.findAllFn(ctx, desc, orderBy, ascending, filters)
}

func (m *mockRepository) FindAllPaginated(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
	if m.findAllPaginatedFn == nil {
		panic("findAllPaginatedFn not configured")
	}
	return m.findAllPaginatedFn(ctx, desc, start, limit, orderBy, ascending, filters)
}

func (m *mockRepository) FindByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, sess *persistence.Session) (map[string]any, error) {
	if m.findByIDFn == nil {
		panic("findByIDFn not configured")
	}
	return m.findByIDFn(ctx, desc, id, sess)
}

func (m *mockRepository) Save(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, values map[string]any, loadRelations []string, actorID *int64) (map[string]any, error) {
	if m.saveFn == nil {
		panic("saveFn not configured")
	}
	return m.saveFn(ctx, sess, desc, values, loadRelations, actorID)
}

func (m *mockRepository) UpdateByID(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, id int64, fields map[string]any, actorID *int64) (map[string]any, error) {
	if m.updateByIDFn == nil {
		panic("updateByIDFn not configured")
	}
	return m.updateByIDFn(ctx, sess, desc, id, fields, actorID)
}

func (m *mockRepository) DeleteByID(ctx context.Context, sess *persistence.Session, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	if m.deleteByIDFn == nil {
		panic("deleteByIDFn not configured")
	}
	return m.deleteByIDFn(ctx, sess, desc, id, actorID)
}

func (m *mockRepository) DeactivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	if m.deactivateByIDFn == nil {
		panic("deactivateByIDFn not configured")
	}
	return m.deactivateByIDFn(ctx, desc, id, actorID)
}

func (m *mockRepository) ActivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	if m.activateByIDFn == nil {
		panic("activateByIDFn not configured")
	}
	return m.activateByIDFn(ctx, desc, id, actorID)
}

func (m *mockRepository) FindVersionsByTransactionID(ctx context.Context, desc persistence.EntityDescriptor, transactionID int64) (map[string]any, persistence.Changeset, error) {
	if m.versionsByTxFn == nil {
		panic("versionsByTxFn not configured")
	}
	return m.versionsByTxFn(ctx, desc, transactionID)
}

func (m *mockRepository) FindTransactionsByActor(ctx context.Context, actorID int64, startDate, endDate *time.Time) ([]persistence.TransactionRecord, error) {
	if m.transactionsFn == nil {
		panic("transactionsFn not configured")
	}
	return m.transactionsFn(ctx, actorID, startDate, endDate)
}

func testDescriptor(t *testing.T) persistence.EntityDescriptor {
	t.Helper()

	desc, err := persistence.NewTableDescriptor("widgets", []persistence.Column{
		{Name: "serial_number", Type: persistence.ColumnText},
		{Name: "weight", Type: persistence.ColumnFloat},
	}, nil, true)
	require.NoError(t, err)
	return desc
}

func TestServiceSaveDropsUnknownFields(t *testing.T) {
	t.Parallel()

	desc := testDescriptor(t)
	repository := &mockRepository{}

	repository.saveFn = func(ctx context.Context, sess *persistence.Session, d persistence.EntityDescriptor, values map[string]any, loadRelations []string, actorID *int64) (map[string]any, error) {
		require.Nil(t, sess)
		require.Equal(t, "widgets", d.TableName())
		require.Equal(t, "SN-1", values["serial_number"])
		require.NotContains(t, values, "bogus_field")
		require.NotContains(t, values, "id")
		require.Contains(t, values, "created_at")

		return map[string]any{"id": int64(7), "serial_number": "SN-1"}, nil
	}

	svc := New(repository, nil)
	actor := int64(42)

	record, err := svc.Save(context.Background(), desc, map[string]any{
		"id":            int64(999),
		"serial_number": "SN-1",
		"bogus_field":   "ignored",
	}, nil, &actor)

	require.NoError(t, err)
	require.Equal(t, int64(7), record["id"])
}

func TestServiceUpdateStampsUpdatedAt(t *testing.T) {
	t.Parallel()

	desc := testDescriptor(t)
	repository := &mockRepository{}

	repository.updateByIDFn = func(ctx context.Context, sess *persistence.Session, d persistence.EntityDescriptor, id int64, fields map[string]any, actorID *int64) (map[string]any, error) {
		require.Equal(t, int64(3), id)
		require.Equal(t, "NEW NAME", fields["name"])
		require.Contains(t, fields, "updated_at")
		require.NotContains(t, fields, "created_at")

		return map[string]any{"id": id, "name": "NEW NAME"}, nil
	}

	svc := New(repository, nil)

	record, err := svc.UpdateByID(context.Background(), desc, 3, map[string]any{"name": "NEW NAME"}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "NEW NAME", record["name"])
}

func TestServiceFindByIDNotFound(t *testing.T) {
	t.Parallel()

	desc := testDescriptor(t)
	repository := &mockRepository{}
	repository.findByIDFn = func(ctx context.Context, d persistence.EntityDescriptor, id int64, sess *persistence.Session) (map[string]any, error) {
		return nil, nil
	}

	svc := New(repository, nil)

	_, err := svc.FindByID(context.Background(), desc, 11)
	require.Error(t, err)

	var notFound *EntityNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, int64(11), notFound.ID)
	require.Equal(t, http.StatusBadRequest, notFound.Status)
}

func TestServiceDeleteNotFound(t *testing.T) {
	t.Parallel()

	desc := testDescriptor(t)
	repository := &mockRepository{}
	repository.deleteByIDFn = func(ctx context.Context, sess *persistence.Session, d persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
		return nil, persistence.ErrEntityNotFound
	}

	svc := New(repository, nil)

	_, err := svc.DeleteByID(context.Background(), desc, 99, nil)

	var notFound *EntityNotFoundError
	require.True(t, errors.As(err, &notFound))
	require.Equal(t, int64(99), notFound.ID)
}

func TestServiceAuditSkipsUnrelatedTransactions(t *testing.T) {
	t.Parallel()

	desc := testDescriptor(t)
	repository := &mockRepository{}
	now := time.Now().UTC()
	actor := int64(5)

	repository.transactionsFn = func(ctx context.Context, actorID int64, startDate, endDate *time.Time) ([]persistence.TransactionRecord, error) {
		require.Equal(t, actor, actorID)
		return []persistence.TransactionRecord{
			{ID: 1, ActorID: &actor, IssuedAt: now},
			{ID: 2, ActorID: &actor, IssuedAt: now.Add(time.Minute)},
			{ID: 3, ActorID: &actor, IssuedAt: now.Add(2 * time.Minute)},
		}, nil
	}

	repository.versionsByTxFn = func(ctx context.Context, d persistence.EntityDescriptor, transactionID int64) (map[string]any, persistence.Changeset, error) {
		// Transaction 2 touched a different entity type.
		if transactionID == 2 {
			return nil, nil, nil
		}
		return map[string]any{"id": int64(1), "transaction_id": transactionID},
			persistence.Changeset{"name": [2]any{"old", "new"}}, nil
	}

	svc := New(repository, nil)

	entries, err := svc.Audit(context.Background(), desc, actor, nil, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(1), entries[0].Data["transaction_id"])
	require.Equal(t, int64(3), entries[1].Data["transaction_id"])
	require.Equal(t, actor, entries[0].UserID)
	require.Equal(t, [2]any{"old", "new"}, entries[0].Changes["name"])
}

func TestServiceAuditDateRangeForwarded(t *testing.T) {
	t.Parallel()

	desc := testDescriptor(t)
	repository := &mockRepository{}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	repository.transactionsFn = func(ctx context.Context, actorID int64, startDate, endDate *time.Time) ([]persistence.TransactionRecord, error) {
		require.NotNil(t, startDate)
		require.NotNil(t, endDate)
		require.True(t, start.Equal(*startDate))
		require.True(t, end.Equal(*endDate))
		return nil, nil
	}

	svc := New(repository, nil)

	entries, err := svc.Audit(context.Background(), desc, 1, &start, &end)
	require.NoError(t, err)
	require.Empty(t, entries)
}
