package resthandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/agronova/tracker-backend/platform/go/persistence"
	"github.com/agronova/tracker-backend/platform/go/requesttrace"
	"github.com/agronova/tracker-backend/platform/go/service"
)

type mockService struct {
	findAllFn          func(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	findAllPaginatedFn func(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error)
	findByIDFn         func(ctx context.Context, desc persistence.EntityDescriptor, id int64) (map[string]any, error)
	saveFn             func(ctx context.Context, desc persistence.EntityDescriptor, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error)
	updateByIDFn       func(ctx context.Context, desc persistence.EntityDescriptor, id int64, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error)
	deleteByIDFn       func(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	deactivateByIDFn   func(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	activateByIDFn     func(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error)
	auditFn            func(ctx context.Context, desc persistence.EntityDescriptor, actorID int64, startDate, endDate *time.Time) ([]service.AuditEntry, error)
}

func (m *mockService) FindAll(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
	if m.findAllFn == nil {
		panic("findAllFn not configured")
	}
	return m.findAllFn(ctx, desc, orderBy, ascending, filters)
}

func (m *mockService) FindAllPaginated(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
	if m.findAllPaginatedFn == nil {
		panic("findAllPaginatedFn not configured")
	}
	return m.findAllPaginatedFn(ctx, desc, start, limit, orderBy, ascending, filters)
}

func (m *mockService) FindByID(ctx context.Context, desc persistence.EntityDescriptor, id int64) (map[string]any, error) {
	if m.findByIDFn == nil {
		panic("findByIDFn not configured")
	}
	return m.findByIDFn(ctx, desc, id)
}

func (m *mockService) Save(ctx context.Context, desc persistence.EntityDescriptor, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error) {
	if m.saveFn == nil {
		panic("saveFn not configured")
	}
	return m.saveFn(ctx, desc, payload, sess, actorID)
}

func (m *mockService) UpdateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error) {
	if m.updateByIDFn == nil {
		panic("updateByIDFn not configured")
	}
	return m.updateByIDFn(ctx, desc, id, payload, sess, actorID)
}

func (m *mockService) DeleteByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	if m.deleteByIDFn == nil {
		panic("deleteByIDFn not configured")
	}
	return m.deleteByIDFn(ctx, desc, id, actorID)
}

func (m *mockService) DeactivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	if m.deactivateByIDFn == nil {
		panic("deactivateByIDFn not configured")
	}
	return m.deactivateByIDFn(ctx, desc, id, actorID)
}

func (m *mockService) ActivateByID(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
	if m.activateByIDFn == nil {
		panic("activateByIDFn not configured")
	}
	return m.activateByIDFn(ctx, desc, id, actorID)
}

func (m *mockService) Audit(ctx context.Context, desc persistence.EntityDescriptor, actorID int64, startDate, endDate *time.Time) ([]service.AuditEntry, error) {
	if m.auditFn == nil {
		panic("auditFn not configured")
	}
	return m.auditFn(ctx, desc, actorID, startDate, endDate)
}

func testDescriptor(t *testing.T) persistence.EntityDescriptor {
	t.Helper()

	desc, err := persistence.NewTableDescriptor("widgets", []persistence.Column{
		{Name: "serial_number", Type: persistence.ColumnText},
	}, nil, true)
	require.NoError(t, err)
	return desc
}

func mountController(t *testing.T, svc EntityService) chi.Router {
	t.Helper()

	r := chi.NewRouter()
	r.Mount("/widgets", New(testDescriptor(t), svc, nil).Routes())
	return r
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) Envelope {
	t.Helper()

	var envelope Envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	return envelope
}

func TestFindAllForwardsOrderingAndFilters(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.findAllFn = func(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
		require.Equal(t, "name", orderBy)
		require.Equal(t, "false", ascending)
		require.NotNil(t, filters)
		require.Len(t, filters.Filters, 1)
		require.Equal(t, "serial_number", filters.Filters[0].Attribute)
		return []map[string]any{{"id": 1}}, nil
	}

	r := mountController(t, svc)

	body := `{"filters":[{"attribute":"serial_number","primary_value":"SN","operator":"CONTAINS","condition":"AND"}]}`
	req := httptest.NewRequest(http.MethodPost, "/widgets/all?order_by=name&ascending=false", strings.NewReader(body))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	envelope := decodeEnvelope(t, resp)
	require.True(t, envelope.Success)
	require.Len(t, envelope.Object, 1)
}

func TestFindAllPaginatedDefaults(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.findAllPaginatedFn = func(ctx context.Context, desc persistence.EntityDescriptor, start, limit int, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
		require.Equal(t, defaultPageStart, start)
		require.Equal(t, defaultPageLimit, limit)
		require.Nil(t, filters)
		return nil, nil
	}

	r := mountController(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/widgets/all/paginated", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestFindByIDNotFoundIsBadRequest(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.findByIDFn = func(ctx context.Context, desc persistence.EntityDescriptor, id int64) (map[string]any, error) {
		return nil, service.NewEntityNotFound(id)
	}

	r := mountController(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/widgets/find_by_id/42", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	envelope := decodeEnvelope(t, resp)
	require.False(t, envelope.Success)
	require.Contains(t, envelope.Message, "42")
}

func TestSavePassesActorFromRequestTrace(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.saveFn = func(ctx context.Context, desc persistence.EntityDescriptor, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error) {
		require.Nil(t, sess)
		require.NotNil(t, actorID)
		require.Equal(t, int64(9), *actorID)
		require.Equal(t, "SN-1", payload["serial_number"])
		return map[string]any{"id": 1, "serial_number": "SN-1"}, nil
	}

	r := chi.NewRouter()
	actor := int64(9)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requesttrace.IntoContext(req.Context(), requesttrace.AuditInfo{
				ActorKind: requesttrace.ActorKindUser,
				ActorID:   &actor,
			})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Mount("/widgets", New(testDescriptor(t), svc, nil).Routes())

	req := httptest.NewRequest(http.MethodPost, "/widgets/save", strings.NewReader(`{"serial_number":"SN-1"}`))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	envelope := decodeEnvelope(t, resp)
	require.True(t, envelope.Success)
}

func TestSaveRejectsMissingBody(t *testing.T) {
	t.Parallel()

	r := mountController(t, &mockService{})

	req := httptest.NewRequest(http.MethodPost, "/widgets/save", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateRejectsNonNumericID(t *testing.T) {
	t.Parallel()

	r := mountController(t, &mockService{})

	req := httptest.NewRequest(http.MethodPut, "/widgets/update_by_id/abc", strings.NewReader(`{"name":"x"}`))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDeleteLinkedEntitiesConflict(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.deleteByIDFn = func(ctx context.Context, desc persistence.EntityDescriptor, id int64, actorID *int64) (map[string]any, error) {
		return nil, persistence.ErrLinkedEntities
	}

	r := mountController(t, svc)

	req := httptest.NewRequest(http.MethodDelete, "/widgets/delete_by_id/5", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusConflict, resp.Code)
}

func TestSaveDuplicateIsBadRequest(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.saveFn = func(ctx context.Context, desc persistence.EntityDescriptor, payload map[string]any, sess *persistence.Session, actorID *int64) (map[string]any, error) {
		return nil, persistence.ErrDuplicateEntity
	}

	r := mountController(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/widgets/save", strings.NewReader(`{"name":"dup"}`))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	envelope := decodeEnvelope(t, resp)
	require.Contains(t, envelope.Message, "already exists")
}

func TestAuditParsesDateRange(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.auditFn = func(ctx context.Context, desc persistence.EntityDescriptor, actorID int64, startDate, endDate *time.Time) ([]service.AuditEntry, error) {
		require.Equal(t, int64(3), actorID)
		require.NotNil(t, startDate)
		require.NotNil(t, endDate)
		require.Equal(t, 2025, startDate.Year())
		return []service.AuditEntry{}, nil
	}

	r := mountController(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/widgets/audit/3?start_date=2025-01-01&end_date=2025-02-01", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
}

func TestAuditRejectsBadDate(t *testing.T) {
	t.Parallel()

	r := mountController(t, &mockService{})

	req := httptest.NewRequest(http.MethodGet, "/widgets/audit/3?start_date=January", nil)
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUnknownOperatorIsBadRequest(t *testing.T) {
	t.Parallel()

	svc := &mockService{}
	svc.findAllFn = func(ctx context.Context, desc persistence.EntityDescriptor, orderBy, ascending string, filters *persistence.FilterSet) ([]map[string]any, error) {
		return nil, &persistence.UnknownOperatorError{Operator: "LIKE"}
	}

	r := mountController(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/widgets/all", strings.NewReader(`{"filters":[]}`))
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}
