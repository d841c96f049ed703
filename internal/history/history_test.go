package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-supply/internal/shared"
)

type memoryRepo struct {
	records  []Record
	lastType Type
	lastF    Filter
}

func (m *memoryRepo) List(_ context.Context, typ Type, f Filter) ([]Record, int, error) {
	m.lastType, m.lastF = typ, f
	var out []Record
	for _, r := range m.records {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListByItem(_ context.Context, itemID int64, typ Type) ([]Record, error) {
	var out []Record
	for _, r := range m.records {
		if r.Type == typ && r.ItemID == itemID {
			out = append(out, r)
		}
	}
	return out, nil
}

var staff = shared.Principal{UserID: 2, Username: "staff", Role: shared.RoleStaff}

func TestBuildFilterIncoming(t *testing.T) {
	qb, err := buildFilter(TypeIncoming, Filter{
		ItemCode:      "BLT-01",
		WarehouseName: "main",
		StartDate:     "2024-03-01",
		EndDate:       "2024-03-31",
		DONumber:      "ignored-for-incoming",
	})
	require.NoError(t, err)
	query, args, err := qb.ToSql()
	require.NoError(t, err)
	require.Contains(t, query, "h.type = $1")
	require.Contains(t, query, "i.code = $2")
	require.Contains(t, query, "w.name ILIKE $3")
	require.NotContains(t, query, "h.do_number")
	require.Len(t, args, 5)
	require.Equal(t, "%main%", args[2])
	require.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), args[4])
}

func TestBuildFilterOutgoing(t *testing.T) {
	qb, err := buildFilter(TypeOutgoing, Filter{MPRNumber: "MPR-0001JKT", LocationName: "jak"})
	require.NoError(t, err)
	query, args, err := qb.ToSql()
	require.NoError(t, err)
	require.Contains(t, query, "h.mpr_number = $2")
	require.Contains(t, query, "l.name ILIKE $3")
	require.Equal(t, []any{TypeOutgoing, "MPR-0001JKT", "%jak%"}, args)
}

func TestListRequiresOperator(t *testing.T) {
	svc := NewService(&memoryRepo{})
	_, _, err := svc.ListIncoming(context.Background(), shared.Principal{UserID: 5, Role: shared.RoleUser}, Filter{})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestListRejectsBadDate(t *testing.T) {
	svc := NewService(&memoryRepo{})
	_, _, err := svc.ListOutgoing(context.Background(), staff, Filter{StartDate: "03/01/2024"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestHandlerListsOutgoing(t *testing.T) {
	repo := &memoryRepo{records: []Record{
		{ID: 1, Type: TypeIncoming, ItemID: 1, Quantity: 5},
		{ID: 2, Type: TypeOutgoing, ItemID: 1, Quantity: 3, DONumber: "DO-1"},
	}}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), staff)))
		})
	})
	NewHandler(NewService(repo)).MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/outgoing?do_number=DO-1&per_page=10", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DO-1", repo.lastF.DONumber)
	require.Equal(t, 10, repo.lastF.Page.PerPage)
	var body struct {
		Data       []Record          `json:"data"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 1, body.Pagination.Total)
}
