package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/getmoney-core/internal/domain"
	"github.com/xela07ax/getmoney-core/internal/infra/auth"
)

// stubWorkflow возвращает заранее заданные результаты и запоминает,
// с какими аргументами его дернули.
type stubWorkflow struct {
	RequestWorkflow // паникует на невызываемых в тесте методах

	createdWith struct {
		requesterID int64
		amount      int64
	}
	createResult *domain.Request
	createErr    error

	approveEta time.Time
	approveErr error
}

func (s *stubWorkflow) Create(_ context.Context, requesterID, amount int64, comment *string) (*domain.Request, error) {
	s.createdWith.requesterID = requesterID
	s.createdWith.amount = amount
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createResult, nil
}

func (s *stubWorkflow) Approve(_ context.Context, id int64, eta time.Time, comment *string) (*domain.Request, error) {
	s.approveEta = eta
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	return &domain.Request{ID: id, Status: domain.StatusApproved, Eta: &eta}, nil
}

func (s *stubWorkflow) EtaFromOption(option string) time.Time {
	// Узнаваемые значения, чтобы отличить путь option от литерального eta
	if option == domain.EtaOptionToday {
		return time.Date(2024, 6, 1, 21, 0, 0, 0, time.UTC)
	}
	return time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)
}

func newRouter(h *RequestHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/v1/requests", h.Create)
	r.Post("/v1/requests/{id}/approve", h.Approve)
	return r
}

func TestCreateTakesRequesterFromToken(t *testing.T) {
	stub := &stubWorkflow{
		createResult: &domain.Request{ID: 7, RequesterID: 100, Amount: 500, Status: domain.StatusPending},
	}
	router := newRouter(NewRequestHandler(stub))

	body := bytes.NewBufferString(`{"amount": 500, "requester_id": 999}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/requests", body)
	req = req.WithContext(auth.WithIdentity(req.Context(), 100, domain.RoleRequester))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	// requester_id из тела игнорируется — только токен
	assert.Equal(t, int64(100), stub.createdWith.requesterID)
	assert.Equal(t, int64(500), stub.createdWith.amount)

	var got domain.Request
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.ID)
}

func TestCreateValidationErrorMapsTo400(t *testing.T) {
	stub := &stubWorkflow{createErr: domain.ErrValidation}
	router := newRouter(NewRequestHandler(stub))

	req := httptest.NewRequest(http.MethodPost, "/v1/requests", bytes.NewBufferString(`{"amount": 1}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), 100, domain.RoleRequester))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApproveDeclinedMapsTo409(t *testing.T) {
	stub := &stubWorkflow{approveErr: domain.ErrDeclined}
	router := newRouter(NewRequestHandler(stub))

	req := httptest.NewRequest(http.MethodPost, "/v1/requests/5/approve", bytes.NewBufferString(`{}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), 200, domain.RoleApprover))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApprovePrefersLiteralEtaOverOption(t *testing.T) {
	stub := &stubWorkflow{}
	router := newRouter(NewRequestHandler(stub))

	literal := time.Date(2024, 6, 5, 15, 30, 0, 0, time.UTC)
	payload, _ := json.Marshal(ApproveRequest{EtaOption: domain.EtaOptionToday, Eta: &literal})

	req := httptest.NewRequest(http.MethodPost, "/v1/requests/5/approve", bytes.NewReader(payload))
	req = req.WithContext(auth.WithIdentity(req.Context(), 200, domain.RoleApprover))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, literal.Equal(stub.approveEta))
}

func TestApproveFallsBackToOption(t *testing.T) {
	stub := &stubWorkflow{}
	router := newRouter(NewRequestHandler(stub))

	payload, _ := json.Marshal(ApproveRequest{EtaOption: domain.EtaOptionToday})
	req := httptest.NewRequest(http.MethodPost, "/v1/requests/5/approve", bytes.NewReader(payload))
	req = req.WithContext(auth.WithIdentity(req.Context(), 200, domain.RoleApprover))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 6, 1, 21, 0, 0, 0, time.UTC), stub.approveEta)
}

func TestRequireRoleForbidsWrongRole(t *testing.T) {
	stub := &stubWorkflow{}
	h := NewRequestHandler(stub)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleApprover))
		r.Post("/v1/requests/{id}/approve", h.Approve)
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/requests/5/approve", bytes.NewBufferString(`{}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), 100, domain.RoleRequester))
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
