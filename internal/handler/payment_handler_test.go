package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eaglebank/payments-service/internal/cqrs"
	"github.com/eaglebank/payments-service/internal/models"
	"github.com/eaglebank/payments-service/internal/notify"
	"github.com/eaglebank/payments-service/internal/query"
	"github.com/eaglebank/payments-service/internal/repository"
	"github.com/eaglebank/payments-service/internal/store"
)

// ---- mock implementations ----

type mockBackend struct {
	listFn    func(cqrs.ListPaymentsQuery) ([]models.PaymentRow, error)
	getFn     func(string) (*models.PaymentRow, error)
	releaseFn func(cqrs.ReleaseEscrowCommand) error
}

func (m *mockBackend) ListPayments(_ context.Context, q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error) {
	if m.listFn != nil {
		return m.listFn(q)
	}
	return nil, nil
}

func (m *mockBackend) GetPayment(_ context.Context, id string) (*models.PaymentRow, error) {
	if m.getFn != nil {
		return m.getFn(id)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockBackend) ReleaseEscrow(_ context.Context, cmd cqrs.ReleaseEscrowCommand) error {
	if m.releaseFn != nil {
		return m.releaseFn(cmd)
	}
	return fmt.Errorf("not configured")
}

type mockRefunds struct {
	issueFn func(cqrs.RequestRefundCommand) (bool, error)
}

func (m *mockRefunds) IssueRefund(_ context.Context, cmd cqrs.RequestRefundCommand) (bool, error) {
	if m.issueFn != nil {
		return m.issueFn(cmd)
	}
	return false, fmt.Errorf("not configured")
}

type mockQuerier struct {
	getFn func(cqrs.GetPaymentQuery) (*models.PaymentRow, error)
}

func (m *mockQuerier) GetPaymentForUser(_ context.Context, q cqrs.GetPaymentQuery) (*models.PaymentRow, error) {
	if m.getFn != nil {
		return m.getFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

// fakeSessions builds one store per request-visible options and records
// what it was asked for.
type fakeSessions struct {
	mu       sync.Mutex
	backend  *mockBackend
	refunds  *mockRefunds
	notifier *notify.Recorder
	stores   map[store.Options]*store.TransactionStore
	lastOpts store.Options
}

func newFakeSessions(backend *mockBackend, refunds *mockRefunds) *fakeSessions {
	return &fakeSessions{
		backend:  backend,
		refunds:  refunds,
		notifier: &notify.Recorder{},
		stores:   make(map[store.Options]*store.TransactionStore),
	}
}

func (f *fakeSessions) Get(ctx context.Context, userID string, opts store.Options) (*store.TransactionStore, bool) {
	f.mu.Lock()
	f.lastOpts = opts
	if st, ok := f.stores[opts]; ok {
		f.mu.Unlock()
		return st, false
	}
	st := store.New(f.backend, store.StaticIdentity(userID), f.refunds, f.notifier, nil, opts, zerolog.Nop())
	f.stores[opts] = st
	f.mu.Unlock()
	st.Open(ctx)
	return st, true
}

// ---- helpers ----

func fakeAuth(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userId", userID)
		c.Next()
	}
}

var testDefaults = store.Options{Limit: 100, RefundWindow: 30 * 24 * time.Hour, Locale: "en"}

func newTestRouter(sessions Sessions, queries PaymentQuerier, authUserID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(fakeAuth(authUserID))
	h := NewPaymentHandler(sessions, queries, testDefaults)
	v1 := r.Group("/v1/payments")
	v1.GET("", h.ListPayments)
	v1.GET("/:paymentId", h.GetPayment)
	v1.GET("/:paymentId/eligibility", h.GetEligibility)
	v1.POST("/:paymentId/refund", h.RequestRefund)
	v1.POST("/:paymentId/escrow/release", h.ReleaseEscrow)
	return r
}

func doRequest(router *gin.Engine, method, url string, body any) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, url, nil)
	if body != nil {
		b, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, url, strings.NewReader(string(b)))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ---- test data ----

func strPtr(s string) *string { return &s }

func completedRow(id string) models.PaymentRow {
	return models.PaymentRow{
		ID:        id,
		UserID:    "usr-001",
		Amount:    20,
		Currency:  "GBP",
		Status:    models.PaymentStatusCompleted,
		CreatedAt: time.Now().Add(-time.Hour),
	}
}

func escrowRow(id, status string) models.PaymentRow {
	row := completedRow(id)
	row.EscrowID = strPtr("esc-" + id)
	row.EscrowStatus = strPtr(status)
	return row
}

// ---- tests ----

func TestListPayments(t *testing.T) {
	backend := &mockBackend{listFn: func(q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error) {
		return []models.PaymentRow{completedRow("pay-1"), escrowRow("pay-2", models.EscrowStatusHeld)}, nil
	}}
	sessions := newFakeSessions(backend, &mockRefunds{})
	router := newTestRouter(sessions, &mockQuerier{}, "usr-001")

	w := doRequest(router, http.MethodGet, "/v1/payments?type=marketplace_order&escrowOnly=true&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "marketplace_order", sessions.lastOpts.RelatedType)
	assert.True(t, sessions.lastOpts.EscrowOnly)
	assert.Equal(t, 5, sessions.lastOpts.Limit)

	var resp ListPaymentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Loading)
	assert.Equal(t, 5, resp.Limit)
}

func TestListPayments_ReturnsEligibilityFlags(t *testing.T) {
	backend := &mockBackend{listFn: func(q cqrs.ListPaymentsQuery) ([]models.PaymentRow, error) {
		return []models.PaymentRow{escrowRow("pay-2", models.EscrowStatusHeld), completedRow("pay-1")}, nil
	}}
	router := newTestRouter(newFakeSessions(backend, &mockRefunds{}), &mockQuerier{}, "usr-001")

	w := doRequest(router, http.MethodGet, "/v1/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListPaymentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Payments, 2)
	for _, p := range resp.Payments {
		assert.True(t, p.CanRequestRefund, p.ID)
		assert.Equal(t, p.Escrow != nil, p.CanReleaseEscrow, p.ID)
	}
}

func TestListPayments_Errors(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		listFn         func(cqrs.ListPaymentsQuery) ([]models.PaymentRow, error)
		expectedStatus int
	}{
		{
			name:           "bad request - limit above maximum",
			url:            "/v1/payments?limit=1000",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - limit not a number",
			url:            "/v1/payments?limit=ten",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - forbidden characters in type",
			url:            "/v1/payments?type=a%3Bdrop",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad gateway - backend failure",
			url:  "/v1/payments",
			listFn: func(cqrs.ListPaymentsQuery) ([]models.PaymentRow, error) {
				return nil, fmt.Errorf("connection reset")
			},
			expectedStatus: http.StatusBadGateway,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(newFakeSessions(&mockBackend{listFn: tt.listFn}, &mockRefunds{}), &mockQuerier{}, "usr-001")
			w := doRequest(router, http.MethodGet, tt.url, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestListPayments_RefetchesExistingSession(t *testing.T) {
	calls := 0
	backend := &mockBackend{listFn: func(cqrs.ListPaymentsQuery) ([]models.PaymentRow, error) {
		calls++
		return nil, nil
	}}
	router := newTestRouter(newFakeSessions(backend, &mockRefunds{}), &mockQuerier{}, "usr-001")

	doRequest(router, http.MethodGet, "/v1/payments", nil)
	assert.Equal(t, 1, calls)
	doRequest(router, http.MethodGet, "/v1/payments", nil)
	assert.Equal(t, 2, calls)
}

func TestGetPayment(t *testing.T) {
	tests := []struct {
		name           string
		paymentID      string
		getFn          func(cqrs.GetPaymentQuery) (*models.PaymentRow, error)
		expectedStatus int
	}{
		{
			name:      "success - own payment",
			paymentID: "pay-1",
			getFn: func(q cqrs.GetPaymentQuery) (*models.PaymentRow, error) {
				row := completedRow(q.PaymentID)
				return &row, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:      "forbidden - another user's payment",
			paymentID: "pay-2",
			getFn: func(cqrs.GetPaymentQuery) (*models.PaymentRow, error) {
				return nil, query.ErrForbidden
			},
			expectedStatus: http.StatusForbidden,
		},
		{
			name:      "not found - payment does not exist",
			paymentID: "pay-404",
			getFn: func(cqrs.GetPaymentQuery) (*models.PaymentRow, error) {
				return nil, repository.ErrPaymentNotFound
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "bad request - malformed id",
			paymentID:      "tan-1",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:      "internal error",
			paymentID: "pay-3",
			getFn: func(cqrs.GetPaymentQuery) (*models.PaymentRow, error) {
				return nil, fmt.Errorf("driver: bad connection")
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(newFakeSessions(&mockBackend{}, &mockRefunds{}), &mockQuerier{getFn: tt.getFn}, "usr-001")
			w := doRequest(router, http.MethodGet, "/v1/payments/"+tt.paymentID, nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetEligibility(t *testing.T) {
	queries := &mockQuerier{getFn: func(q cqrs.GetPaymentQuery) (*models.PaymentRow, error) {
		row := escrowRow(q.PaymentID, models.EscrowStatusReleased)
		return &row, nil
	}}
	router := newTestRouter(newFakeSessions(&mockBackend{}, &mockRefunds{}), queries, "usr-001")

	w := doRequest(router, http.MethodGet, "/v1/payments/pay-1/eligibility", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp EligibilityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "pay-1", resp.PaymentID)
	assert.False(t, resp.CanRequestRefund)
	assert.False(t, resp.CanReleaseEscrow)
}

func TestRequestRefund(t *testing.T) {
	tests := []struct {
		name           string
		paymentID      string
		body           any
		issueFn        func(cqrs.RequestRefundCommand) (bool, error)
		expectedStatus int
	}{
		{
			name:      "accepted - refund issued",
			paymentID: "pay-1",
			body:      map[string]any{"reason": "item never arrived"},
			issueFn: func(cmd cqrs.RequestRefundCommand) (bool, error) {
				if cmd.Reason != "item never arrived" || cmd.RequestingUserID != "usr-001" {
					return false, fmt.Errorf("unexpected command %+v", cmd)
				}
				return true, nil
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "accepted - no body",
			paymentID:      "pay-1",
			issueFn:        func(cqrs.RequestRefundCommand) (bool, error) { return true, nil },
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "unprocessable - refund declined",
			paymentID:      "pay-1",
			issueFn:        func(cqrs.RequestRefundCommand) (bool, error) { return false, nil },
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "unprocessable - refund service error",
			paymentID:      "pay-1",
			issueFn:        func(cqrs.RequestRefundCommand) (bool, error) { return false, fmt.Errorf("timeout") },
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "bad request - reason too long",
			paymentID:      "pay-1",
			body:           map[string]any{"reason": strings.Repeat("x", 501)},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - malformed id",
			paymentID:      "nope",
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := newFakeSessions(&mockBackend{}, &mockRefunds{issueFn: tt.issueFn})
			router := newTestRouter(sessions, &mockQuerier{}, "usr-001")
			w := doRequest(router, http.MethodPost, "/v1/payments/"+tt.paymentID+"/refund", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestReleaseEscrow(t *testing.T) {
	tests := []struct {
		name           string
		row            models.PaymentRow
		releaseFn      func(cqrs.ReleaseEscrowCommand) error
		expectedStatus int
	}{
		{
			name: "success - held escrow released",
			row:  escrowRow("pay-1", models.EscrowStatusHeld),
			releaseFn: func(cmd cqrs.ReleaseEscrowCommand) error {
				if cmd.EscrowID != "esc-pay-1" {
					return fmt.Errorf("unexpected escrow %s", cmd.EscrowID)
				}
				return nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unprocessable - no escrow data",
			row:            completedRow("pay-1"),
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "unprocessable - already released",
			row:            escrowRow("pay-1", models.EscrowStatusReleased),
			releaseFn:      func(cqrs.ReleaseEscrowCommand) error { return repository.ErrEscrowNotHeld },
			expectedStatus: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{
				getFn: func(string) (*models.PaymentRow, error) {
					row := tt.row
					return &row, nil
				},
				releaseFn: tt.releaseFn,
			}
			router := newTestRouter(newFakeSessions(backend, &mockRefunds{}), &mockQuerier{}, "usr-001")
			w := doRequest(router, http.MethodPost, "/v1/payments/pay-1/escrow/release", nil)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestRequestRefund_UsesAcceptLanguage(t *testing.T) {
	sessions := newFakeSessions(&mockBackend{}, &mockRefunds{issueFn: func(cqrs.RequestRefundCommand) (bool, error) {
		return false, nil
	}})
	router := newTestRouter(sessions, &mockQuerier{}, "usr-001")

	req, _ := http.NewRequest(http.MethodPost, "/v1/payments/pay-1/refund", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.5")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "de-DE", sessions.lastOpts.Locale)
	errs := sessions.notifier.ShownOfKind(notify.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, notify.NewCatalog().Lookup("de", notify.KeyRefundFailed).Title, errs[0].Title)
}
