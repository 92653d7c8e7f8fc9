package statusservice

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-chat/internal/domain/chat"
	"delivery-chat/internal/domain/orders"
	"delivery-chat/internal/shared/auth"
	"delivery-chat/internal/shared/logger"
)

const testSecret = "unit-test-secret-32-characters!!"

func newTestMux(t *testing.T, repo *stubOrders) (*http.ServeMux, *auth.TokenAuthenticator) {
	t.Helper()
	authn := auth.NewTokenAuthenticator(testSecret)
	svc := newTestService(repo, &stubPublisher{})

	mux := http.NewServeMux()
	NewHandler(logger.NewLogger("test"), authn, svc).Register(mux)
	return mux, authn
}

func issueToken(t *testing.T, authn *auth.TokenAuthenticator, identity string, role chat.Role) string {
	t.Helper()
	token, err := authn.Issue(identity, role, time.Hour)
	require.NoError(t, err)
	return token
}

func doPatch(mux *http.ServeMux, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPatch, "/orders/order-1/status", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestPatchStatusAppliesTransition(t *testing.T) {
	repo := &stubOrders{
		order:      &orders.Order{ID: "order-1", Status: orders.StatusPending},
		casApplied: true,
	}
	mux, authn := newTestMux(t, repo)
	token := issueToken(t, authn, "admin-7", chat.RoleAdmin)

	rec := doPatch(mux, token, `{"status":"processing"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"newStatus":"processing"`)
	assert.Contains(t, rec.Body.String(), `"oldStatus":"pending"`)
}

func TestPatchStatusRejectsCustomers(t *testing.T) {
	repo := &stubOrders{order: &orders.Order{ID: "order-1", Status: orders.StatusPending}}
	mux, authn := newTestMux(t, repo)
	token := issueToken(t, authn, "user-1", chat.RoleCustomer)

	rec := doPatch(mux, token, `{"status":"processing"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, repo.casCalls)
}

func TestPatchStatusRequiresToken(t *testing.T) {
	repo := &stubOrders{order: &orders.Order{ID: "order-1", Status: orders.StatusPending}}
	mux, _ := newTestMux(t, repo)

	rec := doPatch(mux, "", `{"status":"processing"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPatchStatusUnknownStatus(t *testing.T) {
	repo := &stubOrders{order: &orders.Order{ID: "order-1", Status: orders.StatusPending}}
	mux, authn := newTestMux(t, repo)
	token := issueToken(t, authn, "dispatcher-2", chat.RoleDispatcher)

	rec := doPatch(mux, token, `{"status":"teleported"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPatchStatusIllegalEdgeConflicts(t *testing.T) {
	repo := &stubOrders{order: &orders.Order{ID: "order-1", Status: orders.StatusProcessing}}
	mux, authn := newTestMux(t, repo)
	token := issueToken(t, authn, "admin-7", chat.RoleAdmin)

	rec := doPatch(mux, token, `{"status":"delivered"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetHistory(t *testing.T) {
	ts := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := &stubOrders{history: []orders.StatusLog{
		{OrderID: "order-1", Status: orders.StatusPending, ChangedBy: "system", ChangedAt: ts},
	}}
	mux, authn := newTestMux(t, repo)
	token := issueToken(t, authn, "admin-7", chat.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed_by":"system"`)

	// unknown order yields an empty trail -> 404
	repo.history = nil
	req = httptest.NewRequest(http.MethodGet, "/orders/ghost/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
