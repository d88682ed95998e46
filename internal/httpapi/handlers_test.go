package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"glasstock/backend/internal/cache"
	"glasstock/backend/internal/domain"
	"glasstock/backend/internal/service"
	"glasstock/backend/internal/store/memory"
)

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()
	repo := memory.NewSeeded()
	svc := service.New(repo, cache.NoopStatsCache{}, time.Second)
	auth := NewAuthManager("test-secret-key", time.Hour, repo)
	return New(svc, auth, "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func loginAs(t *testing.T, handler http.Handler, email, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{
		Email:    email,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected access token in login response")
	}
	return resp.AccessToken
}

func fetchCSRFToken(t *testing.T, handler http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf-token returned %d", rec.Code)
	}
	var resp struct {
		Token string `json:"csrf_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected csrf token")
	}
	return resp.Token
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp["ok"] != true {
		t.Fatalf("expected ok=true, got %v", resp)
	}
}

func TestHandleLoginSuccess(t *testing.T) {
	handler := newTestAPI(t)

	token := loginAs(t, handler, "admin@glasstock.local", "admin123")
	if token == "" {
		t.Fatalf("expected token")
	}
}

func TestHandleLoginInvalidCredentials(t *testing.T) {
	handler := newTestAPI(t)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{
		Email:    "admin@glasstock.local",
		Password: "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProductsRequiresAuth(t *testing.T) {
	handler := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHandleProductsWithValidToken(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "admin@glasstock.local", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode products response: %v", err)
	}
	if len(resp.Products) == 0 {
		t.Fatalf("expected seeded products")
	}
}

func TestMutatingRequestRequiresCSRFToken(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "admin@glasstock.local", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/footfall", token, "", domain.FootfallRequest{Count: 3})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without csrf token, got %d", rec.Code)
	}

	csrf := fetchCSRFToken(t, handler)
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/footfall", token, csrf, domain.FootfallRequest{Count: 3})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with csrf token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProductCreateRequiresAdmin(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "staff@glasstock.local", "staff123")
	csrf := fetchCSRFToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, domain.ProductCreateRequest{
		Name:       "Marquis Carafe",
		SKU:        "MAR-CAR-01",
		TotalStock: 5,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff creating products, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSellFlowPendingThenConfirmed(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "admin@glasstock.local", "admin123")
	csrf := fetchCSRFToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, domain.ProductCreateRequest{
		Name:       "Elegance Flute",
		SKU:        "ELE-FLT-01",
		TotalStock: 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product returned %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created product: %v", err)
	}
	id := created.Product.ID

	// Split stock across buckets so a sell needs confirmation.
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/"+id+"/allocation", token, csrf, domain.AllocationRequest{
		NewHold:    4,
		NewDisplay: 3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("allocation returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/"+id+"/sell", token, csrf, domain.StockRequest{Quantity: 8})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 for pending sell, got %d: %s", rec.Code, rec.Body.String())
	}
	var pending domain.SellResult
	if err := json.NewDecoder(rec.Body).Decode(&pending); err != nil {
		t.Fatalf("decode pending sell: %v", err)
	}
	if pending.State != domain.SellStatePendingBreakdown || pending.Proposal == nil {
		t.Fatalf("expected pending proposal, got %+v", pending)
	}
	want := domain.SellBreakdown{FromDisplay: 3, FromHold: 4, FromFree: 1}
	if pending.Proposal.Breakdown != want {
		t.Fatalf("default breakdown %+v, want %+v", pending.Proposal.Breakdown, want)
	}

	// Nothing committed yet.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	check := httptest.NewRecorder()
	handler.ServeHTTP(check, req)
	var fetched struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(check.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode product: %v", err)
	}
	if fetched.Product.TotalStock != 10 {
		t.Fatalf("pending sell must not mutate stock, got total %d", fetched.Product.TotalStock)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products/"+id+"/sell/confirm", token, csrf, domain.SellConfirmRequest{
		Quantity:  8,
		Breakdown: want,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm returned %d: %s", rec.Code, rec.Body.String())
	}
	var committed domain.SellResult
	if err := json.NewDecoder(rec.Body).Decode(&committed); err != nil {
		t.Fatalf("decode committed sell: %v", err)
	}
	if committed.State != domain.SellStateCommitted || committed.Product == nil {
		t.Fatalf("expected committed sell, got %+v", committed)
	}
	if committed.Product.TotalStock != 2 || committed.Product.OnHold != 0 || committed.Product.OnDisplay != 0 {
		t.Fatalf("buckets not drained: %+v", committed.Product)
	}
}

func TestClearSalesRequiresConfirmFlag(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "admin@glasstock.local", "admin123")
	csrf := fetchCSRFToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/transactions/clear-sales", token, csrf, map[string]any{"confirm": false})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without confirm flag, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/transactions/clear-sales", token, csrf, map[string]any{"confirm": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with confirm flag, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.ClearHistoryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode clear response: %v", err)
	}
	if resp.Deleted != 0 {
		t.Fatalf("fresh store has no sell records, got %d deleted", resp.Deleted)
	}
}

func TestProductNotFoundReturns404(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "admin@glasstock.local", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products/prod-missing", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDuplicateSKUReturns409(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "admin@glasstock.local", "admin123")
	csrf := fetchCSRFToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", token, csrf, domain.ProductCreateRequest{
		Name:       "Duplicate Wine Glass",
		SKU:        "lis-wine-01", // seeded as LIS-WINE-01
		TotalStock: 3,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate sku, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownProductActionRejected(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "admin@glasstock.local", "admin123")
	csrf := fetchCSRFToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products/prod-1/destroy", token, csrf, map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rec.Code)
	}
}

func TestHandleRevenueRejectsBadDates(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "admin@glasstock.local", "admin123")

	for _, query := range []string{"?start=01-08-2026", "?start=2026-08-10&end=2026-08-01"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/revenue"+query, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("query %q: expected 400, got %d", query, rec.Code)
		}
	}
}

func TestStaffManagementAdminOnly(t *testing.T) {
	handler := newTestAPI(t)
	staffToken := loginAs(t, handler, "staff@glasstock.local", "staff123")
	adminToken := loginAs(t, handler, "admin@glasstock.local", "admin123")
	csrf := fetchCSRFToken(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/users/staff", staffToken, csrf, domain.StaffCreateRequest{
		Email:    "second@glasstock.local",
		Password: "pass1234",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/users/staff", adminToken, csrf, domain.StaffCreateRequest{
		Email:    "second@glasstock.local",
		Password: "pass1234",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin, got %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/staff", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	list := httptest.NewRecorder()
	handler.ServeHTTP(list, req)
	if list.Code != http.StatusOK {
		t.Fatalf("list staff returned %d", list.Code)
	}
	var resp struct {
		Staff []domain.StaffUser `json:"staff"`
	}
	if err := json.NewDecoder(list.Body).Decode(&resp); err != nil {
		t.Fatalf("decode staff list: %v", err)
	}
	found := false
	for _, user := range resp.Staff {
		if user.Email == "second@glasstock.local" {
			found = true
		}
	}
	if !found {
		t.Fatalf("new staff member missing from list: %+v", resp.Staff)
	}
}

func TestFootfallListAfterRecord(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "staff@glasstock.local", "staff123")
	csrf := fetchCSRFToken(t, handler)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/footfall", token, csrf, domain.FootfallRequest{Count: i + 1})
		if rec.Code != http.StatusCreated {
			t.Fatalf("record %d returned %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/footfall?limit=2", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list footfall returned %d", rec.Code)
	}
	var resp struct {
		Footfall []domain.FootfallRecord `json:"footfall"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode footfall: %v", err)
	}
	if len(resp.Footfall) != 2 {
		t.Fatalf("expected limit 2 honored, got %d records", len(resp.Footfall))
	}
}

func TestDashboardWithToken(t *testing.T) {
	handler := newTestAPI(t)
	token := loginAs(t, handler, "staff@glasstock.local", "staff123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard returned %d: %s", rec.Code, rec.Body.String())
	}
	var stats domain.DashboardStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if stats.TotalProducts == 0 {
		t.Fatalf("expected seeded products in dashboard stats")
	}
}

func TestRequestsFromDistinctClientsUseSeparateLimits(t *testing.T) {
	handler := newTestAPI(t)

	body := func() *bytes.Buffer {
		var buf bytes.Buffer
		_ = json.NewEncoder(&buf).Encode(domain.LoginRequest{Email: "admin@glasstock.local", Password: "nope"})
		return &buf
	}

	// Exhaust one client's budget.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body())
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "203.0.113.9:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body())
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:4001"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("same IP different port should share the limit, got %d", rec.Code)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body())
	other.Header.Set("Content-Type", "application/json")
	other.RemoteAddr = fmt.Sprintf("203.0.113.%d:4000", 10)
	otherRec := httptest.NewRecorder()
	handler.ServeHTTP(otherRec, other)
	if otherRec.Code != http.StatusUnauthorized {
		t.Fatalf("distinct IP must not be limited, got %d", otherRec.Code)
	}
}
