package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/logging"
	"tallerpos/backend/internal/service"
	"tallerpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, service.Options{Logger: logging.Discard()})
	auth := NewAuthManager("test-secret-key-with-32-characters", time.Hour, svc)

	return New(svc, auth, "*", logging.Discard())
}

func login(t *testing.T, api *API, email string, password string) string {
	t.Helper()
	body, _ := json.Marshal(domain.LoginRequest{Email: email, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d: %s", email, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func do(t *testing.T, api *API, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if raw, ok := payload.(string); ok {
			body.WriteString(raw)
		} else if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestMeReturnsCurrentUser(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "tech@tallerpos.local", "staff123")

	rec := do(t, api, http.MethodGet, "/api/v1/auth/me", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	user, _ := body["user"].(map[string]any)
	if user["email"] != "tech@tallerpos.local" {
		t.Fatalf("unexpected user: %v", user)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatalf("password hash must not be serialised")
	}
}

func TestMissingTokenIs401(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/api/v1/sales", "", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["kind"] != "Unauthenticated" {
		t.Fatalf("expected kind Unauthenticated, got %v", body["kind"])
	}
}

func TestTechnicianCannotSell(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "tech@tallerpos.local", "staff123")

	rec := do(t, api, http.MethodPost, "/api/v1/sales", token, domain.CreateSaleRequest{})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier@tallerpos.local", "staff123")

	rec := do(t, api, http.MethodPost, "/api/v1/sales", token, domain.CreateSaleRequest{
		Lines: []domain.SaleLineInput{{ProductID: memory.SeedScreenProduct, Quantity: 4}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	sale := created.Sale
	if sale.Status != domain.SaleCompleted || sale.Total.StringFixed(2) != "600.00" {
		t.Fatalf("unexpected sale: %+v", sale)
	}
	base := "/api/v1/sales/" + strconv.FormatInt(sale.ID, 10)

	rec = do(t, api, http.MethodPost, base+"/lines", token, domain.AddSaleLineRequest{ProductID: memory.SeedScreenProduct, Quantity: 10})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["kind"] != "InsufficientStock" || body["available"] != float64(6) || body["requested"] != float64(10) {
		t.Fatalf("unexpected stock error body: %v", body)
	}

	rec = do(t, api, http.MethodPost, base+"/void", token, domain.VoidSaleRequest{Reason: "  "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for blank reason, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["kind"] != "ReasonRequired" {
		t.Fatalf("expected kind ReasonRequired, got %v", body["kind"])
	}

	rec = do(t, api, http.MethodPost, base+"/void", token, domain.VoidSaleRequest{Reason: "wrong item"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for void, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, api, http.MethodPost, base+"/void", token, domain.VoidSaleRequest{Reason: "again"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second void, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/inventory/"+strconv.FormatInt(memory.SeedScreenProduct, 10), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for inventory, got %d", rec.Code)
	}
	var inv struct {
		Inventory domain.InventoryItem `json:"inventory"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&inv); err != nil {
		t.Fatalf("decode inventory: %v", err)
	}
	if inv.Inventory.Quantity != 10 {
		t.Fatalf("expected stock back at 10, got %d", inv.Inventory.Quantity)
	}
}

func TestOtherBranchSaleIs404(t *testing.T) {
	api := newTestAPI(t)
	north := login(t, api, "counter@tallerpos.local", "staff123")
	central := login(t, api, "cashier@tallerpos.local", "staff123")

	rec := do(t, api, http.MethodPost, "/api/v1/sales", north, domain.CreateSaleRequest{})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/sales/"+strconv.FormatInt(created.Sale.ID, 10), central, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 across branches, got %d", rec.Code)
	}
}

func TestTicketVoidForbiddenForTechnicianCashier(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "counter@tallerpos.local", "staff123")

	rec := do(t, api, http.MethodPost, "/api/v1/service-tickets", token, domain.CreateTicketRequest{
		ClientID:           1,
		DeviceBrand:        "Motorola",
		DeviceModel:        "G8",
		ProblemDescription: "does not charge",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Ticket domain.ServiceTicket `json:"service_ticket"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	if !strings.HasPrefix(created.Ticket.Number, "SVC-") || !strings.HasSuffix(created.Ticket.Number, "-00001") {
		t.Fatalf("unexpected ticket number %s", created.Ticket.Number)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/service-tickets/"+strconv.FormatInt(created.Ticket.ID, 10)+"/void", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier@tallerpos.local", "staff123")

	rec := do(t, api, http.MethodPost, "/api/v1/sales", token, `{"payment_method":"cash","discount":10}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestInvalidPathIDRejected(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "cashier@tallerpos.local", "staff123")

	rec := do(t, api, http.MethodGet, "/api/v1/sales/abc", token, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodDelete, "/api/v1/sales", "", nil)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestDashboardRequiresReportPermission(t *testing.T) {
	api := newTestAPI(t)
	cashier := login(t, api, "cashier@tallerpos.local", "staff123")
	admin := login(t, api, "admin@tallerpos.local", "admin123")

	if rec := do(t, api, http.MethodGet, "/api/v1/reports/sales/dashboard", cashier, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec := do(t, api, http.MethodGet, "/api/v1/reports/sales/dashboard?from=2026-01-01&to=2026-01-31", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d: %s", rec.Code, rec.Body.String())
	}
	var dash domain.SalesDashboard
	if err := json.NewDecoder(rec.Body).Decode(&dash); err != nil {
		t.Fatalf("decode dashboard: %v", err)
	}
	if dash.From != "2026-01-01" || dash.To != "2026-01-31" || len(dash.ByHour.Data) != 24 {
		t.Fatalf("unexpected dashboard: %+v", dash)
	}

	if rec := do(t, api, http.MethodGet, "/api/v1/reports/sales?from=bad", admin, nil); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a malformed date, got %d", rec.Code)
	}
}
