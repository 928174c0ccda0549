package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/logging"
	"tallerpos/backend/internal/service"
	"tallerpos/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	log           *logrus.Entry
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *logging.Logger) *API {
	if logger == nil {
		logger = logging.Discard()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		log:           logger.Component("httpapi"),
	}
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("GET /api/v1/roles", a.requireAuth(a.handleRoles))

	mux.HandleFunc("GET /api/v1/branches", a.requireAuth(a.handleListBranches))
	mux.HandleFunc("POST /api/v1/branches", a.requireAuth(a.handleCreateBranch, domain.PermManageBranches))
	mux.HandleFunc("PATCH /api/v1/branches/{id}/status", a.requireAuth(a.handleBranchStatus, domain.PermManageBranches))

	mux.HandleFunc("GET /api/v1/categories", a.requireAuth(a.handleListCategories))
	mux.HandleFunc("POST /api/v1/categories", a.requireAuth(a.handleCreateCategory, domain.PermManageCatalog))
	mux.HandleFunc("PATCH /api/v1/categories/{id}/status", a.requireAuth(a.handleCategoryStatus, domain.PermManageCatalog))

	mux.HandleFunc("GET /api/v1/clients", a.requireAuth(a.handleListClients, domain.PermManageClients))
	mux.HandleFunc("POST /api/v1/clients", a.requireAuth(a.handleCreateClient, domain.PermManageClients))
	mux.HandleFunc("GET /api/v1/clients/{id}", a.requireAuth(a.handleGetClient, domain.PermManageClients))
	mux.HandleFunc("PATCH /api/v1/clients/{id}/status", a.requireAuth(a.handleClientStatus, domain.PermManageClients))

	mux.HandleFunc("GET /api/v1/products", a.requireAuth(a.handleListProducts))
	mux.HandleFunc("POST /api/v1/products", a.requireAuth(a.handleCreateProduct, domain.PermManageCatalog))
	mux.HandleFunc("GET /api/v1/products/{id}", a.requireAuth(a.handleGetProduct))
	mux.HandleFunc("PATCH /api/v1/products/{id}", a.requireAuth(a.handleUpdateProduct, domain.PermManageCatalog))

	mux.HandleFunc("GET /api/v1/users", a.requireAuth(a.handleListUsers, domain.PermManageUsers))
	mux.HandleFunc("POST /api/v1/users", a.requireAuth(a.handleCreateUser, domain.PermManageUsers))

	mux.HandleFunc("GET /api/v1/inventory", a.requireAuth(a.handleListInventory, domain.PermViewInventory))
	mux.HandleFunc("GET /api/v1/inventory/{productID}", a.requireAuth(a.handleGetQuantity, domain.PermViewInventory))
	mux.HandleFunc("PUT /api/v1/inventory", a.requireAuth(a.handleUpsertInventory, domain.PermManageInventory))

	mux.HandleFunc("GET /api/v1/sales", a.requireAuth(a.handleListSales, domain.PermSell, domain.PermViewReports))
	mux.HandleFunc("POST /api/v1/sales", a.requireAuth(a.handleCreateSale, domain.PermSell))
	mux.HandleFunc("GET /api/v1/sales/{id}", a.requireAuth(a.handleGetSale, domain.PermSell, domain.PermViewReports))
	mux.HandleFunc("POST /api/v1/sales/{id}/lines", a.requireAuth(a.handleAddSaleLine, domain.PermSell))
	mux.HandleFunc("POST /api/v1/sales/{id}/void", a.requireAuth(a.handleVoidSale))

	mux.HandleFunc("GET /api/v1/service-tickets", a.requireAuth(a.handleListTickets, domain.PermManageTickets, domain.PermViewReports))
	mux.HandleFunc("POST /api/v1/service-tickets", a.requireAuth(a.handleCreateTicket, domain.PermManageTickets))
	mux.HandleFunc("GET /api/v1/service-tickets/{id}", a.requireAuth(a.handleGetTicket, domain.PermManageTickets, domain.PermViewReports))
	mux.HandleFunc("PATCH /api/v1/service-tickets/{id}/status", a.requireAuth(a.handleTicketStatus, domain.PermManageTickets))
	mux.HandleFunc("PATCH /api/v1/service-tickets/{id}/technician", a.requireAuth(a.handleAssignTechnician, domain.PermAssignTechnician))
	// The ticket void allow-list is configurable, so the service checks the role.
	mux.HandleFunc("POST /api/v1/service-tickets/{id}/void", a.requireAuth(a.handleVoidTicket))

	mux.HandleFunc("GET /api/v1/reports/sales/dashboard", a.requireAuth(a.handleSalesDashboard, domain.PermViewReports))
	mux.HandleFunc("GET /api/v1/reports/sales", a.requireAuth(a.handleSalesReport, domain.PermViewReports))
	mux.HandleFunc("GET /api/v1/reports/service-tickets/dashboard", a.requireAuth(a.handleServiceDashboard, domain.PermViewReports))
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, domain.PermViewReports))

	return a.withMiddleware(mux)
}

// requireAuth verifies the bearer token and, when perms are given, that the
// role holds at least one of them.
func (a *API) requireAuth(next http.HandlerFunc, perms ...domain.Permission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, r, fmt.Errorf("%w: missing bearer token", store.ErrUnauthenticated))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, r, err)
			return
		}

		if len(perms) > 0 && !holdsAny(actor.Role, perms) {
			a.writeError(w, r, fmt.Errorf("%w: role %s lacks %s", store.ErrForbidden, actor.Role, perms[0]))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func holdsAny(role domain.Role, perms []domain.Permission) bool {
	for _, p := range perms {
		if role.Can(p) {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "too many login attempts", "kind": "RateLimited"})
		return
	}

	var req domain.LoginRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.Me(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "permissions": user.Role.Permissions()})
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"roles": a.service.ListRoles()})
}

func (a *API) handleListBranches(w http.ResponseWriter, r *http.Request) {
	branches, err := a.service.ListBranches(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

func (a *API) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req domain.BranchCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	branch, err := a.service.CreateBranch(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"branch": branch})
}

func (a *API) handleBranchStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.StatusChangeRequest
	if !a.decode(w, r, &req) {
		return
	}
	branch, err := a.service.SetBranchStatus(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branch": branch})
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kind := domain.CategoryKind(strings.TrimSpace(r.URL.Query().Get("kind")))
	categories, err := a.service.ListCategories(r.Context(), kind)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	category, err := a.service.CreateCategory(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"category": category})
}

func (a *API) handleCategoryStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.StatusChangeRequest
	if !a.decode(w, r, &req) {
		return
	}
	category, err := a.service.SetCategoryStatus(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": category})
}

func (a *API) handleListClients(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	clients, err := a.service.ListClients(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (a *API) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req domain.ClientCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	client, err := a.service.CreateClient(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"client": client})
}

func (a *API) handleGetClient(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	client, err := a.service.GetClient(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

func (a *API) handleClientStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.StatusChangeRequest
	if !a.decode(w, r, &req) {
		return
	}
	client, err := a.service.SetClientStatus(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"client": client})
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	products, err := a.service.ListProducts(r.Context(), includeInactive)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	product, err := a.service.GetProduct(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.ProductUpdateRequest
	if !a.decode(w, r, &req) {
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	branchID, ok := a.queryID(w, r, "branch_id")
	if !ok {
		return
	}
	users, err := a.service.ListUsers(r.Context(), branchID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if !a.decode(w, r, &req) {
		return
	}
	user, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleListInventory(w http.ResponseWriter, r *http.Request) {
	branchID, ok := a.queryID(w, r, "branch_id")
	if !ok {
		return
	}
	productID, ok := a.queryID(w, r, "product_id")
	if !ok {
		return
	}
	items, err := a.service.ListInventory(r.Context(), domain.InventoryFilter{BranchID: branchID, ProductID: productID})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": items})
}

func (a *API) handleGetQuantity(w http.ResponseWriter, r *http.Request) {
	productID, ok := a.pathID(w, r, "productID")
	if !ok {
		return
	}
	branchID, ok := a.queryID(w, r, "branch_id")
	if !ok {
		return
	}
	item, err := a.service.GetQuantity(r.Context(), productID, branchID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": item})
}

func (a *API) handleUpsertInventory(w http.ResponseWriter, r *http.Request) {
	var req domain.InventoryUpsertRequest
	if !a.decode(w, r, &req) {
		return
	}
	item, err := a.service.UpsertInventory(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": item})
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	branchID, ok := a.queryID(w, r, "branch_id")
	if !ok {
		return
	}
	q, ok := a.reportRange(w, r, branchID)
	if !ok {
		return
	}
	sales, err := a.service.ListSales(r.Context(), domain.SaleFilter{
		BranchID: q.BranchID,
		Status:   domain.SaleStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		From:     q.From,
		To:       q.To,
		Limit:    parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSaleRequest
	if !a.decode(w, r, &req) {
		return
	}
	sale, err := a.service.CreateSale(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sale": sale})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	sale, err := a.service.GetSale(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleAddSaleLine(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.AddSaleLineRequest
	if !a.decode(w, r, &req) {
		return
	}
	resp, err := a.service.AddSaleLine(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleVoidSale(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.VoidSaleRequest
	if !a.decode(w, r, &req) {
		return
	}
	sale, err := a.service.VoidSale(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleListTickets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	branchID, ok := a.queryID(w, r, "branch_id")
	if !ok {
		return
	}
	q, ok := a.reportRange(w, r, branchID)
	if !ok {
		return
	}
	tickets, err := a.service.ListTickets(r.Context(), domain.TicketFilter{
		BranchID: q.BranchID,
		Status:   domain.TicketStatus(strings.TrimSpace(query.Get("status"))),
		From:     q.From,
		To:       q.To,
		Limit:    parsePositiveLimit(query.Get("limit"), 100, 500),
	}, query.Get("mine") == "true")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_tickets": tickets})
}

func (a *API) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateTicketRequest
	if !a.decode(w, r, &req) {
		return
	}
	ticket, err := a.service.CreateTicket(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"service_ticket": ticket})
}

func (a *API) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	ticket, err := a.service.GetTicket(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_ticket": ticket})
}

func (a *API) handleTicketStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.SetTicketStatusRequest
	if !a.decode(w, r, &req) {
		return
	}
	ticket, err := a.service.SetTicketStatus(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_ticket": ticket})
}

func (a *API) handleAssignTechnician(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	var req domain.AssignTechnicianRequest
	if !a.decode(w, r, &req) {
		return
	}
	ticket, err := a.service.AssignTechnician(r.Context(), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_ticket": ticket})
}

func (a *API) handleVoidTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := a.pathID(w, r, "id")
	if !ok {
		return
	}
	ticket, err := a.service.VoidTicket(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"service_ticket": ticket})
}

func (a *API) handleSalesDashboard(w http.ResponseWriter, r *http.Request) {
	q, ok := a.reportQuery(w, r)
	if !ok {
		return
	}
	dash, err := a.service.SalesDashboard(r.Context(), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	q, ok := a.reportQuery(w, r)
	if !ok {
		return
	}
	report, err := a.service.SalesReport(r.Context(), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleServiceDashboard(w http.ResponseWriter, r *http.Request) {
	q, ok := a.reportQuery(w, r)
	if !ok {
		return
	}
	dash, err := a.service.ServiceDashboard(r.Context(), q)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	branchID, ok := a.queryID(w, r, "branch_id")
	if !ok {
		return
	}
	q, ok := a.reportRange(w, r, branchID)
	if !ok {
		return
	}
	logs, err := a.service.ListAuditLogs(r.Context(), domain.AuditFilter{
		BranchID: q.BranchID,
		From:     q.From,
		To:       q.To,
		Limit:    parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

// reportQuery reads branch_id, from and to. A missing range means today.
func (a *API) reportQuery(w http.ResponseWriter, r *http.Request) (domain.ReportQuery, bool) {
	branchID, ok := a.queryID(w, r, "branch_id")
	if !ok {
		return domain.ReportQuery{}, false
	}
	q, err := a.service.ReportRange(branchID, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		a.writeError(w, r, err)
		return domain.ReportQuery{}, false
	}
	return q, true
}

// reportRange is the listing variant: without from and to the range stays
// unbounded.
func (a *API) reportRange(w http.ResponseWriter, r *http.Request, branchID int64) (domain.ReportQuery, bool) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" && to == "" {
		return domain.ReportQuery{BranchID: branchID}, true
	}
	if from == "" {
		from = to
	}
	q, err := a.service.ReportRange(branchID, from, to)
	if err != nil {
		a.writeError(w, r, err)
		return domain.ReportQuery{}, false
	}
	return q, true
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(startedAt).Milliseconds(),
		}).Info("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body: " + err.Error(), "kind": "BadRequest"})
		return false
	}
	return true
}

func (a *API) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid " + name, "kind": "BadRequest"})
		return 0, false
	}
	return id, true
}

// queryID reads an optional positive id from the query string. Absent reads
// as zero.
func (a *API) queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid " + name, "kind": "BadRequest"})
		return 0, false
	}
	return id, true
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

var kindStatus = map[store.Kind]int{
	store.KindNotFound:               http.StatusNotFound,
	store.KindInsufficientStock:      http.StatusConflict,
	store.KindInventoryRecordMissing: http.StatusConflict,
	store.KindAlreadyVoided:          http.StatusConflict,
	store.KindReasonRequired:         http.StatusUnprocessableEntity,
	store.KindValidation:             http.StatusUnprocessableEntity,
	store.KindForbidden:              http.StatusForbidden,
	store.KindUnauthenticated:        http.StatusUnauthorized,
	store.KindWriteConflict:          http.StatusServiceUnavailable,
}

func statusFor(kind store.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError maps err to its taxonomy kind and status. Messages of 5xx
// responses are masked; the cause goes to the log.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := store.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status >= 500 {
		a.log.WithFields(logrus.Fields{
			"status": status,
			"kind":   kind,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
		if kind == store.KindInternal {
			msg = "internal server error"
		}
	}

	body := map[string]any{"error": msg, "kind": kind}
	var stockErr *store.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["product_id"] = stockErr.ProductID
		body["available"] = stockErr.Available
		body["requested"] = stockErr.Requested
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
