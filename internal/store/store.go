package store

import (
	"context"
	"time"

	"tallerpos/backend/internal/domain"
)

// Ledger is the per-(product, branch) stock count. Reserve and Release are
// serialised per row by every implementation.
type Ledger interface {
	GetQuantity(ctx context.Context, productID int64, branchID int64) (int, error)
	Reserve(ctx context.Context, productID int64, branchID int64, qty int) error
	Release(ctx context.Context, productID int64, branchID int64, qty int) error
	UpsertQuantity(ctx context.Context, productID int64, branchID int64, qty int) (*domain.InventoryItem, error)
	ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryItem, error)
}

type Repository interface {
	Ledger

	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	GetBranch(ctx context.Context, id int64) (*domain.Branch, error)
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	SetBranchStatus(ctx context.Context, id int64, status domain.RecordStatus) (*domain.Branch, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context, kind domain.CategoryKind) ([]domain.Category, error)
	SetCategoryStatus(ctx context.Context, id int64, status domain.RecordStatus) (*domain.Category, error)

	CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error)
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	ListClients(ctx context.Context, query string, limit int) ([]domain.Client, error)
	SetClientStatus(ctx context.Context, id int64, status domain.RecordStatus) (*domain.Client, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUsers(ctx context.Context, branchID int64) ([]domain.User, error)

	// CreateSale allocates the document number, inserts the header and the
	// optional initial lines in one transaction.
	CreateSale(ctx context.Context, sale domain.Sale, lines []domain.SaleLineInput) (*domain.Sale, error)
	AddSaleLine(ctx context.Context, saleID int64, input domain.SaleLineInput) (*domain.SaleLine, *domain.Sale, error)
	VoidSale(ctx context.Context, saleID int64, reason string, at time.Time) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)

	CreateTicket(ctx context.Context, ticket domain.ServiceTicket) (*domain.ServiceTicket, error)
	GetTicket(ctx context.Context, id int64) (*domain.ServiceTicket, error)
	ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.ServiceTicket, error)
	UpdateTicketStatus(ctx context.Context, id int64, status domain.TicketStatus, at time.Time) (*domain.ServiceTicket, error)
	AssignTechnician(ctx context.Context, id int64, technicianID *int64) (*domain.ServiceTicket, error)
	VoidTicket(ctx context.Context, id int64) (*domain.ServiceTicket, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error)
}
