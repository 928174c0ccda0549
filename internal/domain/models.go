package domain

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Actor is the authenticated principal attached to every request.
type Actor struct {
	UserID   int64
	Email    string
	Role     Role
	BranchID int64
}

type RecordStatus string

const (
	StatusActive   RecordStatus = "active"
	StatusInactive RecordStatus = "inactive"
)

func (s RecordStatus) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// CanTransitionTo allows active <-> inactive; setting the current status is a no-op.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	return s.Valid() && next.Valid()
}

type Branch struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Address   string       `json:"address"`
	Status    RecordStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

type BranchCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type CategoryKind string

const (
	CategoryProduct CategoryKind = "product"
	CategoryService CategoryKind = "service"
)

func (k CategoryKind) Valid() bool {
	return k == CategoryProduct || k == CategoryService
}

type Category struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Kind   CategoryKind `json:"kind"`
	Status RecordStatus `json:"status"`
}

type CategoryCreateRequest struct {
	Name string       `json:"name"`
	Kind CategoryKind `json:"kind"`
}

type User struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	Role         Role         `json:"role"`
	BranchID     int64        `json:"branch_id"`
	Status       RecordStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

type UserCreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
	BranchID int64  `json:"branch_id"`
}

type Client struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	NationalID string       `json:"national_id,omitempty"`
	Phone      string       `json:"phone,omitempty"`
	Email      string       `json:"email,omitempty"`
	Address    string       `json:"address,omitempty"`
	Status     RecordStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

type ClientCreateRequest struct {
	Name       string `json:"name"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Barcode     *string         `json:"barcode,omitempty"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Status      RecordStatus    `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Barcode     string          `json:"barcode"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Barcode     *string          `json:"barcode,omitempty"`
	CategoryID  *int64           `json:"category_id,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Status      *RecordStatus    `json:"status,omitempty"`
}

// NormalizeBarcode maps blank barcodes to nil so they never collide on the
// unique constraint.
func NormalizeBarcode(raw string) *string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

type StatusChangeRequest struct {
	Status RecordStatus `json:"status"`
}

type InventoryItem struct {
	ProductID int64     `json:"product_id"`
	BranchID  int64     `json:"branch_id"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MaxQuantity bounds every stock and line quantity so per-product sums fit the
// INTEGER columns and never wrap.
const MaxQuantity = math.MaxInt32

func ValidLineQuantity(qty int) bool { return qty >= 1 && qty <= MaxQuantity }

func ValidStockQuantity(qty int) bool { return qty >= 0 && qty <= MaxQuantity }

type InventoryUpsertRequest struct {
	ProductID int64 `json:"product_id"`
	BranchID  int64 `json:"branch_id"`
	Quantity  int   `json:"quantity"`
}

type SaleStatus string

const (
	SaleCompleted SaleStatus = "Completed"
	SaleVoided    SaleStatus = "Voided"
)

const (
	PaymentCash = "cash"
	PaymentQR   = "qr"
	PaymentCard = "card"
)

func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentQR, PaymentCard:
		return true
	default:
		return false
	}
}

type Sale struct {
	ID            int64           `json:"id"`
	Number        string          `json:"number"`
	ClientID      *int64          `json:"client_id,omitempty"`
	UserID        int64           `json:"user_id"`
	BranchID      int64           `json:"branch_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Status        SaleStatus      `json:"status"`
	VoidReason    string          `json:"void_reason,omitempty"`
	VoidedAt      *time.Time      `json:"voided_at,omitempty"`
	Lines         []SaleLine      `json:"lines"`
}

// RecomputeTotal derives the cached total from the lines.
func (s *Sale) RecomputeTotal() {
	s.Total = SumLines(s.Lines)
}

type SaleLine struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"sale_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l SaleLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func SumLines(lines []SaleLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

type SaleLineInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CreateSaleRequest struct {
	BranchID      int64           `json:"branch_id"`
	UserID        int64           `json:"user_id"`
	ClientID      *int64          `json:"client_id,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Lines         []SaleLineInput `json:"lines,omitempty"`
}

type AddSaleLineRequest = SaleLineInput

type SaleLineResponse struct {
	Line SaleLine `json:"line"`
	Sale Sale     `json:"sale"`
}

type VoidSaleRequest struct {
	Reason string `json:"reason"`
}

type SaleFilter struct {
	BranchID int64
	Status   SaleStatus
	From     time.Time
	To       time.Time
	Limit    int
}

type TicketStatus string

const (
	TicketInRepair       TicketStatus = "InRepair"
	TicketReadyForPickup TicketStatus = "ReadyForPickup"
	TicketDelivered      TicketStatus = "Delivered"
	TicketVoided         TicketStatus = "Voided"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketInRepair, TicketReadyForPickup, TicketDelivered, TicketVoided:
		return true
	default:
		return false
	}
}

// CanTransitionTo covers the status changes reachable through setStatus.
// Voiding has its own gated operation.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	if s == next {
		return s != TicketVoided
	}
	switch s {
	case TicketInRepair:
		return next == TicketReadyForPickup
	case TicketReadyForPickup:
		return next == TicketInRepair || next == TicketDelivered
	default:
		return false
	}
}

// Voidable reports whether VoidTicket may act on a ticket in this state.
// Delivered tickets left the shop and stay on record.
func (s TicketStatus) Voidable() bool {
	return s == TicketInRepair || s == TicketReadyForPickup
}

type ServiceTicket struct {
	ID                 int64           `json:"id"`
	Number             string          `json:"number"`
	ClientID           int64           `json:"client_id"`
	UserID             int64           `json:"user_id"`
	BranchID           int64           `json:"branch_id"`
	DeviceBrand        string          `json:"device_brand"`
	DeviceModel        string          `json:"device_model"`
	ProblemDescription string          `json:"problem_description"`
	CategoryID         *int64          `json:"category_id,omitempty"`
	EstimatedCost      decimal.Decimal `json:"estimated_cost"`
	Status             TicketStatus    `json:"status"`
	TechnicianID       *int64          `json:"technician_id,omitempty"`
	ReceivedAt         time.Time       `json:"received_at"`
	DeliveredAt        *time.Time      `json:"delivered_at,omitempty"`
}

type CreateTicketRequest struct {
	BranchID           int64           `json:"branch_id"`
	UserID             int64           `json:"user_id"`
	ClientID           int64           `json:"client_id"`
	DeviceBrand        string          `json:"device_brand"`
	DeviceModel        string          `json:"device_model"`
	ProblemDescription string          `json:"problem_description"`
	CategoryID         *int64          `json:"category_id,omitempty"`
	EstimatedCost      decimal.Decimal `json:"estimated_cost"`
	TechnicianID       *int64          `json:"technician_id,omitempty"`
}

type SetTicketStatusRequest struct {
	Status TicketStatus `json:"status"`
}

type AssignTechnicianRequest struct {
	TechnicianID *int64 `json:"technician_id"`
}

type TicketFilter struct {
	BranchID     int64
	Status       TicketStatus
	TechnicianID int64
	From         time.Time
	To           time.Time
	Limit        int
}

type InventoryFilter struct {
	BranchID  int64
	ProductID int64
}

type AuditLog struct {
	ID         string    `json:"id"`
	BranchID   int64     `json:"branch_id"`
	ActorID    int64     `json:"actor_id"`
	ActorRole  Role      `json:"actor_role"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type AuditFilter struct {
	BranchID int64
	From     time.Time
	To       time.Time
	Limit    int
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      int64  `json:"user_id"`
	Role        Role   `json:"role"`
	BranchID    int64  `json:"branch_id"`
	ExpiresAt   string `json:"expires_at"`
}
