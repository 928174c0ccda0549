package memory

import (
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"tallerpos/backend/internal/domain"
)

// Seeded identifiers, stable across runs of NewSeeded.
const (
	SeedCentralBranch int64 = 1
	SeedNorthBranch   int64 = 2

	SeedSuperAdmin        int64 = 1
	SeedAdmin             int64 = 2
	SeedCashier           int64 = 3
	SeedTechnician        int64 = 4
	SeedTechnicianCashier int64 = 5

	SeedScreenProduct  int64 = 1
	SeedChargerProduct int64 = 2
	SeedGlassProduct   int64 = 3
)

type seedUser struct {
	name     string
	email    string
	password string
	role     domain.Role
	branchID int64
}

// seedUsers reads passwords from SEED_SUPER_PASSWORD, SEED_ADMIN_PASSWORD and
// SEED_STAFF_PASSWORD. Dev defaults are used with a warning when unset.
func seedUsers() []seedUser {
	superPwd := envOr("SEED_SUPER_PASSWORD", "super123")
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_SUPER_PASSWORD") == "" || os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		logrus.WithField("component", "memory-store").Warn("using default dev credentials, set SEED_SUPER_PASSWORD, SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override")
	}
	return []seedUser{
		{"Super Admin", "super@tallerpos.local", superPwd, domain.RoleSuperAdmin, SeedCentralBranch},
		{"Branch Admin", "admin@tallerpos.local", adminPwd, domain.RoleAdmin, SeedCentralBranch},
		{"Central Cashier", "cashier@tallerpos.local", staffPwd, domain.RoleCashier, SeedCentralBranch},
		{"North Technician", "tech@tallerpos.local", staffPwd, domain.RoleTechnician, SeedNorthBranch},
		{"North Counter", "counter@tallerpos.local", staffPwd, domain.RoleTechnicianCashier, SeedNorthBranch},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with two branches, staff for every role, a small
// catalog and stock in both branches. The glass protector has no inventory row
// in the north branch.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	for _, b := range []domain.Branch{
		{Name: "Central Branch", Address: "Av. Principal 100"},
		{Name: "North Branch", Address: "Calle Norte 42"},
	} {
		b.ID = s.nextIDLocked("branches")
		b.Status = domain.StatusActive
		b.CreatedAt = now
		s.branches[b.ID] = b
	}

	for _, c := range []domain.Category{
		{Name: "Screens", Kind: domain.CategoryProduct},
		{Name: "Accessories", Kind: domain.CategoryProduct},
		{Name: "Phone repair", Kind: domain.CategoryService},
	} {
		c.ID = s.nextIDLocked("categories")
		c.Status = domain.StatusActive
		s.categories[c.ID] = c
	}

	screens, accessories := int64(1), int64(2)
	for _, p := range []domain.Product{
		{Name: "Samsung A10 screen", Barcode: domain.NormalizeBarcode("7790000000011"), CategoryID: &screens, UnitPrice: decimal.RequireFromString("150.00")},
		{Name: "USB-C charger", Barcode: domain.NormalizeBarcode("7790000000028"), CategoryID: &accessories, UnitPrice: decimal.RequireFromString("45.50")},
		{Name: "Tempered glass", CategoryID: &accessories, UnitPrice: decimal.RequireFromString("20.00")},
	} {
		p.ID = s.nextIDLocked("products")
		p.Status = domain.StatusActive
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	for key, qty := range map[inventoryKey]int{
		{SeedScreenProduct, SeedCentralBranch}:  10,
		{SeedChargerProduct, SeedCentralBranch}: 25,
		{SeedGlassProduct, SeedCentralBranch}:   40,
		{SeedScreenProduct, SeedNorthBranch}:    5,
		{SeedChargerProduct, SeedNorthBranch}:   8,
	} {
		s.inventory[key] = domain.InventoryItem{ProductID: key.productID, BranchID: key.branchID, Quantity: qty, UpdatedAt: now}
	}

	for _, c := range []domain.Client{
		{Name: "Juan Perez", NationalID: "4455667", Phone: "70000001"},
		{Name: "Maria Lopez", NationalID: "7788990", Phone: "70000002"},
	} {
		c.ID = s.nextIDLocked("clients")
		c.Status = domain.StatusActive
		c.CreatedAt = now
		s.clients[c.ID] = c
	}

	hashes := map[string]string{}
	for _, u := range seedUsers() {
		hash, ok := hashes[u.password]
		if !ok {
			raw, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
			if err != nil {
				logrus.WithField("component", "memory-store").Fatalf("failed to hash seed password for %s: %v", u.email, err)
			}
			hash = string(raw)
			hashes[u.password] = hash
		}
		id := s.nextIDLocked("users")
		s.users[id] = domain.User{
			ID:           id,
			Name:         u.name,
			Email:        u.email,
			PasswordHash: hash,
			Role:         u.role,
			BranchID:     u.branchID,
			Status:       domain.StatusActive,
			CreatedAt:    now,
		}
	}
	return s
}
