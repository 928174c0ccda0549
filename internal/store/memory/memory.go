package memory

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/numbering"
	"tallerpos/backend/internal/store"
)

type inventoryKey struct {
	productID int64
	branchID  int64
}

type counterKey struct {
	kind numbering.Kind
	year int
}

// Store keeps everything in maps guarded by one RWMutex. Every mutation runs
// its checks before touching state, so a failed workflow leaves nothing behind.
type Store struct {
	mu sync.RWMutex

	ids          map[string]int64
	branches     map[int64]domain.Branch
	categories   map[int64]domain.Category
	clients      map[int64]domain.Client
	products     map[int64]domain.Product
	inventory    map[inventoryKey]domain.InventoryItem
	users        map[int64]domain.User
	sales        map[int64]*domain.Sale
	tickets      map[int64]*domain.ServiceTicket
	documentNums map[numbering.Kind][]string
	counters     map[counterKey]int
	auditLogs    []domain.AuditLog
}

func New() *Store {
	return &Store{
		ids:          make(map[string]int64),
		branches:     make(map[int64]domain.Branch),
		categories:   make(map[int64]domain.Category),
		clients:      make(map[int64]domain.Client),
		products:     make(map[int64]domain.Product),
		inventory:    make(map[inventoryKey]domain.InventoryItem),
		users:        make(map[int64]domain.User),
		sales:        make(map[int64]*domain.Sale),
		tickets:      make(map[int64]*domain.ServiceTicket),
		documentNums: make(map[numbering.Kind][]string),
		counters:     make(map[counterKey]int),
		auditLogs:    make([]domain.AuditLog, 0, 128),
	}
}

func (s *Store) nextIDLocked(table string) int64 {
	s.ids[table]++
	return s.ids[table]
}

// allocateNumberLocked hands out the next document number for (kind, year).
// The counter is seeded from the greatest number already stored.
func (s *Store) allocateNumberLocked(kind numbering.Kind, year int) string {
	key := counterKey{kind: kind, year: year}
	last, ok := s.counters[key]
	if !ok {
		prefix := numbering.Prefix(kind, year)
		greatest := ""
		for _, number := range s.documentNums[kind] {
			if strings.HasPrefix(number, prefix) && number > greatest {
				greatest = number
			}
		}
		last = numbering.Seed(kind, year, greatest)
	}
	last++
	s.counters[key] = last
	number := numbering.Format(kind, year, last)
	s.documentNums[kind] = append(s.documentNums[kind], number)
	return number
}

// Ledger.

func (s *Store) GetQuantity(_ context.Context, productID int64, branchID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.inventory[inventoryKey{productID, branchID}]
	if !ok {
		return 0, nil
	}
	return item.Quantity, nil
}

func (s *Store) Reserve(_ context.Context, productID int64, branchID int64, qty int) error {
	if !domain.ValidLineQuantity(qty) {
		return store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStockLocked(productID, branchID, 0, qty); err != nil {
		return err
	}
	s.adjustLocked(productID, branchID, -qty)
	return nil
}

func (s *Store) Release(_ context.Context, productID int64, branchID int64, qty int) error {
	if !domain.ValidLineQuantity(qty) {
		return store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adjustLocked(productID, branchID, qty)
	return nil
}

func (s *Store) UpsertQuantity(_ context.Context, productID int64, branchID int64, qty int) (*domain.InventoryItem, error) {
	if !domain.ValidStockQuantity(qty) {
		return nil, store.Invalid("quantity must be between 0 and %d", domain.MaxQuantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.branches[branchID]; !ok {
		return nil, store.ErrNotFound
	}
	item := domain.InventoryItem{ProductID: productID, BranchID: branchID, Quantity: qty, UpdatedAt: time.Now().UTC()}
	s.inventory[inventoryKey{productID, branchID}] = item
	return &item, nil
}

func (s *Store) ListInventory(_ context.Context, filter domain.InventoryFilter) ([]domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(s.inventory))
	for key, item := range s.inventory {
		if filter.BranchID > 0 && key.branchID != filter.BranchID {
			continue
		}
		if filter.ProductID > 0 && key.productID != filter.ProductID {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		if a.BranchID != b.BranchID {
			return cmpInt64(a.BranchID, b.BranchID)
		}
		return cmpInt64(a.ProductID, b.ProductID)
	})
	return items, nil
}

// checkStockLocked verifies qty more units can leave the row after taken
// units were already claimed by earlier lines of the same sale. The
// comparison subtracts instead of adding so huge quantities cannot wrap.
func (s *Store) checkStockLocked(productID int64, branchID int64, taken int, qty int) error {
	item, ok := s.inventory[inventoryKey{productID, branchID}]
	if !ok {
		return store.ErrInventoryRecordMissing
	}
	if qty > item.Quantity-taken {
		return &store.InsufficientStockError{ProductID: productID, BranchID: branchID, Available: item.Quantity, Requested: requestedTotal(taken, qty)}
	}
	return nil
}

// requestedTotal reports taken+qty, saturating instead of overflowing.
func requestedTotal(taken int, qty int) int {
	if qty > math.MaxInt-taken {
		return math.MaxInt
	}
	return taken + qty
}

func (s *Store) adjustLocked(productID int64, branchID int64, delta int) {
	key := inventoryKey{productID, branchID}
	item, ok := s.inventory[key]
	if !ok {
		item = domain.InventoryItem{ProductID: productID, BranchID: branchID}
	}
	item.Quantity += delta
	item.UpdatedAt = time.Now().UTC()
	s.inventory[key] = item
}

// Reference data.

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch.ID = s.nextIDLocked("branches")
	if branch.Status == "" {
		branch.Status = domain.StatusActive
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}
	s.branches[branch.ID] = branch
	return &branch, nil
}

func (s *Store) GetBranch(_ context.Context, id int64) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, ok := s.branches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &branch, nil
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return sortedByID(s.branches, func(b domain.Branch) int64 { return b.ID }), nil
}

func (s *Store) SetBranchStatus(_ context.Context, id int64, status domain.RecordStatus) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	branch.Status = status
	s.branches[id] = branch
	return &branch, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.Kind == category.Kind && strings.EqualFold(existing.Name, category.Name) {
			return nil, store.Invalid("category %q already exists for kind %s", category.Name, category.Kind)
		}
	}
	category.ID = s.nextIDLocked("categories")
	if category.Status == "" {
		category.Status = domain.StatusActive
	}
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context, kind domain.CategoryKind) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := sortedByID(s.categories, func(c domain.Category) int64 { return c.ID })
	if kind == "" {
		return all, nil
	}
	filtered := all[:0]
	for _, c := range all {
		if c.Kind == kind {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

func (s *Store) SetCategoryStatus(_ context.Context, id int64, status domain.RecordStatus) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	category.Status = status
	s.categories[id] = category
	return &category, nil
}

func (s *Store) CreateClient(_ context.Context, client domain.Client) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client.ID = s.nextIDLocked("clients")
	if client.Status == "" {
		client.Status = domain.StatusActive
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}
	s.clients[client.ID] = client
	return &client, nil
}

func (s *Store) GetClient(_ context.Context, id int64) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &client, nil
}

func (s *Store) ListClients(_ context.Context, query string, limit int) ([]domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	all := sortedByID(s.clients, func(c domain.Client) int64 { return c.ID })
	out := make([]domain.Client, 0, len(all))
	for _, c := range all {
		if query != "" && !strings.Contains(strings.ToLower(c.Name), query) && !strings.Contains(strings.ToLower(c.NationalID), query) {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SetClientStatus(_ context.Context, id int64, status domain.RecordStatus) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	client.Status = status
	s.clients[id] = client
	return &client, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkBarcodeLocked(product.Barcode, 0); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	product.ID = s.nextIDLocked("products")
	if product.Status == "" {
		product.Status = domain.StatusActive
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	return cloneProduct(product), nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneProduct(product), nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			out[id] = *cloneProduct(product)
		}
	}
	return out, nil
}

func (s *Store) ListProducts(_ context.Context, includeInactive bool) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := sortedByID(s.products, func(p domain.Product) int64 { return p.ID })
	out := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if !includeInactive && p.Status != domain.StatusActive {
			continue
		}
		out = append(out, *cloneProduct(p))
	}
	return out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.checkBarcodeLocked(product.Barcode, product.ID); err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	return cloneProduct(product), nil
}

func (s *Store) checkBarcodeLocked(barcode *string, selfID int64) error {
	if barcode == nil {
		return nil
	}
	for id, p := range s.products {
		if id != selfID && p.Barcode != nil && *p.Barcode == *barcode {
			return store.Invalid("barcode %s already exists", *barcode)
		}
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.users {
		if existing.Email == email {
			return nil, store.Invalid("email %s already registered", email)
		}
	}
	if _, ok := s.branches[user.BranchID]; !ok {
		return nil, store.Invalid("branch %d does not exist", user.BranchID)
	}
	user.ID = s.nextIDLocked("users")
	user.Email = email
	if user.Status == "" {
		user.Status = domain.StatusActive
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	return &user, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = strings.ToLower(strings.TrimSpace(email))
	for _, user := range s.users {
		if user.Email == email {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context, branchID int64) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := sortedByID(s.users, func(u domain.User) int64 { return u.ID })
	if branchID == 0 {
		return all, nil
	}
	out := all[:0]
	for _, u := range all {
		if u.BranchID == branchID {
			out = append(out, u)
		}
	}
	return out, nil
}

// Sales.

func (s *Store) CreateSale(_ context.Context, sale domain.Sale, lines []domain.SaleLineInput) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requested := make(map[int64]int, len(lines))
	for _, line := range lines {
		if !domain.ValidLineQuantity(line.Quantity) {
			return nil, store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
		}
		if err := s.checkSellableLocked(line.ProductID); err != nil {
			return nil, err
		}
		if err := s.checkStockLocked(line.ProductID, sale.BranchID, requested[line.ProductID], line.Quantity); err != nil {
			return nil, err
		}
		requested[line.ProductID] += line.Quantity
	}

	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.ID = s.nextIDLocked("sales")
	sale.Number = s.allocateNumberLocked(numbering.KindSale, sale.CreatedAt.Year())
	sale.Status = domain.SaleCompleted
	sale.Lines = make([]domain.SaleLine, 0, len(lines))
	for _, input := range lines {
		s.appendLineLocked(&sale, input)
	}
	sale.RecomputeTotal()

	stored := cloneSale(&sale)
	s.sales[sale.ID] = stored
	return cloneSale(stored), nil
}

func (s *Store) AddSaleLine(_ context.Context, saleID int64, input domain.SaleLineInput) (*domain.SaleLine, *domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleVoided {
		return nil, nil, store.ErrAlreadyVoided
	}
	if !domain.ValidLineQuantity(input.Quantity) {
		return nil, nil, store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
	}
	if err := s.checkSellableLocked(input.ProductID); err != nil {
		return nil, nil, err
	}
	if err := s.checkStockLocked(input.ProductID, sale.BranchID, 0, input.Quantity); err != nil {
		return nil, nil, err
	}

	line := s.appendLineLocked(sale, input)
	sale.RecomputeTotal()
	return &line, cloneSale(sale), nil
}

func (s *Store) checkSellableLocked(productID int64) error {
	product, ok := s.products[productID]
	if !ok {
		return store.ErrNotFound
	}
	if product.Status != domain.StatusActive {
		return store.Invalid("product %d is inactive", productID)
	}
	return nil
}

// appendLineLocked decrements stock and snapshots the current unit price.
// Callers have already checked stock.
func (s *Store) appendLineLocked(sale *domain.Sale, input domain.SaleLineInput) domain.SaleLine {
	s.adjustLocked(input.ProductID, sale.BranchID, -input.Quantity)
	line := domain.SaleLine{
		ID:        s.nextIDLocked("sale_lines"),
		SaleID:    sale.ID,
		ProductID: input.ProductID,
		Quantity:  input.Quantity,
		UnitPrice: s.products[input.ProductID].UnitPrice,
	}
	sale.Lines = append(sale.Lines, line)
	return line
}

func (s *Store) VoidSale(_ context.Context, saleID int64, reason string, at time.Time) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.Status == domain.SaleVoided {
		return nil, store.ErrAlreadyVoided
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, store.ErrReasonRequired
	}

	for _, line := range sale.Lines {
		s.adjustLocked(line.ProductID, sale.BranchID, line.Quantity)
	}
	voidedAt := at.UTC()
	sale.Status = domain.SaleVoided
	sale.VoidReason = reason
	sale.VoidedAt = &voidedAt
	return cloneSale(sale), nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.BranchID > 0 && sale.BranchID != filter.BranchID {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if !inRange(sale.CreatedAt, filter.From, filter.To) {
			continue
		}
		out = append(out, *cloneSale(sale))
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpInt64(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Service tickets.

func (s *Store) CreateTicket(_ context.Context, ticket domain.ServiceTicket) (*domain.ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[ticket.ClientID]; !ok {
		return nil, store.Invalid("client %d does not exist", ticket.ClientID)
	}
	if ticket.ReceivedAt.IsZero() {
		ticket.ReceivedAt = time.Now().UTC()
	}
	ticket.ID = s.nextIDLocked("service_tickets")
	ticket.Number = s.allocateNumberLocked(numbering.KindService, ticket.ReceivedAt.Year())
	ticket.Status = domain.TicketInRepair
	ticket.DeliveredAt = nil

	stored := cloneTicket(&ticket)
	s.tickets[ticket.ID] = stored
	return cloneTicket(stored), nil
}

func (s *Store) GetTicket(_ context.Context, id int64) (*domain.ServiceTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTicket(ticket), nil
}

func (s *Store) ListTickets(_ context.Context, filter domain.TicketFilter) ([]domain.ServiceTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ServiceTicket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		if filter.BranchID > 0 && ticket.BranchID != filter.BranchID {
			continue
		}
		if filter.Status != "" && ticket.Status != filter.Status {
			continue
		}
		if filter.TechnicianID > 0 && (ticket.TechnicianID == nil || *ticket.TechnicianID != filter.TechnicianID) {
			continue
		}
		if !inRange(ticket.ReceivedAt, filter.From, filter.To) {
			continue
		}
		out = append(out, *cloneTicket(ticket))
	}
	slices.SortFunc(out, func(a, b domain.ServiceTicket) int {
		if c := b.ReceivedAt.Compare(a.ReceivedAt); c != 0 {
			return c
		}
		return cmpInt64(b.ID, a.ID)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateTicketStatus(_ context.Context, id int64, status domain.TicketStatus, at time.Time) (*domain.ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if ticket.Status == domain.TicketVoided {
		return nil, store.ErrAlreadyVoided
	}
	if !ticket.Status.CanTransitionTo(status) {
		return nil, store.Invalid("cannot move ticket from %s to %s", ticket.Status, status)
	}
	ticket.Status = status
	if status == domain.TicketDelivered && ticket.DeliveredAt == nil {
		deliveredAt := at.UTC()
		ticket.DeliveredAt = &deliveredAt
	}
	return cloneTicket(ticket), nil
}

func (s *Store) AssignTechnician(_ context.Context, id int64, technicianID *int64) (*domain.ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if ticket.Status == domain.TicketVoided {
		return nil, store.ErrAlreadyVoided
	}
	if technicianID == nil {
		ticket.TechnicianID = nil
	} else {
		techID := *technicianID
		ticket.TechnicianID = &techID
	}
	return cloneTicket(ticket), nil
}

func (s *Store) VoidTicket(_ context.Context, id int64) (*domain.ServiceTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket, ok := s.tickets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if ticket.Status == domain.TicketVoided {
		return nil, store.ErrAlreadyVoided
	}
	if !ticket.Status.Voidable() {
		return nil, store.Invalid("a %s ticket cannot be voided", ticket.Status)
	}
	ticket.Status = domain.TicketVoided
	return cloneTicket(ticket), nil
}

// Audit.

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, len(s.auditLogs))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if filter.BranchID > 0 && entry.BranchID != filter.BranchID {
			continue
		}
		if !inRange(entry.CreatedAt, filter.From, filter.To) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func sortedByID[T any](m map[int64]T, id func(T) int64) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b T) int { return cmpInt64(id(a), id(b)) })
	return out
}

func cmpInt64(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Lines = slices.Clone(src.Lines)
	if dst.Lines == nil {
		dst.Lines = []domain.SaleLine{}
	}
	if src.ClientID != nil {
		clientID := *src.ClientID
		dst.ClientID = &clientID
	}
	if src.VoidedAt != nil {
		voidedAt := *src.VoidedAt
		dst.VoidedAt = &voidedAt
	}
	return &dst
}

func cloneTicket(src *domain.ServiceTicket) *domain.ServiceTicket {
	if src == nil {
		return nil
	}
	dst := *src
	if src.CategoryID != nil {
		categoryID := *src.CategoryID
		dst.CategoryID = &categoryID
	}
	if src.TechnicianID != nil {
		techID := *src.TechnicianID
		dst.TechnicianID = &techID
	}
	if src.DeliveredAt != nil {
		deliveredAt := *src.DeliveredAt
		dst.DeliveredAt = &deliveredAt
	}
	return &dst
}

func cloneProduct(src domain.Product) *domain.Product {
	dst := src
	if src.Barcode != nil {
		barcode := *src.Barcode
		dst.Barcode = &barcode
	}
	if src.CategoryID != nil {
		categoryID := *src.CategoryID
		dst.CategoryID = &categoryID
	}
	return &dst
}
