package memory

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/store"
)

var _ store.Repository = (*Store)(nil)

func newSale(branchID int64, at time.Time) domain.Sale {
	return domain.Sale{BranchID: branchID, UserID: SeedCashier, PaymentMethod: domain.PaymentCash, CreatedAt: at}
}

func TestTwoLineSaleFlow(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	at := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	sale, err := s.CreateSale(ctx, newSale(SeedCentralBranch, at), nil)
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if sale.Number != "SALE-2026-00001" {
		t.Fatalf("unexpected number %s", sale.Number)
	}
	if !sale.Total.IsZero() {
		t.Fatalf("empty sale should total zero, got %s", sale.Total)
	}

	if _, _, err := s.AddSaleLine(ctx, sale.ID, domain.SaleLineInput{ProductID: SeedScreenProduct, Quantity: 4}); err != nil {
		t.Fatalf("first line failed: %v", err)
	}
	qty, _ := s.GetQuantity(ctx, SeedScreenProduct, SeedCentralBranch)
	if qty != 6 {
		t.Fatalf("expected 6 left, got %d", qty)
	}

	_, _, err = s.AddSaleLine(ctx, sale.ID, domain.SaleLineInput{ProductID: SeedScreenProduct, Quantity: 10})
	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if stockErr.Available != 6 || stockErr.Requested != 10 {
		t.Fatalf("unexpected detail %+v", stockErr)
	}
	qty, _ = s.GetQuantity(ctx, SeedScreenProduct, SeedCentralBranch)
	if qty != 6 {
		t.Fatalf("failed line must not touch stock, got %d", qty)
	}

	line, updated, err := s.AddSaleLine(ctx, sale.ID, domain.SaleLineInput{ProductID: SeedChargerProduct, Quantity: 2})
	if err != nil {
		t.Fatalf("second line failed: %v", err)
	}
	if !line.UnitPrice.Equal(decimal.RequireFromString("45.50")) {
		t.Fatalf("unit price snapshot mismatch: %s", line.UnitPrice)
	}
	if len(updated.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(updated.Lines))
	}
	if !updated.Total.Equal(decimal.RequireFromString("691.00")) {
		t.Fatalf("expected total 691.00, got %s", updated.Total)
	}
}

func TestVoidRestoresStockOnce(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	sale, err := s.CreateSale(ctx, newSale(SeedCentralBranch, time.Now()), []domain.SaleLineInput{{ProductID: SeedScreenProduct, Quantity: 4}})
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}

	if _, err := s.VoidSale(ctx, sale.ID, "   ", time.Now()); !errors.Is(err, store.ErrReasonRequired) {
		t.Fatalf("expected reason required, got %v", err)
	}

	voided, err := s.VoidSale(ctx, sale.ID, "cliente cambió de opinión", time.Now())
	if err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if voided.Status != domain.SaleVoided || voided.VoidedAt == nil || voided.VoidReason != "cliente cambió de opinión" {
		t.Fatalf("unexpected voided sale %+v", voided)
	}
	qty, _ := s.GetQuantity(ctx, SeedScreenProduct, SeedCentralBranch)
	if qty != 10 {
		t.Fatalf("expected stock restored to 10, got %d", qty)
	}

	if _, err := s.VoidSale(ctx, sale.ID, "again", time.Now()); !errors.Is(err, store.ErrAlreadyVoided) {
		t.Fatalf("expected already voided, got %v", err)
	}
	qty, _ = s.GetQuantity(ctx, SeedScreenProduct, SeedCentralBranch)
	if qty != 10 {
		t.Fatalf("second void must not release again, got %d", qty)
	}

	if _, _, err := s.AddSaleLine(ctx, sale.ID, domain.SaleLineInput{ProductID: SeedScreenProduct, Quantity: 1}); !errors.Is(err, store.ErrAlreadyVoided) {
		t.Fatalf("expected voided sale to reject lines, got %v", err)
	}
}

func TestCreateSaleWithLinesIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	_, err := s.CreateSale(ctx, newSale(SeedCentralBranch, time.Now()), []domain.SaleLineInput{
		{ProductID: SeedScreenProduct, Quantity: 6},
		{ProductID: SeedScreenProduct, Quantity: 6},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected cumulative stock check to fail, got %v", err)
	}
	qty, _ := s.GetQuantity(ctx, SeedScreenProduct, SeedCentralBranch)
	if qty != 10 {
		t.Fatalf("failed sale touched stock: %d", qty)
	}
	sales, _ := s.ListSales(ctx, domain.SaleFilter{})
	if len(sales) != 0 {
		t.Fatalf("failed sale left a header behind")
	}

	next, err := s.CreateSale(ctx, newSale(SeedCentralBranch, time.Now()), nil)
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if next.Number[len(next.Number)-5:] != "00001" {
		t.Fatalf("failed sale consumed a number: %s", next.Number)
	}
}

func TestHugeLineQuantityNeverDrivesStockNegative(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	cases := [][]domain.SaleLineInput{
		{{ProductID: SeedScreenProduct, Quantity: 5}, {ProductID: SeedScreenProduct, Quantity: math.MaxInt - 2}},
		{{ProductID: SeedScreenProduct, Quantity: 5}, {ProductID: SeedScreenProduct, Quantity: domain.MaxQuantity}},
	}
	for i, lines := range cases {
		if _, err := s.CreateSale(ctx, newSale(SeedCentralBranch, time.Now()), lines); err == nil {
			t.Fatalf("case %d: expected the sale to be rejected", i)
		}
		if qty, _ := s.GetQuantity(ctx, SeedScreenProduct, SeedCentralBranch); qty != 10 {
			t.Fatalf("case %d: stock changed to %d", i, qty)
		}
	}

	var stockErr *store.InsufficientStockError
	_, err := s.CreateSale(ctx, newSale(SeedCentralBranch, time.Now()), cases[1])
	if !errors.As(err, &stockErr) || stockErr.Available != 10 {
		t.Fatalf("expected insufficient stock against 10 units, got %v", err)
	}

	sale, err := s.CreateSale(ctx, newSale(SeedCentralBranch, time.Now()), nil)
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	if _, _, err := s.AddSaleLine(ctx, sale.ID, domain.SaleLineInput{ProductID: SeedScreenProduct, Quantity: math.MaxInt}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected oversized line to be invalid, got %v", err)
	}
	if _, err := s.UpsertQuantity(ctx, SeedScreenProduct, SeedCentralBranch, domain.MaxQuantity+1); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected oversized stock to be invalid, got %v", err)
	}
}

func TestMissingInventoryRow(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	sale, err := s.CreateSale(ctx, newSale(SeedNorthBranch, time.Now()), nil)
	if err != nil {
		t.Fatalf("create sale failed: %v", err)
	}
	_, _, err = s.AddSaleLine(ctx, sale.ID, domain.SaleLineInput{ProductID: SeedGlassProduct, Quantity: 1})
	if !errors.Is(err, store.ErrInventoryRecordMissing) {
		t.Fatalf("expected inventory record missing, got %v", err)
	}
	if qty, _ := s.GetQuantity(ctx, SeedGlassProduct, SeedNorthBranch); qty != 0 {
		t.Fatalf("missing row should read as 0, got %d", qty)
	}
}

func TestReleaseCreatesRow(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	if err := s.Release(ctx, SeedGlassProduct, SeedNorthBranch, 3); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if qty, _ := s.GetQuantity(ctx, SeedGlassProduct, SeedNorthBranch); qty != 3 {
		t.Fatalf("expected 3, got %d", qty)
	}
}

func TestLedgerConcurrentReserveRelease(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	const initial = 40
	if _, err := s.UpsertQuantity(ctx, SeedGlassProduct, SeedCentralBranch, initial); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
		released int
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed*31))
			for i := 0; i < 200; i++ {
				qty := rng.IntN(5) + 1
				if rng.IntN(2) == 0 {
					err := s.Reserve(ctx, SeedGlassProduct, SeedCentralBranch, qty)
					if err == nil {
						mu.Lock()
						reserved += qty
						mu.Unlock()
					} else if !errors.Is(err, store.ErrInsufficientStock) {
						t.Errorf("unexpected reserve error: %v", err)
					}
					continue
				}
				if err := s.Release(ctx, SeedGlassProduct, SeedCentralBranch, qty); err != nil {
					t.Errorf("unexpected release error: %v", err)
					continue
				}
				mu.Lock()
				released += qty
				mu.Unlock()
			}
		}(uint64(w + 1))
	}
	wg.Wait()

	qty, _ := s.GetQuantity(ctx, SeedGlassProduct, SeedCentralBranch)
	if qty < 0 {
		t.Fatalf("quantity went negative: %d", qty)
	}
	if want := initial - reserved + released; qty != want {
		t.Fatalf("expected %d, got %d", want, qty)
	}
}

func TestSequentialNumbersHaveNoGaps(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, want := range []string{"SVC-2026-00001", "SVC-2026-00002", "SVC-2026-00003"} {
		ticket, err := s.CreateTicket(ctx, domain.ServiceTicket{ClientID: 1, UserID: SeedTechnician, BranchID: SeedNorthBranch, DeviceBrand: "Samsung", ReceivedAt: at})
		if err != nil {
			t.Fatalf("ticket %d failed: %v", i, err)
		}
		if ticket.Number != want {
			t.Fatalf("expected %s, got %s", want, ticket.Number)
		}
		if ticket.Status != domain.TicketInRepair {
			t.Fatalf("new ticket should be in repair, got %s", ticket.Status)
		}
	}

	next, err := s.CreateTicket(ctx, domain.ServiceTicket{ClientID: 1, UserID: SeedTechnician, BranchID: SeedNorthBranch, ReceivedAt: at.AddDate(1, 0, 0)})
	if err != nil {
		t.Fatalf("next year ticket failed: %v", err)
	}
	if next.Number != "SVC-2027-00001" {
		t.Fatalf("counter should restart per year, got %s", next.Number)
	}
}

func TestConcurrentSalesGetDistinctNumbers(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	at := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	const n = 50

	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sale, err := s.CreateSale(ctx, newSale(SeedCentralBranch, at), nil)
			if err != nil {
				t.Errorf("create sale failed: %v", err)
				return
			}
			numbers <- sale.Number
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for number := range numbers {
		if seen[number] {
			t.Fatalf("duplicate number %s", number)
		}
		seen[number] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d numbers, got %d", n, len(seen))
	}
	if !seen["SALE-2026-00001"] || !seen["SALE-2026-00050"] {
		t.Fatalf("numbers should be contiguous from 00001")
	}
}

func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	ticket, err := s.CreateTicket(ctx, domain.ServiceTicket{ClientID: 2, UserID: SeedTechnicianCashier, BranchID: SeedNorthBranch, DeviceBrand: "Xiaomi"})
	if err != nil {
		t.Fatalf("create ticket failed: %v", err)
	}
	if _, err := s.UpdateTicketStatus(ctx, ticket.ID, domain.TicketDelivered, time.Now()); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected InRepair -> Delivered to be rejected, got %v", err)
	}
	if _, err := s.UpdateTicketStatus(ctx, ticket.ID, domain.TicketReadyForPickup, time.Now()); err != nil {
		t.Fatalf("ready failed: %v", err)
	}
	first := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	delivered, err := s.UpdateTicketStatus(ctx, ticket.ID, domain.TicketDelivered, first)
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if delivered.DeliveredAt == nil || !delivered.DeliveredAt.Equal(first) {
		t.Fatalf("delivery timestamp not stamped: %+v", delivered.DeliveredAt)
	}
	again, err := s.UpdateTicketStatus(ctx, ticket.ID, domain.TicketDelivered, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("same-state update failed: %v", err)
	}
	if !again.DeliveredAt.Equal(first) {
		t.Fatalf("delivery timestamp must be stamped once")
	}

	if _, err := s.VoidTicket(ctx, ticket.ID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected delivered ticket void to be rejected, got %v", err)
	}

	open, err := s.CreateTicket(ctx, domain.ServiceTicket{ClientID: 2, UserID: SeedTechnicianCashier, BranchID: SeedNorthBranch, DeviceBrand: "Nokia"})
	if err != nil {
		t.Fatalf("create ticket failed: %v", err)
	}
	if _, err := s.VoidTicket(ctx, open.ID); err != nil {
		t.Fatalf("void failed: %v", err)
	}
	if _, err := s.VoidTicket(ctx, open.ID); !errors.Is(err, store.ErrAlreadyVoided) {
		t.Fatalf("expected already voided, got %v", err)
	}
	techID := SeedTechnician
	if _, err := s.AssignTechnician(ctx, open.ID, &techID); !errors.Is(err, store.ErrAlreadyVoided) {
		t.Fatalf("voided ticket must reject assignment, got %v", err)
	}
}

func TestBarcodeUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()

	_, err := s.CreateProduct(ctx, domain.Product{Name: "Clone", Barcode: domain.NormalizeBarcode("7790000000011"), UnitPrice: decimal.NewFromInt(1)})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected duplicate barcode rejection, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.CreateProduct(ctx, domain.Product{Name: "No barcode", Barcode: domain.NormalizeBarcode("  "), UnitPrice: decimal.NewFromInt(1)}); err != nil {
			t.Fatalf("products without barcode must not collide: %v", err)
		}
	}
}

func TestListSalesFiltersByBranch(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	if _, err := s.CreateSale(ctx, newSale(SeedCentralBranch, time.Now()), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateSale(ctx, newSale(SeedNorthBranch, time.Now()), nil); err != nil {
		t.Fatal(err)
	}

	north, _ := s.ListSales(ctx, domain.SaleFilter{BranchID: SeedNorthBranch})
	if len(north) != 1 || north[0].BranchID != SeedNorthBranch {
		t.Fatalf("expected one north sale, got %+v", north)
	}
	all, _ := s.ListSales(ctx, domain.SaleFilter{})
	if len(all) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(all))
	}
}
