package postgres

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"time"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/numbering"
	"tallerpos/backend/internal/store"
)

const saleColumns = `id, number, client_id, user_id, branch_id, created_at, total, payment_method, status, void_reason, voided_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var (
		sale     domain.Sale
		clientID sql.NullInt64
		voidedAt sql.NullTime
	)
	if err := row.Scan(&sale.ID, &sale.Number, &clientID, &sale.UserID, &sale.BranchID, &sale.CreatedAt,
		&sale.Total, &sale.PaymentMethod, &sale.Status, &sale.VoidReason, &voidedAt); err != nil {
		return nil, err
	}
	sale.ClientID = nullableInt64(clientID)
	sale.VoidedAt = nullableTime(voidedAt)
	sale.Lines = []domain.SaleLine{}
	return &sale, nil
}

// loadLines fetches the lines of every given sale, keyed by sale id.
func loadLines(ctx context.Context, q querier, saleIDs []int64) (map[int64][]domain.SaleLine, error) {
	out := make(map[int64][]domain.SaleLine, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price
		FROM sale_lines
		WHERE sale_id = ANY($1)
		ORDER BY id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		out[line.SaleID] = append(out[line.SaleID], line)
	}
	return out, rows.Err()
}

func loadSale(ctx context.Context, q querier, id int64, lock bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := loadLines(ctx, q, []int64{id})
	if err != nil {
		return nil, err
	}
	if l, ok := lines[id]; ok {
		sale.Lines = l
	}
	return sale, nil
}

type lineProduct struct {
	price  string
	active bool
}

// insertLines checks and decrements stock for every input, then writes the
// lines with the current unit price of each product. Inventory rows are
// locked in ascending product order.
func insertLines(ctx context.Context, tx *sql.Tx, sale *domain.Sale, inputs []domain.SaleLineInput) error {
	if len(inputs) == 0 {
		return nil
	}
	for _, input := range inputs {
		if !domain.ValidLineQuantity(input.Quantity) {
			return store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
		}
	}
	ids := uniqueProductIDs(inputs)

	products := make(map[int64]lineProduct, len(ids))
	rows, err := tx.QueryContext(ctx, `
		SELECT id, unit_price::text, status FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			id     int64
			p      lineProduct
			status string
		)
		if err := rows.Scan(&id, &p.price, &status); err != nil {
			_ = rows.Close()
			return err
		}
		p.active = status == string(domain.StatusActive)
		products[id] = p
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	stock := make(map[int64]int, len(ids))
	stockRows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM inventory
		WHERE branch_id = $1 AND product_id = ANY($2)
		ORDER BY product_id
		FOR UPDATE
	`, sale.BranchID, ids)
	if err != nil {
		return err
	}
	for stockRows.Next() {
		var (
			productID int64
			qty       int
		)
		if err := stockRows.Scan(&productID, &qty); err != nil {
			_ = stockRows.Close()
			return err
		}
		stock[productID] = qty
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return err
	}
	_ = stockRows.Close()

	requested := make(map[int64]int, len(ids))
	for _, input := range inputs {
		product, ok := products[input.ProductID]
		if !ok {
			return store.ErrNotFound
		}
		if !product.active {
			return store.Invalid("product %d is inactive", input.ProductID)
		}
		available, ok := stock[input.ProductID]
		if !ok {
			return store.ErrInventoryRecordMissing
		}
		taken := requested[input.ProductID]
		if input.Quantity > available-taken {
			return &store.InsufficientStockError{ProductID: input.ProductID, BranchID: sale.BranchID, Available: available, Requested: taken + input.Quantity}
		}
		requested[input.ProductID] = taken + input.Quantity
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE inventory SET quantity = quantity - $3, updated_at = now()
			WHERE product_id = $1 AND branch_id = $2
		`, id, sale.BranchID, requested[id]); err != nil {
			return err
		}
	}
	for _, input := range inputs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4::numeric)
		`, sale.ID, input.ProductID, input.Quantity, products[input.ProductID].price); err != nil {
			return err
		}
	}
	return nil
}

// refreshTotal recomputes the cached total from the stored lines.
func refreshTotal(ctx context.Context, tx *sql.Tx, saleID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET total = COALESCE((SELECT SUM(quantity * unit_price) FROM sale_lines WHERE sale_id = $1), 0)
		WHERE id = $1
	`, saleID)
	return err
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale, lines []domain.SaleLineInput) (*domain.Sale, error) {
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	var created *domain.Sale
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		number, err := allocateNumber(ctx, tx, numbering.KindSale, sale.CreatedAt.Year())
		if err != nil {
			return err
		}
		header := sale
		header.Number = number
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO sales (number, client_id, user_id, branch_id, created_at, total, payment_method, status)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
			RETURNING id
		`, number, sale.ClientID, sale.UserID, sale.BranchID, sale.CreatedAt, sale.PaymentMethod, string(domain.SaleCompleted)).Scan(&header.ID); err != nil {
			if isForeignKeyViolation(err) {
				return store.Invalid("sale references a missing branch, user or client")
			}
			return err
		}
		if err := insertLines(ctx, tx, &header, lines); err != nil {
			return err
		}
		if err := refreshTotal(ctx, tx, header.ID); err != nil {
			return err
		}
		created, err = loadSale(ctx, tx, header.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) AddSaleLine(ctx context.Context, saleID int64, input domain.SaleLineInput) (*domain.SaleLine, *domain.Sale, error) {
	var updated *domain.Sale
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sale, err := loadSale(ctx, tx, saleID, true)
		if err != nil {
			return err
		}
		if sale.Status == domain.SaleVoided {
			return store.ErrAlreadyVoided
		}
		if err := insertLines(ctx, tx, sale, []domain.SaleLineInput{input}); err != nil {
			return err
		}
		if err := refreshTotal(ctx, tx, sale.ID); err != nil {
			return err
		}
		updated, err = loadSale(ctx, tx, sale.ID, false)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	line := updated.Lines[len(updated.Lines)-1]
	return &line, updated, nil
}

func (s *Store) VoidSale(ctx context.Context, saleID int64, reason string, at time.Time) (*domain.Sale, error) {
	var voided *domain.Sale
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sale, err := loadSale(ctx, tx, saleID, true)
		if err != nil {
			return err
		}
		if sale.Status == domain.SaleVoided {
			return store.ErrAlreadyVoided
		}
		reason := strings.TrimSpace(reason)
		if reason == "" {
			return store.ErrReasonRequired
		}

		restock := make(map[int64]int, len(sale.Lines))
		for _, line := range sale.Lines {
			restock[line.ProductID] += line.Quantity
		}
		productIDs := make([]int64, 0, len(restock))
		for productID := range restock {
			productIDs = append(productIDs, productID)
		}
		slices.Sort(productIDs)
		for _, productID := range productIDs {
			if err := release(ctx, tx, productID, sale.BranchID, restock[productID]); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sales SET status = $2, void_reason = $3, voided_at = $4 WHERE id = $1
		`, sale.ID, string(domain.SaleVoided), reason, at.UTC()); err != nil {
			return err
		}
		voided, err = loadSale(ctx, tx, sale.ID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return voided, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return loadSale(ctx, s.db, id, false)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	w := newWhere()
	if filter.BranchID > 0 {
		w.add("branch_id = ?", filter.BranchID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if !filter.From.IsZero() {
		w.add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("created_at < ?", filter.To)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales`+w.sql()+`
		ORDER BY created_at DESC, id DESC`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	ids := make([]int64, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	lines, err := loadLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		if l, ok := lines[sales[i].ID]; ok {
			sales[i].Lines = l
		}
	}
	return sales, nil
}
