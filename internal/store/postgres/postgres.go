package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/numbering"
	"tallerpos/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// EnsureDefaults inserts the role rows and, when no branch exists yet, a
// "Central Branch". It returns the id of the lowest branch.
func (s *Store) EnsureDefaults(ctx context.Context) (int64, error) {
	for _, role := range domain.AllRoles() {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO roles (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, int(role.Rank), role.Name); err != nil {
			return 0, err
		}
	}

	var branchID int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM branches ORDER BY id LIMIT 1`).Scan(&branchID)
	if err == nil {
		return branchID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO branches (name, address, status, created_at)
		VALUES ('Central Branch', '', 'active', now())
		RETURNING id
	`).Scan(&branchID)
	return branchID, err
}

// inTx runs fn in a read-committed transaction. Contended rows are locked
// explicitly with FOR UPDATE, always in ascending product order.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return withConflictRetry(func() error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// withConflictRetry retries a transaction once on unique, serialization or
// deadlock failures. A second failure surfaces as ErrWriteConflict.
func withConflictRetry(fn func() error) error {
	err := fn()
	if !isRetryable(err) {
		return err
	}
	err = fn()
	if isRetryable(err) {
		return store.ErrWriteConflict
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "40001", "40P01":
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// allocateNumber reserves the next document number for (kind, year) inside tx.
// A missing counter row is seeded from the greatest number already stored, so
// databases that predate the counter table keep their sequence.
func allocateNumber(ctx context.Context, tx *sql.Tx, kind numbering.Kind, year int) (string, error) {
	table := "sales"
	if kind == numbering.KindService {
		table = "service_tickets"
	}

	var exists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM document_counters WHERE kind = $1 AND year = $2)
	`, string(kind), year).Scan(&exists); err != nil {
		return "", err
	}
	if !exists {
		var greatest sql.NullString
		err := tx.QueryRowContext(ctx, `
			SELECT number FROM `+table+`
			WHERE number LIKE $1
			ORDER BY number DESC
			LIMIT 1
		`, numbering.Prefix(kind, year)+"%").Scan(&greatest)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO document_counters (kind, year, last_value)
			VALUES ($1, $2, $3)
			ON CONFLICT (kind, year) DO NOTHING
		`, string(kind), year, numbering.Seed(kind, year, greatest.String)); err != nil {
			return "", err
		}
	}

	// The UPDATE holds the counter row lock until commit.
	var last int
	if err := tx.QueryRowContext(ctx, `
		UPDATE document_counters
		SET last_value = last_value + 1
		WHERE kind = $1 AND year = $2
		RETURNING last_value
	`, string(kind), year).Scan(&last); err != nil {
		return "", err
	}
	return numbering.Format(kind, year, last), nil
}

// Ledger.

func (s *Store) GetQuantity(ctx context.Context, productID int64, branchID int64) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM inventory WHERE product_id = $1 AND branch_id = $2
	`, productID, branchID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (s *Store) Reserve(ctx context.Context, productID int64, branchID int64, qty int) error {
	if !domain.ValidLineQuantity(qty) {
		return store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return reserve(ctx, tx, productID, branchID, qty)
	})
}

func (s *Store) Release(ctx context.Context, productID int64, branchID int64, qty int) error {
	if !domain.ValidLineQuantity(qty) {
		return store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return release(ctx, tx, productID, branchID, qty)
	})
}

func reserve(ctx context.Context, tx *sql.Tx, productID int64, branchID int64, qty int) error {
	var available int
	err := tx.QueryRowContext(ctx, `
		SELECT quantity FROM inventory
		WHERE product_id = $1 AND branch_id = $2
		FOR UPDATE
	`, productID, branchID).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrInventoryRecordMissing
	}
	if err != nil {
		return err
	}
	if available < qty {
		return &store.InsufficientStockError{ProductID: productID, BranchID: branchID, Available: available, Requested: qty}
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE inventory SET quantity = quantity - $3, updated_at = now()
		WHERE product_id = $1 AND branch_id = $2
	`, productID, branchID, qty)
	return err
}

func release(ctx context.Context, tx *sql.Tx, productID int64, branchID int64, qty int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory (product_id, branch_id, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (product_id, branch_id)
		DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = now()
	`, productID, branchID, qty)
	return err
}

func (s *Store) UpsertQuantity(ctx context.Context, productID int64, branchID int64, qty int) (*domain.InventoryItem, error) {
	if !domain.ValidStockQuantity(qty) {
		return nil, store.Invalid("quantity must be between 0 and %d", domain.MaxQuantity)
	}
	item := domain.InventoryItem{ProductID: productID, BranchID: branchID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO inventory (product_id, branch_id, quantity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (product_id, branch_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
		RETURNING quantity, updated_at
	`, productID, branchID, qty).Scan(&item.Quantity, &item.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryItem, error) {
	w := newWhere()
	if filter.BranchID > 0 {
		w.add("branch_id = ?", filter.BranchID)
	}
	if filter.ProductID > 0 {
		w.add("product_id = ?", filter.ProductID)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, branch_id, quantity, updated_at
		FROM inventory`+w.sql()+`
		ORDER BY branch_id, product_id
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InventoryItem, 0, 64)
	for rows.Next() {
		var item domain.InventoryItem
		if err := rows.Scan(&item.ProductID, &item.BranchID, &item.Quantity, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// where accumulates AND-ed predicates. Every "?" in a clause refers to that
// clause's single argument.
type where struct {
	clauses []string
	args    []any
}

func newWhere() *where {
	return &where{}
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "\n\t\tWHERE " + strings.Join(w.clauses, " AND ")
}

// limit appends a LIMIT placeholder when n is positive.
func (w *where) limit(n int) string {
	if n <= 0 {
		return ""
	}
	w.args = append(w.args, n)
	return "\n\t\tLIMIT $" + strconv.Itoa(len(w.args))
}

func uniqueProductIDs(lines []domain.SaleLineInput) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func nullableInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	out := v.Int64
	return &out
}

func nullableTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	out := v.Time.UTC()
	return &out
}
