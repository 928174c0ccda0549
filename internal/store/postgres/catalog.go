package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/store"
)

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if branch.Status == "" {
		branch.Status = domain.StatusActive
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO branches (name, address, status, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, created_at
	`, branch.Name, branch.Address, string(branch.Status)).Scan(&branch.ID, &branch.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (s *Store) GetBranch(ctx context.Context, id int64) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, status, created_at FROM branches WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Address, &b.Status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, status, created_at FROM branches ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

func (s *Store) SetBranchStatus(ctx context.Context, id int64, status domain.RecordStatus) (*domain.Branch, error) {
	if err := s.setStatus(ctx, "branches", id, status); err != nil {
		return nil, err
	}
	return s.GetBranch(ctx, id)
}

// setStatus flips the status column of a reference-data table.
func (s *Store) setStatus(ctx context.Context, table string, id int64, status domain.RecordStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.Status == "" {
		category.Status = domain.StatusActive
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, kind, status) VALUES ($1, $2, $3) RETURNING id
	`, category.Name, string(category.Kind), string(category.Status)).Scan(&category.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Invalid("category %q already exists for kind %s", category.Name, category.Kind)
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) ListCategories(ctx context.Context, kind domain.CategoryKind) ([]domain.Category, error) {
	w := newWhere()
	if kind != "" {
		w.add("kind = ?", string(kind))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, kind, status FROM categories`+w.sql()+`
		ORDER BY id
	`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.Status); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) SetCategoryStatus(ctx context.Context, id int64, status domain.RecordStatus) (*domain.Category, error) {
	if err := s.setStatus(ctx, "categories", id, status); err != nil {
		return nil, err
	}
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, kind, status FROM categories WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Kind, &c.Status)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const clientColumns = `id, name, national_id, phone, email, address, status, created_at`

func scanClient(row interface{ Scan(...any) error }) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(&c.ID, &c.Name, &c.NationalID, &c.Phone, &c.Email, &c.Address, &c.Status, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.Status == "" {
		client.Status = domain.StatusActive
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO clients (name, national_id, phone, email, address, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, created_at
	`, client.Name, client.NationalID, client.Phone, client.Email, client.Address, string(client.Status)).Scan(&client.ID, &client.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *Store) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	client, err := scanClient(s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return client, err
}

func (s *Store) ListClients(ctx context.Context, query string, limit int) ([]domain.Client, error) {
	w := newWhere()
	if q := strings.TrimSpace(query); q != "" {
		w.add("(name ILIKE ? OR national_id ILIKE ?)", "%"+q+"%")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients`+w.sql()+`
		ORDER BY id`+w.limit(limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 32)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (s *Store) SetClientStatus(ctx context.Context, id int64, status domain.RecordStatus) (*domain.Client, error) {
	if err := s.setStatus(ctx, "clients", id, status); err != nil {
		return nil, err
	}
	return s.GetClient(ctx, id)
}

const productColumns = `id, name, description, barcode, category_id, unit_price, status, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var (
		p          domain.Product
		barcode    sql.NullString
		categoryID sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &barcode, &categoryID, &p.UnitPrice, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if barcode.Valid {
		p.Barcode = &barcode.String
	}
	p.CategoryID = nullableInt64(categoryID)
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Status == "" {
		product.Status = domain.StatusActive
	}
	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, barcode, category_id, unit_price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+productColumns,
		product.Name, product.Description, product.Barcode, product.CategoryID, product.UnitPrice, string(product.Status)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Invalid("barcode already exists")
		}
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("category does not exist")
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return product, err
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = *p
	}
	return out, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	w := newWhere()
	if !includeInactive {
		w.add("status = ?", string(domain.StatusActive))
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products`+w.sql()+`
		ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, barcode = $4, category_id = $5, unit_price = $6, status = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Name, product.Description, product.Barcode, product.CategoryID, product.UnitPrice, string(product.Status)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.Invalid("barcode already exists")
		}
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("category does not exist")
		}
		return nil, err
	}
	return updated, nil
}

const userColumns = `id, name, email, password_hash, role_id, branch_id, status, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u    domain.User
		rank int
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &rank, &u.BranchID, &u.Status, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(rank)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Status == "" {
		user.Status = domain.StatusActive
	}
	created, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role_id, branch_id, status, created_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, now())
		RETURNING `+userColumns,
		user.Name, strings.TrimSpace(user.Email), user.PasswordHash, int(user.Role), user.BranchID, string(user.Status)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Invalid("email %s already registered", user.Email)
		}
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("branch %d does not exist", user.BranchID)
		}
		return nil, err
	}
	return created, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = lower($1)
	`, strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return user, err
}

func (s *Store) ListUsers(ctx context.Context, branchID int64) ([]domain.User, error) {
	w := newWhere()
	if branchID > 0 {
		w.add("branch_id = ?", branchID)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users`+w.sql()+`
		ORDER BY id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.User, 0, 32)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, branch_id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.BranchID, entry.ActorID, int(entry.ActorRole), entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLog, error) {
	w := newWhere()
	if filter.BranchID > 0 {
		w.add("branch_id = ?", filter.BranchID)
	}
	if !filter.From.IsZero() {
		w.add("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("created_at < ?", filter.To)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, actor_id, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs`+w.sql()+`
		ORDER BY created_at DESC`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var (
			entry domain.AuditLog
			rank  int
		)
		if err := rows.Scan(&entry.ID, &entry.BranchID, &entry.ActorID, &rank, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ActorRole = domain.Role(rank)
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
