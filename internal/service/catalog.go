package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/store"
)

const minPasswordLength = 6

func (s *Service) ListRoles() []domain.RoleInfo {
	return domain.AllRoles()
}

// Me returns the account behind the current principal.
func (s *Service) Me(ctx context.Context) (domain.User, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return domain.User{}, err
	}
	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return domain.User{}, err
	}
	return *user, nil
}

// Branches.

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	_, sc, err := authorize(ctx)
	if err != nil {
		return nil, err
	}
	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	if sc.Unrestricted() {
		return branches, nil
	}
	visible := branches[:0]
	for _, b := range branches {
		if sc.Permits(b.ID) {
			visible = append(visible, b)
		}
	}
	return visible, nil
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	if _, _, err := authorize(ctx, domain.PermManageBranches); err != nil {
		return domain.Branch{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Branch{}, store.Invalid("branch name is required")
	}
	created, err := s.repo.CreateBranch(ctx, domain.Branch{Name: name, Address: strings.TrimSpace(req.Address), Status: domain.StatusActive})
	if err != nil {
		return domain.Branch{}, err
	}
	s.logAudit(ctx, created.ID, "branch.create", "branch", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) SetBranchStatus(ctx context.Context, id int64, req domain.StatusChangeRequest) (domain.Branch, error) {
	if _, _, err := authorize(ctx, domain.PermManageBranches); err != nil {
		return domain.Branch{}, err
	}
	if !req.Status.Valid() {
		return domain.Branch{}, store.Invalid("unknown status %q", req.Status)
	}
	updated, err := s.repo.SetBranchStatus(ctx, id, req.Status)
	if err != nil {
		return domain.Branch{}, err
	}
	s.logAudit(ctx, updated.ID, "branch.status", "branch", updated.ID, "status="+string(updated.Status))
	return *updated, nil
}

// Categories.

func (s *Service) ListCategories(ctx context.Context, kind domain.CategoryKind) ([]domain.Category, error) {
	if _, _, err := authorize(ctx); err != nil {
		return nil, err
	}
	if kind != "" && !kind.Valid() {
		return nil, store.Invalid("unknown category kind %q", kind)
	}
	return s.repo.ListCategories(ctx, kind)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if _, _, err := authorize(ctx, domain.PermManageCatalog); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.Invalid("category name is required")
	}
	if !req.Kind.Valid() {
		return domain.Category{}, store.Invalid("unknown category kind %q", req.Kind)
	}
	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: name, Kind: req.Kind, Status: domain.StatusActive})
	if err != nil {
		return domain.Category{}, err
	}
	return *created, nil
}

func (s *Service) SetCategoryStatus(ctx context.Context, id int64, req domain.StatusChangeRequest) (domain.Category, error) {
	if _, _, err := authorize(ctx, domain.PermManageCatalog); err != nil {
		return domain.Category{}, err
	}
	if !req.Status.Valid() {
		return domain.Category{}, store.Invalid("unknown status %q", req.Status)
	}
	updated, err := s.repo.SetCategoryStatus(ctx, id, req.Status)
	if err != nil {
		return domain.Category{}, err
	}
	return *updated, nil
}

func (s *Service) requireCategory(ctx context.Context, id int64, kind domain.CategoryKind) error {
	categories, err := s.repo.ListCategories(ctx, kind)
	if err != nil {
		return err
	}
	for _, c := range categories {
		if c.ID == id {
			if c.Status != domain.StatusActive {
				return store.Invalid("category %d is inactive", id)
			}
			return nil
		}
	}
	return store.Invalid("%s category %d does not exist", kind, id)
}

// Clients are shared by every branch.

func (s *Service) ListClients(ctx context.Context, query string, limit int) ([]domain.Client, error) {
	if _, _, err := authorize(ctx, domain.PermManageClients); err != nil {
		return nil, err
	}
	return s.repo.ListClients(ctx, query, clampLimit(limit))
}

func (s *Service) GetClient(ctx context.Context, id int64) (domain.Client, error) {
	if _, _, err := authorize(ctx, domain.PermManageClients); err != nil {
		return domain.Client{}, err
	}
	client, err := s.repo.GetClient(ctx, id)
	if err != nil {
		return domain.Client{}, err
	}
	return *client, nil
}

func (s *Service) CreateClient(ctx context.Context, req domain.ClientCreateRequest) (domain.Client, error) {
	actor, _, err := authorize(ctx, domain.PermManageClients)
	if err != nil {
		return domain.Client{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Client{}, store.Invalid("client name is required")
	}
	created, err := s.repo.CreateClient(ctx, domain.Client{
		Name:       name,
		NationalID: strings.TrimSpace(req.NationalID),
		Phone:      strings.TrimSpace(req.Phone),
		Email:      strings.TrimSpace(req.Email),
		Address:    strings.TrimSpace(req.Address),
		Status:     domain.StatusActive,
	})
	if err != nil {
		return domain.Client{}, err
	}
	s.logAudit(ctx, actor.BranchID, "client.create", "client", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) SetClientStatus(ctx context.Context, id int64, req domain.StatusChangeRequest) (domain.Client, error) {
	if _, _, err := authorize(ctx, domain.PermManageClients); err != nil {
		return domain.Client{}, err
	}
	if !req.Status.Valid() {
		return domain.Client{}, store.Invalid("unknown status %q", req.Status)
	}
	updated, err := s.repo.SetClientStatus(ctx, id, req.Status)
	if err != nil {
		return domain.Client{}, err
	}
	return *updated, nil
}

// Products.

// ListProducts returns the active catalog. Inactive products are included only
// when asked for by a catalog manager.
func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]domain.Product, error) {
	actor, _, err := authorize(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, includeInactive && actor.Role.Can(domain.PermManageCatalog))
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if _, _, err := authorize(ctx); err != nil {
		return domain.Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, _, err := authorize(ctx, domain.PermManageCatalog)
	if err != nil {
		return domain.Product{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, store.Invalid("product name is required")
	}
	if req.UnitPrice.IsNegative() {
		return domain.Product{}, store.Invalid("unit price must not be negative")
	}
	if req.CategoryID != nil {
		if err := s.requireCategory(ctx, *req.CategoryID, domain.CategoryProduct); err != nil {
			return domain.Product{}, err
		}
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Barcode:     domain.NormalizeBarcode(req.Barcode),
		CategoryID:  req.CategoryID,
		UnitPrice:   req.UnitPrice.Round(2),
		Status:      domain.StatusActive,
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.logAudit(ctx, actor.BranchID, "product.create", "product", created.ID,
		fmt.Sprintf("name=%s price=%s", created.Name, created.UnitPrice.StringFixed(2)))
	return *created, nil
}

// UpdateProduct applies a partial update. Price changes never touch the unit
// price captured on existing sale lines.
func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, _, err := authorize(ctx, domain.PermManageCatalog)
	if err != nil {
		return domain.Product{}, err
	}
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	next := *current
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
		if next.Name == "" {
			return domain.Product{}, store.Invalid("product name is required")
		}
	}
	if req.Description != nil {
		next.Description = strings.TrimSpace(*req.Description)
	}
	if req.Barcode != nil {
		next.Barcode = domain.NormalizeBarcode(*req.Barcode)
	}
	if req.CategoryID != nil {
		if err := s.requireCategory(ctx, *req.CategoryID, domain.CategoryProduct); err != nil {
			return domain.Product{}, err
		}
		next.CategoryID = req.CategoryID
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return domain.Product{}, store.Invalid("unit price must not be negative")
		}
		next.UnitPrice = req.UnitPrice.Round(2)
	}
	if req.Status != nil {
		if !current.Status.CanTransitionTo(*req.Status) {
			return domain.Product{}, store.Invalid("unknown status %q", *req.Status)
		}
		next.Status = *req.Status
	}

	updated, err := s.repo.UpdateProduct(ctx, next)
	if err != nil {
		return domain.Product{}, err
	}
	if !updated.UnitPrice.Equal(current.UnitPrice) {
		s.logAudit(ctx, actor.BranchID, "product.price", "product", updated.ID,
			fmt.Sprintf("from=%s to=%s", current.UnitPrice.StringFixed(2), updated.UnitPrice.StringFixed(2)))
	}
	return *updated, nil
}

// Users.

func (s *Service) ListUsers(ctx context.Context, branchID int64) ([]domain.User, error) {
	_, sc, err := authorize(ctx, domain.PermManageUsers)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx, sc.ReadFilter(branchID))
}

// CreateUser hashes the password with bcrypt. Restricted admins create users
// in their own branch only and never a SuperAdmin.
func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	_, sc, err := authorize(ctx, domain.PermManageUsers)
	if err != nil {
		return domain.User{}, err
	}
	if !req.Role.Valid() {
		return domain.User{}, store.Invalid("unknown role %d", int(req.Role))
	}
	if req.Role == domain.RoleSuperAdmin && !sc.Unrestricted() {
		return domain.User{}, fmt.Errorf("%w: only a super administrator can create another", store.ErrForbidden)
	}

	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || !strings.Contains(email, "@") {
		return domain.User{}, store.Invalid("name and a valid email are required")
	}
	if len(req.Password) < minPasswordLength {
		return domain.User{}, store.Invalid("password must be at least %d characters", minPasswordLength)
	}

	branchID := sc.WriteBranch(req.BranchID)
	if err := s.requireActiveBranch(ctx, branchID); err != nil {
		return domain.User{}, err
	}
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return domain.User{}, store.Invalid("email %s already registered", email)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.repo.CreateUser(ctx, domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         req.Role,
		BranchID:     branchID,
		Status:       domain.StatusActive,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logAudit(ctx, created.BranchID, "user.create", "user", created.ID,
		fmt.Sprintf("email=%s role=%d", created.Email, int(created.Role)))
	return *created, nil
}

// Authenticate checks email and password. Every failure looks the same to the
// caller.
func (s *Service) Authenticate(ctx context.Context, email string, password string) (domain.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: invalid credentials", store.ErrUnauthenticated)
		}
		return domain.User{}, err
	}
	if password == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.User{}, fmt.Errorf("%w: invalid credentials", store.ErrUnauthenticated)
	}
	if user.Status != domain.StatusActive {
		return domain.User{}, fmt.Errorf("%w: account is inactive", store.ErrUnauthenticated)
	}
	return *user, nil
}
