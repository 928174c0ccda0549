package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/scope"
	"tallerpos/backend/internal/store"
)

func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	actor, sc, err := authorize(ctx, domain.PermSell)
	if err != nil {
		return domain.Sale{}, err
	}

	branchID := sc.WriteBranch(req.BranchID)
	if err := s.requireActiveBranch(ctx, branchID); err != nil {
		return domain.Sale{}, err
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = domain.PaymentCash
	}
	if !domain.IsSupportedPaymentMethod(method) {
		return domain.Sale{}, store.Invalid("unsupported payment method %q", req.PaymentMethod)
	}

	if req.ClientID != nil {
		client, err := s.repo.GetClient(ctx, *req.ClientID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Sale{}, store.Invalid("client %d does not exist", *req.ClientID)
			}
			return domain.Sale{}, err
		}
		if client.Status != domain.StatusActive {
			return domain.Sale{}, store.Invalid("client %d is inactive", client.ID)
		}
	}

	for _, line := range req.Lines {
		if !domain.ValidLineQuantity(line.Quantity) {
			return domain.Sale{}, store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
		}
		if err := s.requireSellable(ctx, line.ProductID); err != nil {
			return domain.Sale{}, err
		}
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		ClientID:      req.ClientID,
		UserID:        actor.UserID,
		BranchID:      branchID,
		CreatedAt:     s.clock(),
		PaymentMethod: method,
	}, req.Lines)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, created.BranchID, "sale.create", "sale", created.ID,
		fmt.Sprintf("number=%s lines=%d total=%s method=%s", created.Number, len(created.Lines), created.Total.StringFixed(2), created.PaymentMethod))
	return *created, nil
}

// requireSellable reports unknown and inactive products alike as not found.
func (s *Service) requireSellable(ctx context.Context, productID int64) error {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product.Status != domain.StatusActive {
		return fmt.Errorf("%w: product %d is inactive", store.ErrNotFound, productID)
	}
	return nil
}

func (s *Service) AddSaleLine(ctx context.Context, saleID int64, req domain.AddSaleLineRequest) (domain.SaleLineResponse, error) {
	_, sc, err := authorize(ctx, domain.PermSell)
	if err != nil {
		return domain.SaleLineResponse{}, err
	}

	sale, err := s.scopedSale(ctx, sc, saleID)
	if err != nil {
		return domain.SaleLineResponse{}, err
	}
	if sale.Status == domain.SaleVoided {
		return domain.SaleLineResponse{}, store.ErrAlreadyVoided
	}
	if !domain.ValidLineQuantity(req.Quantity) {
		return domain.SaleLineResponse{}, store.Invalid("quantity must be between 1 and %d", domain.MaxQuantity)
	}
	if err := s.requireSellable(ctx, req.ProductID); err != nil {
		return domain.SaleLineResponse{}, err
	}

	line, updated, err := s.repo.AddSaleLine(ctx, sale.ID, req)
	if err != nil {
		return domain.SaleLineResponse{}, err
	}

	s.logAudit(ctx, updated.BranchID, "sale.add_line", "sale", updated.ID,
		fmt.Sprintf("product=%d qty=%d unit_price=%s total=%s", line.ProductID, line.Quantity, line.UnitPrice.StringFixed(2), updated.Total.StringFixed(2)))
	return domain.SaleLineResponse{Line: *line, Sale: *updated}, nil
}

// VoidSale is gated by the sale-void allow-list alone, so the policy can both
// widen and narrow the roles that hold void_sale by default.
func (s *Service) VoidSale(ctx context.Context, saleID int64, req domain.VoidSaleRequest) (domain.Sale, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if !s.policy.SaleVoidRoles.Contains(actor.Role) {
		return domain.Sale{}, fmt.Errorf("%w: role %s may not void sales", store.ErrForbidden, actor.Role)
	}

	sale, err := s.scopedSale(ctx, scope.Resolve(actor), saleID)
	if err != nil {
		return domain.Sale{}, err
	}

	voided, err := s.repo.VoidSale(ctx, sale.ID, req.Reason, s.now())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, voided.BranchID, "sale.void", "sale", voided.ID,
		fmt.Sprintf("number=%s reason=%s", voided.Number, voided.VoidReason))
	return *voided, nil
}

func (s *Service) GetSale(ctx context.Context, saleID int64) (domain.Sale, error) {
	_, sc, err := authorize(ctx, domain.PermSell, domain.PermViewReports)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.scopedSale(ctx, sc, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	_, sc, err := authorize(ctx, domain.PermSell, domain.PermViewReports)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && filter.Status != domain.SaleCompleted && filter.Status != domain.SaleVoided {
		return nil, store.Invalid("unknown sale status %q", filter.Status)
	}
	filter.BranchID = sc.ReadFilter(filter.BranchID)
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListSales(ctx, filter)
}

// scopedSale loads a sale and hides it when it lives outside the scope.
func (s *Service) scopedSale(ctx context.Context, sc scope.Scope, saleID int64) (*domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if !sc.Permits(sale.BranchID) {
		return nil, store.ErrNotFound
	}
	return sale, nil
}
