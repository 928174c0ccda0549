package service

import (
	"context"
	"fmt"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/store"
)

// GetQuantity reads one ledger row. A missing row reads as zero. Unrestricted
// callers that omit the branch read their home branch.
func (s *Service) GetQuantity(ctx context.Context, productID int64, branchID int64) (domain.InventoryItem, error) {
	_, sc, err := authorize(ctx, domain.PermViewInventory)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	branchID = sc.WriteBranch(branchID)
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return domain.InventoryItem{}, err
	}

	qty, err := s.repo.GetQuantity(ctx, productID, branchID)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return domain.InventoryItem{ProductID: productID, BranchID: branchID, Quantity: qty}, nil
}

func (s *Service) ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.InventoryItem, error) {
	_, sc, err := authorize(ctx, domain.PermViewInventory)
	if err != nil {
		return nil, err
	}
	filter.BranchID = sc.ReadFilter(filter.BranchID)
	return s.repo.ListInventory(ctx, filter)
}

func (s *Service) UpsertInventory(ctx context.Context, req domain.InventoryUpsertRequest) (domain.InventoryItem, error) {
	_, sc, err := authorize(ctx, domain.PermManageInventory)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if !domain.ValidStockQuantity(req.Quantity) {
		return domain.InventoryItem{}, store.Invalid("quantity must be between 0 and %d", domain.MaxQuantity)
	}
	branchID := sc.WriteBranch(req.BranchID)
	if err := s.requireActiveBranch(ctx, branchID); err != nil {
		return domain.InventoryItem{}, err
	}
	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		return domain.InventoryItem{}, err
	}

	item, err := s.repo.UpsertQuantity(ctx, req.ProductID, branchID, req.Quantity)
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.logAudit(ctx, branchID, "inventory.upsert", "product", req.ProductID, fmt.Sprintf("quantity=%d", item.Quantity))
	return *item, nil
}
