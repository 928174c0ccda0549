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

func (s *Service) CreateTicket(ctx context.Context, req domain.CreateTicketRequest) (domain.ServiceTicket, error) {
	actor, sc, err := authorize(ctx, domain.PermManageTickets)
	if err != nil {
		return domain.ServiceTicket{}, err
	}

	branchID := sc.WriteBranch(req.BranchID)
	if err := s.requireActiveBranch(ctx, branchID); err != nil {
		return domain.ServiceTicket{}, err
	}

	if req.ClientID < 1 {
		return domain.ServiceTicket{}, store.Invalid("client is required")
	}
	if _, err := s.repo.GetClient(ctx, req.ClientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ServiceTicket{}, store.Invalid("client %d does not exist", req.ClientID)
		}
		return domain.ServiceTicket{}, err
	}

	brand := strings.TrimSpace(req.DeviceBrand)
	problem := strings.TrimSpace(req.ProblemDescription)
	if brand == "" || problem == "" {
		return domain.ServiceTicket{}, store.Invalid("device brand and problem description are required")
	}
	if req.EstimatedCost.IsNegative() {
		return domain.ServiceTicket{}, store.Invalid("estimated cost must not be negative")
	}
	if req.CategoryID != nil {
		if err := s.requireCategory(ctx, *req.CategoryID, domain.CategoryService); err != nil {
			return domain.ServiceTicket{}, err
		}
	}
	if req.TechnicianID != nil {
		if err := s.requireTechnician(ctx, *req.TechnicianID, branchID); err != nil {
			return domain.ServiceTicket{}, err
		}
	}

	created, err := s.repo.CreateTicket(ctx, domain.ServiceTicket{
		ClientID:           req.ClientID,
		UserID:             actor.UserID,
		BranchID:           branchID,
		DeviceBrand:        brand,
		DeviceModel:        strings.TrimSpace(req.DeviceModel),
		ProblemDescription: problem,
		CategoryID:         req.CategoryID,
		EstimatedCost:      req.EstimatedCost,
		TechnicianID:       req.TechnicianID,
		ReceivedAt:         s.clock(),
	})
	if err != nil {
		return domain.ServiceTicket{}, err
	}

	s.logAudit(ctx, created.BranchID, "ticket.create", "service_ticket", created.ID,
		fmt.Sprintf("number=%s device=%s %s", created.Number, created.DeviceBrand, created.DeviceModel))
	return *created, nil
}

// requireTechnician checks that the user can repair devices and works in the
// ticket's branch.
func (s *Service) requireTechnician(ctx context.Context, userID int64, branchID int64) error {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Invalid("technician %d does not exist", userID)
		}
		return err
	}
	if !user.Role.Repairs() {
		return store.Invalid("user %d is not a technician", userID)
	}
	if user.BranchID != branchID {
		return store.Invalid("technician %d belongs to another branch", userID)
	}
	if user.Status != domain.StatusActive {
		return store.Invalid("technician %d is inactive", userID)
	}
	return nil
}

func (s *Service) SetTicketStatus(ctx context.Context, ticketID int64, req domain.SetTicketStatusRequest) (domain.ServiceTicket, error) {
	_, sc, err := authorize(ctx, domain.PermManageTickets)
	if err != nil {
		return domain.ServiceTicket{}, err
	}
	if !req.Status.Valid() {
		return domain.ServiceTicket{}, store.Invalid("unknown ticket status %q", req.Status)
	}
	if req.Status == domain.TicketVoided {
		return domain.ServiceTicket{}, store.Invalid("tickets are voided through the void operation")
	}

	ticket, err := s.scopedTicket(ctx, sc, ticketID)
	if err != nil {
		return domain.ServiceTicket{}, err
	}
	previous := ticket.Status

	updated, err := s.repo.UpdateTicketStatus(ctx, ticket.ID, req.Status, s.now())
	if err != nil {
		return domain.ServiceTicket{}, err
	}

	s.logAudit(ctx, updated.BranchID, "ticket.status", "service_ticket", updated.ID,
		fmt.Sprintf("number=%s from=%s to=%s", updated.Number, previous, updated.Status))
	return *updated, nil
}

func (s *Service) AssignTechnician(ctx context.Context, ticketID int64, req domain.AssignTechnicianRequest) (domain.ServiceTicket, error) {
	_, sc, err := authorize(ctx, domain.PermAssignTechnician)
	if err != nil {
		return domain.ServiceTicket{}, err
	}

	ticket, err := s.scopedTicket(ctx, sc, ticketID)
	if err != nil {
		return domain.ServiceTicket{}, err
	}
	if ticket.Status == domain.TicketVoided {
		return domain.ServiceTicket{}, store.ErrAlreadyVoided
	}
	if req.TechnicianID != nil {
		if err := s.requireTechnician(ctx, *req.TechnicianID, ticket.BranchID); err != nil {
			return domain.ServiceTicket{}, err
		}
	}

	updated, err := s.repo.AssignTechnician(ctx, ticket.ID, req.TechnicianID)
	if err != nil {
		return domain.ServiceTicket{}, err
	}

	detail := "technician=none"
	if updated.TechnicianID != nil {
		detail = fmt.Sprintf("technician=%d", *updated.TechnicianID)
	}
	s.logAudit(ctx, updated.BranchID, "ticket.assign", "service_ticket", updated.ID, detail)
	return *updated, nil
}

// VoidTicket checks the void allow-list before anything else, so a caller
// outside it learns nothing about the ticket.
func (s *Service) VoidTicket(ctx context.Context, ticketID int64) (domain.ServiceTicket, error) {
	actor, err := currentActor(ctx)
	if err != nil {
		return domain.ServiceTicket{}, err
	}
	if !s.policy.TicketVoidRoles.Contains(actor.Role) {
		return domain.ServiceTicket{}, fmt.Errorf("%w: role %s may not void service tickets", store.ErrForbidden, actor.Role)
	}

	ticket, err := s.scopedTicket(ctx, scope.Resolve(actor), ticketID)
	if err != nil {
		return domain.ServiceTicket{}, err
	}

	voided, err := s.repo.VoidTicket(ctx, ticket.ID)
	if err != nil {
		return domain.ServiceTicket{}, err
	}

	s.logAudit(ctx, voided.BranchID, "ticket.void", "service_ticket", voided.ID,
		fmt.Sprintf("number=%s from=%s", voided.Number, ticket.Status))
	return *voided, nil
}

func (s *Service) GetTicket(ctx context.Context, ticketID int64) (domain.ServiceTicket, error) {
	_, sc, err := authorize(ctx, domain.PermManageTickets, domain.PermViewReports)
	if err != nil {
		return domain.ServiceTicket{}, err
	}
	ticket, err := s.scopedTicket(ctx, sc, ticketID)
	if err != nil {
		return domain.ServiceTicket{}, err
	}
	return *ticket, nil
}

// ListTickets lists tickets in scope. With mine set, only tickets assigned to
// the caller are returned.
func (s *Service) ListTickets(ctx context.Context, filter domain.TicketFilter, mine bool) ([]domain.ServiceTicket, error) {
	actor, sc, err := authorize(ctx, domain.PermManageTickets, domain.PermViewReports)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, store.Invalid("unknown ticket status %q", filter.Status)
	}
	if mine {
		filter.TechnicianID = actor.UserID
	}
	filter.BranchID = sc.ReadFilter(filter.BranchID)
	filter.Limit = clampLimit(filter.Limit)
	return s.repo.ListTickets(ctx, filter)
}

func (s *Service) scopedTicket(ctx context.Context, sc scope.Scope, ticketID int64) (*domain.ServiceTicket, error) {
	ticket, err := s.repo.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !sc.Permits(ticket.BranchID) {
		return nil, store.ErrNotFound
	}
	return ticket, nil
}
