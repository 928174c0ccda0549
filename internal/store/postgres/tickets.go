package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tallerpos/backend/internal/domain"
	"tallerpos/backend/internal/numbering"
	"tallerpos/backend/internal/store"
)

const ticketColumns = `id, number, client_id, user_id, branch_id, device_brand, device_model, problem_description,
	category_id, estimated_cost, status, technician_id, received_at, delivered_at`

func scanTicket(row interface{ Scan(...any) error }) (*domain.ServiceTicket, error) {
	var (
		t            domain.ServiceTicket
		categoryID   sql.NullInt64
		technicianID sql.NullInt64
		deliveredAt  sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Number, &t.ClientID, &t.UserID, &t.BranchID, &t.DeviceBrand, &t.DeviceModel,
		&t.ProblemDescription, &categoryID, &t.EstimatedCost, &t.Status, &technicianID, &t.ReceivedAt, &deliveredAt); err != nil {
		return nil, err
	}
	t.CategoryID = nullableInt64(categoryID)
	t.TechnicianID = nullableInt64(technicianID)
	t.DeliveredAt = nullableTime(deliveredAt)
	return &t, nil
}

func loadTicket(ctx context.Context, q querier, id int64, lock bool) (*domain.ServiceTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM service_tickets WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	ticket, err := scanTicket(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return ticket, err
}

func (s *Store) CreateTicket(ctx context.Context, ticket domain.ServiceTicket) (*domain.ServiceTicket, error) {
	if ticket.ReceivedAt.IsZero() {
		ticket.ReceivedAt = time.Now().UTC()
	}
	var created *domain.ServiceTicket
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		number, err := allocateNumber(ctx, tx, numbering.KindService, ticket.ReceivedAt.Year())
		if err != nil {
			return err
		}
		created, err = scanTicket(tx.QueryRowContext(ctx, `
			INSERT INTO service_tickets (
				number, client_id, user_id, branch_id, device_brand, device_model, problem_description,
				category_id, estimated_cost, status, technician_id, received_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			RETURNING `+ticketColumns,
			number, ticket.ClientID, ticket.UserID, ticket.BranchID, ticket.DeviceBrand, ticket.DeviceModel,
			ticket.ProblemDescription, ticket.CategoryID, ticket.EstimatedCost, string(domain.TicketInRepair),
			ticket.TechnicianID, ticket.ReceivedAt))
		if isForeignKeyViolation(err) {
			return store.Invalid("ticket references a missing client, user, branch or category")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) GetTicket(ctx context.Context, id int64) (*domain.ServiceTicket, error) {
	return loadTicket(ctx, s.db, id, false)
}

func (s *Store) ListTickets(ctx context.Context, filter domain.TicketFilter) ([]domain.ServiceTicket, error) {
	w := newWhere()
	if filter.BranchID > 0 {
		w.add("branch_id = ?", filter.BranchID)
	}
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.TechnicianID > 0 {
		w.add("technician_id = ?", filter.TechnicianID)
	}
	if !filter.From.IsZero() {
		w.add("received_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("received_at < ?", filter.To)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM service_tickets`+w.sql()+`
		ORDER BY received_at DESC, id DESC`+w.limit(filter.Limit), w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.ServiceTicket, 0, 64)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

// mutateTicket locks the ticket row, rejects voided tickets and applies fn.
func (s *Store) mutateTicket(ctx context.Context, id int64, fn func(tx *sql.Tx, ticket *domain.ServiceTicket) error) (*domain.ServiceTicket, error) {
	var updated *domain.ServiceTicket
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		ticket, err := loadTicket(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if ticket.Status == domain.TicketVoided {
			return store.ErrAlreadyVoided
		}
		if err := fn(tx, ticket); err != nil {
			return err
		}
		updated, err = loadTicket(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) UpdateTicketStatus(ctx context.Context, id int64, status domain.TicketStatus, at time.Time) (*domain.ServiceTicket, error) {
	return s.mutateTicket(ctx, id, func(tx *sql.Tx, ticket *domain.ServiceTicket) error {
		if !ticket.Status.CanTransitionTo(status) {
			return store.Invalid("cannot move ticket from %s to %s", ticket.Status, status)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE service_tickets
			SET status = $2,
			    delivered_at = CASE WHEN $2 = 'Delivered' AND delivered_at IS NULL THEN $3 ELSE delivered_at END
			WHERE id = $1
		`, id, string(status), at.UTC())
		return err
	})
}

func (s *Store) AssignTechnician(ctx context.Context, id int64, technicianID *int64) (*domain.ServiceTicket, error) {
	return s.mutateTicket(ctx, id, func(tx *sql.Tx, _ *domain.ServiceTicket) error {
		_, err := tx.ExecContext(ctx, `UPDATE service_tickets SET technician_id = $2 WHERE id = $1`, id, technicianID)
		return err
	})
}

func (s *Store) VoidTicket(ctx context.Context, id int64) (*domain.ServiceTicket, error) {
	return s.mutateTicket(ctx, id, func(tx *sql.Tx, ticket *domain.ServiceTicket) error {
		if !ticket.Status.Voidable() {
			return store.Invalid("a %s ticket cannot be voided", ticket.Status)
		}
		_, err := tx.ExecContext(ctx, `UPDATE service_tickets SET status = $2 WHERE id = $1`, id, string(domain.TicketVoided))
		return err
	})
}
