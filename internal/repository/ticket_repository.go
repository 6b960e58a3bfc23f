package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

const ticketColumns = `t.id, t.code, t.department_id, t.staff_id, t.service_id, t.client_id, t.email,
               t.summary, t.priority, t.status, t.date_added, t.date_updated, t.date_closed`

type ticketRepository struct {
	q Querier
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO support_tickets (code, department_id, staff_id, service_id, client_id, email, summary,
            priority, status, date_added, date_updated, date_closed)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id`
	return r.q.QueryRow(ctx, query,
		ticket.Code,
		ticket.DepartmentID,
		ticket.StaffID,
		ticket.ServiceID,
		ticket.ClientID,
		ticket.Email,
		ticket.Summary,
		ticket.Priority,
		ticket.Status,
		ticket.DateAdded,
		ticket.DateUpdated,
		ticket.DateClosed,
	).Scan(&ticket.ID)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE support_tickets SET department_id=$1, staff_id=$2, service_id=$3, client_id=$4, email=$5,
            summary=$6, priority=$7, status=$8, date_updated=$9, date_closed=$10
        WHERE id=$11`
	cmd, err := r.q.Exec(ctx, query,
		ticket.DepartmentID,
		ticket.StaffID,
		ticket.ServiceID,
		ticket.ClientID,
		ticket.Email,
		ticket.Summary,
		ticket.Priority,
		ticket.Status,
		ticket.DateUpdated,
		ticket.DateClosed,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets t WHERE t.id=$1`
	ticket, err := scanTicket(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM support_tickets WHERE code=$1)`, code).Scan(&exists)
	return exists, err
}

func (r *ticketRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.q.Exec(ctx, `DELETE FROM support_tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("t.department_id=$%d", len(args)))
	}
	if filter.StaffID != nil {
		args = append(args, *filter.StaffID)
		clauses = append(clauses, fmt.Sprintf("t.staff_id=$%d", len(args)))
	}
	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		clauses = append(clauses, fmt.Sprintf("t.client_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("t.status = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		args = append(args, priorityStrings(filter.Priorities))
		clauses = append(clauses, fmt.Sprintf("t.priority = ANY($%d)", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM support_tickets t WHERE %s ORDER BY t.date_updated DESC, t.id DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// lastReplyJoin selects, per ticket, the newest reply-type entry.
const lastReplyJoin = `
        JOIN LATERAL (
            SELECT r.id, r.author_kind, r.staff_id, r.contact_id, r.type, r.details, r.date_added
            FROM support_replies r
            WHERE r.ticket_id = t.id AND r.type = 'reply'
            ORDER BY r.date_added DESC, r.id DESC
            LIMIT 1
        ) lr ON TRUE`

func (r *ticketRepository) ListAutoCloseCandidates(ctx context.Context, departmentID int64, excluded []domain.TicketStatus, cutoff time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets t` + lastReplyJoin + `
        WHERE t.department_id = $1
          AND NOT (t.status = ANY($2))
          AND lr.author_kind IN ('staff', 'system')
          AND lr.date_added <= $3
        ORDER BY t.id`
	rows, err := r.q.Query(ctx, query, departmentID, statusStrings(excluded), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListTrashedBefore(ctx context.Context, departmentID int64, cutoff time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM support_tickets t
        WHERE t.department_id = $1 AND t.status = $2 AND t.date_updated <= $3
        ORDER BY t.id`
	rows, err := r.q.Query(ctx, query, departmentID, domain.TicketStatusTrash, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListReminderCandidates(ctx context.Context, filter ReminderFilter) ([]ReminderCandidate, error) {
	clauses := []string{
		"t.department_id = $1",
		"lr.date_added <= $2",
		`NOT EXISTS (SELECT 1 FROM support_reminders sr WHERE sr.ticket_id = t.id AND sr.date_sent >= lr.date_added)`,
	}
	args := []any{filter.DepartmentID, filter.Cutoff}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("t.status = ANY($%d)", len(args)))
	} else {
		args = append(args, statusStrings([]domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusTrash}))
		clauses = append(clauses, fmt.Sprintf("NOT (t.status = ANY($%d))", len(args)))
	}
	if len(filter.Priorities) > 0 {
		args = append(args, priorityStrings(filter.Priorities))
		clauses = append(clauses, fmt.Sprintf("t.priority = ANY($%d)", len(args)))
	}

	query := `SELECT ` + ticketColumns + `,
               lr.id, lr.author_kind, lr.staff_id, lr.contact_id, lr.type, lr.details, lr.date_added
        FROM support_tickets t` + lastReplyJoin + `
        WHERE ` + strings.Join(clauses, " AND ") + `
        ORDER BY t.id`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReminderCandidate
	for rows.Next() {
		var (
			c         ReminderCandidate
			staffID   *int64
			contactID *int64
		)
		if err := rows.Scan(append(ticketScanTargets(&c.Ticket),
			&c.LastReply.ID,
			&c.LastReply.Author.Kind,
			&staffID,
			&contactID,
			&c.LastReply.Type,
			&c.LastReply.Details,
			&c.LastReply.DateAdded,
		)...); err != nil {
			return nil, err
		}
		c.LastReply.TicketID = c.Ticket.ID
		c.LastReply.Author = authorFromColumns(c.LastReply.Author.Kind, staffID, contactID)
		result = append(result, c)
	}
	return result, rows.Err()
}

func ticketScanTargets(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.Code,
		&ticket.DepartmentID,
		&ticket.StaffID,
		&ticket.ServiceID,
		&ticket.ClientID,
		&ticket.Email,
		&ticket.Summary,
		&ticket.Priority,
		&ticket.Status,
		&ticket.DateAdded,
		&ticket.DateUpdated,
		&ticket.DateClosed,
	}
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(ticketScanTargets(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketScanTargets(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func priorityStrings(priorities []domain.TicketPriority) []string {
	out := make([]string, len(priorities))
	for i, p := range priorities {
		out[i] = string(p)
	}
	return out
}
