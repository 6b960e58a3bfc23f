package repository

import (
	"context"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

type reminderRepository struct {
	q Querier
}

func (r *reminderRepository) Create(ctx context.Context, reminder *domain.Reminder) error {
	const query = `
        INSERT INTO support_reminders (ticket_id, status, date_sent)
        VALUES ($1,$2,$3)
        RETURNING id`
	return r.q.QueryRow(ctx, query, reminder.TicketID, reminder.StatusAtSend, reminder.DateSent).Scan(&reminder.ID)
}

func (r *reminderRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Reminder, error) {
	const query = `
        SELECT id, ticket_id, status, date_sent
        FROM support_reminders WHERE ticket_id=$1 ORDER BY date_sent DESC, id DESC`
	rows, err := r.q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reminder
	for rows.Next() {
		var reminder domain.Reminder
		if err := rows.Scan(&reminder.ID, &reminder.TicketID, &reminder.StatusAtSend, &reminder.DateSent); err != nil {
			return nil, err
		}
		result = append(result, reminder)
	}
	return result, rows.Err()
}
