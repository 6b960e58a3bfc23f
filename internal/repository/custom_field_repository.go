package repository

import (
	"context"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

type customFieldRepository struct {
	q Querier
}

func (r *customFieldRepository) Upsert(ctx context.Context, value domain.CustomFieldValue) error {
	const query = `
        INSERT INTO support_ticket_fields (ticket_id, field_id, value, encrypted)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id, field_id) DO UPDATE SET value=EXCLUDED.value, encrypted=EXCLUDED.encrypted`
	_, err := r.q.Exec(ctx, query, value.TicketID, value.FieldID, value.Value, value.Encrypted)
	return err
}

func (r *customFieldRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.CustomFieldValue, error) {
	const query = `
        SELECT ticket_id, field_id, value, encrypted
        FROM support_ticket_fields WHERE ticket_id=$1 ORDER BY field_id`
	rows, err := r.q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CustomFieldValue
	for rows.Next() {
		var value domain.CustomFieldValue
		if err := rows.Scan(&value.TicketID, &value.FieldID, &value.Value, &value.Encrypted); err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	return result, rows.Err()
}

func (r *customFieldRepository) Delete(ctx context.Context, ticketID int64, fieldIDs []int64) error {
	if len(fieldIDs) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `DELETE FROM support_ticket_fields WHERE ticket_id=$1 AND field_id = ANY($2)`, ticketID, fieldIDs)
	return err
}
