package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

type replyRepository struct {
	q Querier
}

func (r *replyRepository) Create(ctx context.Context, reply *domain.ReplyEntry) error {
	const query = `
        INSERT INTO support_replies (ticket_id, author_kind, staff_id, contact_id, type, details, date_added)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return r.q.QueryRow(ctx, query,
		reply.TicketID,
		reply.Author.Kind,
		reply.Author.StaffID(),
		reply.Author.ContactID(),
		reply.Type,
		reply.Details,
		reply.DateAdded,
	).Scan(&reply.ID)
}

func (r *replyRepository) AddAttachment(ctx context.Context, attachment *domain.Attachment) error {
	const query = `
        INSERT INTO support_attachments (reply_id, name, file_path)
        VALUES ($1,$2,$3)
        RETURNING id`
	return r.q.QueryRow(ctx, query,
		attachment.ReplyID,
		attachment.Name,
		attachment.FilePath,
	).Scan(&attachment.ID)
}

func (r *replyRepository) ListByTicket(ctx context.Context, ticketID int64) ([]domain.ReplyEntry, error) {
	const query = `
        SELECT id, ticket_id, author_kind, staff_id, contact_id, type, details, date_added
        FROM support_replies WHERE ticket_id=$1 ORDER BY date_added DESC, id DESC`
	rows, err := r.q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	replies, err := scanReplies(rows)
	if err != nil {
		return nil, err
	}

	attachments, err := r.ListAttachmentsByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	byReply := make(map[int64][]domain.Attachment, len(attachments))
	for _, att := range attachments {
		byReply[att.ReplyID] = append(byReply[att.ReplyID], att)
	}
	for i := range replies {
		replies[i].Attachments = byReply[replies[i].ID]
	}
	return replies, nil
}

func (r *replyRepository) ListAttachmentsByTicket(ctx context.Context, ticketID int64) ([]domain.Attachment, error) {
	const query = `
        SELECT a.id, a.reply_id, a.name, a.file_path
        FROM support_attachments a
        JOIN support_replies r ON r.id = a.reply_id
        WHERE r.ticket_id=$1
        ORDER BY a.id`
	rows, err := r.q.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Attachment
	for rows.Next() {
		var attachment domain.Attachment
		if err := rows.Scan(
			&attachment.ID,
			&attachment.ReplyID,
			&attachment.Name,
			&attachment.FilePath,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}

func (r *replyRepository) Reparent(ctx context.Context, replyIDs []int64, ticketID int64) error {
	if len(replyIDs) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `UPDATE support_replies SET ticket_id=$1 WHERE id = ANY($2)`, ticketID, replyIDs)
	return err
}

func (r *replyRepository) ReparentAll(ctx context.Context, fromTicketID, toTicketID int64, excluded []domain.ReplyType) ([]int64, error) {
	types := make([]string, len(excluded))
	for i, t := range excluded {
		types[i] = string(t)
	}
	const query = `
        UPDATE support_replies SET ticket_id=$1
        WHERE ticket_id=$2 AND NOT (type = ANY($3))
        RETURNING id`
	rows, err := r.q.Query(ctx, query, toTicketID, fromTicketID, types)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func scanReplies(rows pgx.Rows) ([]domain.ReplyEntry, error) {
	defer rows.Close()

	var result []domain.ReplyEntry
	for rows.Next() {
		var (
			reply     domain.ReplyEntry
			kind      domain.AuthorKind
			staffID   *int64
			contactID *int64
		)
		if err := rows.Scan(
			&reply.ID,
			&reply.TicketID,
			&kind,
			&staffID,
			&contactID,
			&reply.Type,
			&reply.Details,
			&reply.DateAdded,
		); err != nil {
			return nil, err
		}
		reply.Author = authorFromColumns(kind, staffID, contactID)
		result = append(result, reply)
	}
	return result, rows.Err()
}

func authorFromColumns(kind domain.AuthorKind, staffID, contactID *int64) domain.Author {
	switch {
	case kind == domain.AuthorStaff && staffID != nil:
		return domain.StaffAuthor(*staffID)
	case kind == domain.AuthorContact && contactID != nil:
		return domain.ContactAuthor(*contactID)
	case kind == domain.AuthorSystem:
		return domain.SystemAuthor()
	default:
		return domain.ClientAuthor()
	}
}
