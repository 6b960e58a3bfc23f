package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// AttachmentInput is an uploaded file waiting to be stored.
type AttachmentInput struct {
	Name string
	Data []byte
}

// ReplyInput describes a thread entry written by a person.
type ReplyInput struct {
	Author      domain.Author
	Type        domain.ReplyType
	Details     string
	Attachments []AttachmentInput
	// Silent records the entry without notifying anyone.
	Silent bool
}

// ThreadService reads and appends ticket thread entries.
type ThreadService struct {
	*engine
}

// NewThreadService constructs the service.
func NewThreadService(deps Dependencies) *ThreadService {
	return &ThreadService{engine: newEngine(deps)}
}

// AddReply appends a reply or note to the ticket without touching its status.
func (s *ThreadService) AddReply(ctx context.Context, ticketID int64, input ReplyInput) (*domain.ReplyEntry, error) {
	var reply *domain.ReplyEntry
	err := s.run(ctx, func(tx repository.Store, w *work) error {
		ticket, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		now := s.now()
		if reply, err = s.addReplyTx(ctx, tx, w, ticket, input, now); err != nil {
			return err
		}
		ticket.DateUpdated = now
		return tx.Tickets().Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// Thread returns the ticket's entries newest first.
func (s *ThreadService) Thread(ctx context.Context, ticketID int64) ([]domain.ReplyEntry, error) {
	if _, err := s.loadTicket(ctx, s.store, ticketID); err != nil {
		return nil, classify(err)
	}
	replies, err := s.store.Replies().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, classify(err)
	}
	return replies, nil
}

// addReplyTx inserts a human-authored entry and queues a reply-added event.
func (e *engine) addReplyTx(ctx context.Context, tx repository.Store, w *work, ticket *domain.Ticket, input ReplyInput, now time.Time) (*domain.ReplyEntry, error) {
	reply, err := e.insertReply(ctx, tx, w, ticket, input, now)
	if err != nil {
		return nil, err
	}
	w.emit(events.EventTicketReplyAdded, ticket.ID, reply.Author, now, events.ReplyAddedPayload{
		Ticket: ticket.Clone(),
		Reply:  *reply,
		Silent: input.Silent,
	})
	return reply, nil
}

// insertReply validates and inserts a human-authored entry with its attachments.
func (e *engine) insertReply(ctx context.Context, tx repository.Store, w *work, ticket *domain.Ticket, input ReplyInput, now time.Time) (*domain.ReplyEntry, error) {
	if input.Type == "" {
		input.Type = domain.ReplyTypeReply
	}
	if input.Author.Kind == "" {
		input.Author = domain.ClientAuthor()
	}
	if input.Type == domain.ReplyTypeLog || !input.Type.Valid() {
		return nil, apperrors.NewValidationError(apperrors.ReasonInvalidReplyType, "reply type must be reply or note",
			map[string]any{"type": input.Type})
	}
	if !input.Author.Valid() {
		return nil, apperrors.NewValidationError(apperrors.ReasonInvalidPayload, "malformed author", nil)
	}

	details, err := e.stripSignature(ctx, tx, input.Author, input.Details)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(details) == "" {
		return nil, apperrors.NewValidationError(apperrors.ReasonDetailsRequired, "details are required", nil)
	}
	if err := e.checkContact(ctx, tx, ticket, input.Author); err != nil {
		return nil, err
	}

	reply := &domain.ReplyEntry{
		TicketID:  ticket.ID,
		Author:    input.Author,
		Type:      input.Type,
		Details:   details,
		DateAdded: now,
	}
	if err := tx.Replies().Create(ctx, reply); err != nil {
		return nil, err
	}
	if err := e.storeAttachments(ctx, tx, w, reply, input.Attachments); err != nil {
		return nil, err
	}
	return reply, nil
}

// appendSystemReply posts engine-generated text as a reply.
func (e *engine) appendSystemReply(ctx context.Context, tx repository.Store, w *work, ticket *domain.Ticket, details string, now time.Time) (*domain.ReplyEntry, error) {
	reply := &domain.ReplyEntry{
		TicketID:  ticket.ID,
		Author:    domain.SystemAuthor(),
		Type:      domain.ReplyTypeReply,
		Details:   details,
		DateAdded: now,
	}
	if err := tx.Replies().Create(ctx, reply); err != nil {
		return nil, err
	}
	w.emit(events.EventTicketReplyAdded, ticket.ID, reply.Author, now, events.ReplyAddedPayload{
		Ticket: ticket.Clone(),
		Reply:  *reply,
	})
	return reply, nil
}

func (e *engine) appendLog(ctx context.Context, tx repository.Store, ticketID int64, author domain.Author, details string, now time.Time) error {
	return tx.Replies().Create(ctx, &domain.ReplyEntry{
		TicketID:  ticketID,
		Author:    author,
		Type:      domain.ReplyTypeLog,
		Details:   details,
		DateAdded: now,
	})
}

// stripSignature clears details that consist only of the staff member's signature.
func (e *engine) stripSignature(ctx context.Context, tx repository.Store, author domain.Author, details string) (string, error) {
	if author.Kind != domain.AuthorStaff {
		return details, nil
	}
	member, err := tx.Staff().GetByID(ctx, author.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", apperrors.NewValidationError(apperrors.ReasonStaffNotFound, "staff member does not exist",
			map[string]any{"staff_id": author.ID})
	}
	if err != nil {
		return "", err
	}
	signature := strings.TrimSpace(member.Signature)
	if signature != "" && strings.TrimSpace(details) == signature {
		return "", nil
	}
	return details, nil
}

func (e *engine) checkContact(ctx context.Context, tx repository.Store, ticket *domain.Ticket, author domain.Author) error {
	if author.Kind != domain.AuthorContact {
		return nil
	}
	contact, err := tx.Clients().GetContact(ctx, author.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if err != nil || ticket.ClientID == nil || contact.ClientID != *ticket.ClientID {
		return apperrors.NewValidationError(apperrors.ReasonContactNotOwned, "contact does not belong to the ticket's client",
			map[string]any{"contact_id": author.ID})
	}
	return nil
}

// storeAttachments writes files and links them to reply. Written paths are tracked on
// w so a rollback removes them.
func (e *engine) storeAttachments(ctx context.Context, tx repository.Store, w *work, reply *domain.ReplyEntry, inputs []AttachmentInput) error {
	if len(inputs) == 0 {
		return nil
	}
	if e.attachments == nil {
		return apperrors.NewAttachmentError(inputs[0].Name, errors.New("attachment store not configured"))
	}
	for _, in := range inputs {
		stored, err := e.attachments.Write(ctx, in.Data, in.Name)
		if err != nil {
			return apperrors.NewAttachmentError(in.Name, err)
		}
		w.files = append(w.files, stored.Path)

		att := &domain.Attachment{ReplyID: reply.ID, Name: in.Name, FilePath: stored.Path}
		if err := tx.Replies().AddAttachment(ctx, att); err != nil {
			return err
		}
		reply.Attachments = append(reply.Attachments, *att)
	}
	return nil
}
