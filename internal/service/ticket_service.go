package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// TicketService owns ticket creation and the edit state machine.
type TicketService struct {
	*engine
}

// NewTicketService constructs the service.
func NewTicketService(deps Dependencies) *TicketService {
	return &TicketService{engine: newEngine(deps)}
}

// CreateTicketInput describes a new ticket and its first reply.
type CreateTicketInput struct {
	DepartmentID int64
	StaffID      *int64
	ServiceID    *int64
	ClientID     *int64
	Email        *string
	Summary      string
	Priority     domain.TicketPriority
	Status       domain.TicketStatus
	Author       domain.Author
	Details      string
	Attachments  []AttachmentInput
	Fields       map[int64]string
}

// TicketChanges is a sparse edit. Nil fields are left alone; ClearStaff and
// ClearService unset the assignment.
type TicketChanges struct {
	DepartmentID *int64
	StaffID      *int64
	ClearStaff   bool
	ServiceID    *int64
	ClearService bool
	ClientID     *int64
	Email        *string
	Summary      *string
	Priority     *domain.TicketPriority
	Status       *domain.TicketStatus
	DateClosed   *time.Time

	// ActorStaffID authors the log entries; nil means System.
	ActorStaffID *int64

	// Optional reply or note carried by the edit.
	Author      domain.Author
	ReplyType   domain.ReplyType
	Details     string
	Attachments []AttachmentInput
	Silent      bool

	Fields map[int64]string
}

// EditOption tunes a single edit call.
type EditOption func(*editOptions)

type editOptions struct {
	log bool
}

// WithoutLog suppresses log entries for the edit.
func WithoutLog() EditOption {
	return func(o *editOptions) { o.log = false }
}

// TicketDetails is a ticket with its thread and decrypted custom fields.
type TicketDetails struct {
	Ticket  domain.Ticket
	Replies []domain.ReplyEntry
	Fields  []FieldValue
}

// Create inserts the ticket, its first reply and its custom fields atomically.
func (s *TicketService) Create(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.run(ctx, func(tx repository.Store, w *work) error {
		var err error
		ticket, err = s.createTx(ctx, tx, w, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (e *engine) createTx(ctx context.Context, tx repository.Store, w *work, input CreateTicketInput) (*domain.Ticket, error) {
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}
	if input.Status == "" {
		input.Status = domain.TicketStatusOpen
	}
	if err := check(
		requireSummary(input.Summary),
		validStatus(&input.Status),
		validPriority(&input.Priority),
	); err != nil {
		return nil, err
	}

	dept, err := e.loadDepartment(ctx, tx, input.DepartmentID)
	if err != nil {
		return nil, err
	}
	rules := []rule{
		clientInCompany(ctx, tx, input.ClientID, dept.CompanyID),
		serviceOwned(ctx, tx, input.ServiceID, input.ClientID),
		staffExists(ctx, tx, input.StaffID),
	}
	if input.ClientID == nil {
		email := ""
		if input.Email != nil {
			email = *input.Email
		}
		rules = append(rules, validEmail(email))
	}
	if err := check(rules...); err != nil {
		return nil, err
	}

	code, err := e.codes.Next(ctx, tx.Tickets().CodeExists)
	if err != nil {
		return nil, err
	}

	now := e.now()
	ticket := &domain.Ticket{
		Code:         code,
		DepartmentID: dept.ID,
		StaffID:      input.StaffID,
		ServiceID:    input.ServiceID,
		ClientID:     input.ClientID,
		Summary:      strings.TrimSpace(input.Summary),
		Priority:     input.Priority,
		Status:       input.Status,
		DateAdded:    now,
		DateUpdated:  now,
	}
	if input.ClientID == nil {
		email := strings.TrimSpace(*input.Email)
		ticket.Email = &email
	}
	if ticket.Status == domain.TicketStatusClosed {
		ticket.DateClosed = &now
	}
	if err := tx.Tickets().Create(ctx, ticket); err != nil {
		return nil, err
	}

	reply, err := e.insertReply(ctx, tx, w, ticket, ReplyInput{
		Author:      input.Author,
		Type:        domain.ReplyTypeReply,
		Details:     input.Details,
		Attachments: input.Attachments,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := e.fields.BindAll(ctx, tx, dept, ticket.ID, input.Fields, true); err != nil {
		return nil, err
	}

	w.emit(events.EventTicketCreated, ticket.ID, reply.Author, now, events.TicketCreatedPayload{
		Ticket: ticket.Clone(),
		Reply:  *reply,
	})
	return ticket, nil
}

// Edit applies a sparse change set. Field changes are logged unless WithoutLog is given.
func (s *TicketService) Edit(ctx context.Context, ticketID int64, changes TicketChanges, opts ...EditOption) (*domain.Ticket, error) {
	o := editOptions{log: true}
	for _, opt := range opts {
		opt(&o)
	}
	var ticket *domain.Ticket
	err := s.run(ctx, func(tx repository.Store, w *work) error {
		var err error
		ticket, err = s.editTx(ctx, tx, w, ticketID, changes, o.log)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// Close sets status closed and keeps the current assignment. Closing a closed ticket
// is a no-op.
func (s *TicketService) Close(ctx context.Context, ticketID int64, byStaffID *int64) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	err := s.run(ctx, func(tx repository.Store, w *work) error {
		var err error
		ticket, err = s.closeTx(ctx, tx, w, ticketID, byStaffID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (e *engine) closeTx(ctx context.Context, tx repository.Store, w *work, ticketID int64, byStaffID *int64) (*domain.Ticket, error) {
	ticket, err := e.loadTicket(ctx, tx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.TicketStatusClosed {
		return ticket, nil
	}
	closed := domain.TicketStatusClosed
	return e.editTx(ctx, tx, w, ticketID, TicketChanges{Status: &closed, ActorStaffID: byStaffID}, true)
}

func (e *engine) editTx(ctx context.Context, tx repository.Store, w *work, ticketID int64, changes TicketChanges, log bool) (*domain.Ticket, error) {
	current, err := e.loadTicket(ctx, tx, ticketID)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.TicketStatusTrash &&
		(changes.Status == nil || *changes.Status == domain.TicketStatusTrash) {
		return nil, apperrors.NewConflict(apperrors.ReasonTicketTrashed,
			"ticket is in trash; move it to another status to edit it", map[string]any{"ticket_id": ticketID})
	}
	if changes.ClientID != nil && current.ClientID != nil && *changes.ClientID != *current.ClientID {
		return nil, apperrors.NewConflict(apperrors.ReasonClientAlreadyAssigned,
			"ticket is already assigned to another client", map[string]any{"ticket_id": ticketID})
	}

	currentDept, err := e.loadDepartment(ctx, tx, current.DepartmentID)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	applyChanges(&next, changes)

	rules := []rule{
		validStatus(changes.Status),
		validPriority(changes.Priority),
		departmentInCompany(ctx, tx, changes.DepartmentID, currentDept.CompanyID),
		staffExists(ctx, tx, changes.StaffID),
		clientInCompany(ctx, tx, changes.ClientID, currentDept.CompanyID),
	}
	if changes.Summary != nil {
		rules = append(rules, requireSummary(*changes.Summary))
	}
	if changes.ServiceID != nil || changes.ClientID != nil {
		rules = append(rules, serviceOwned(ctx, tx, next.ServiceID, next.ClientID))
	}
	if changes.Email != nil && next.ClientID == nil {
		rules = append(rules, validEmail(*changes.Email))
	}
	if err := check(rules...); err != nil {
		return nil, err
	}

	dept := currentDept
	if next.DepartmentID != current.DepartmentID {
		if dept, err = e.loadDepartment(ctx, tx, next.DepartmentID); err != nil {
			return nil, err
		}
	}

	now := e.now()
	closing := next.Status == domain.TicketStatusClosed && current.Status != domain.TicketStatusClosed
	switch {
	case closing && changes.DateClosed != nil:
		closedAt := changes.DateClosed.UTC()
		next.DateClosed = &closedAt
	case closing:
		next.DateClosed = &now
	case next.Status != domain.TicketStatusClosed:
		next.DateClosed = nil
	}
	next.DateUpdated = now

	author := changes.Author
	if author.Kind == "" {
		author = domain.AuthorFromStaff(changes.ActorStaffID)
	}
	details := changes.Details
	if details != "" {
		// a bare signature is no content; the edit then only logs
		if details, err = e.stripSignature(ctx, tx, author, details); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(details) != "" || len(changes.Attachments) > 0 {
		replyType := changes.ReplyType
		if replyType == "" {
			replyType = domain.ReplyTypeReply
		}
		if _, err := e.addReplyTx(ctx, tx, w, &next, ReplyInput{
			Author:      author,
			Type:        replyType,
			Details:     details,
			Attachments: changes.Attachments,
			Silent:      changes.Silent,
		}, now); err != nil {
			return nil, err
		}
	}

	if log {
		logAuthor := domain.AuthorFromStaff(changes.ActorStaffID)
		for _, line := range e.changeLog(ctx, tx, current, &next, currentDept, dept) {
			if err := e.appendLog(ctx, tx, ticketID, logAuthor, line, now); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Tickets().Update(ctx, &next); err != nil {
		return nil, err
	}

	if err := e.fields.BindAll(ctx, tx, dept, ticketID, changes.Fields, false); err != nil {
		return nil, err
	}
	if err := e.fields.Prune(ctx, tx, dept, ticketID); err != nil {
		return nil, err
	}
	if closing {
		if err := e.fields.PruneAutoDelete(ctx, tx, dept, ticketID); err != nil {
			return nil, err
		}
	}
	return &next, nil
}

func applyChanges(t *domain.Ticket, c TicketChanges) {
	if c.DepartmentID != nil {
		t.DepartmentID = *c.DepartmentID
	}
	switch {
	case c.ClearStaff:
		t.StaffID = nil
	case c.StaffID != nil:
		t.StaffID = domain.Int64Ptr(*c.StaffID)
	}
	switch {
	case c.ClearService:
		t.ServiceID = nil
	case c.ServiceID != nil:
		t.ServiceID = domain.Int64Ptr(*c.ServiceID)
	}
	if c.ClientID != nil {
		t.ClientID = domain.Int64Ptr(*c.ClientID)
		t.Email = nil
	} else if c.Email != nil && t.ClientID == nil {
		t.Email = domain.StringPtr(strings.TrimSpace(*c.Email))
	}
	if c.Summary != nil {
		t.Summary = strings.TrimSpace(*c.Summary)
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
}

// changeLog describes loggable differences in the fixed order department, staff,
// summary, priority, status.
func (e *engine) changeLog(ctx context.Context, tx repository.Store, before, after *domain.Ticket, fromDept, toDept *domain.Department) []string {
	var lines []string
	if before.DepartmentID != after.DepartmentID {
		lines = append(lines, fmt.Sprintf("Department changed from %s to %s", fromDept.Name, toDept.Name))
	}
	if !sameID(before.StaffID, after.StaffID) {
		lines = append(lines, fmt.Sprintf("Assigned staff changed from %s to %s",
			e.staffName(ctx, tx, before.StaffID), e.staffName(ctx, tx, after.StaffID)))
	}
	if before.Summary != after.Summary {
		lines = append(lines, fmt.Sprintf("Summary changed from %q to %q", before.Summary, after.Summary))
	}
	if before.Priority != after.Priority {
		lines = append(lines, fmt.Sprintf("Priority changed from %s to %s", before.Priority, after.Priority))
	}
	if before.Status != after.Status {
		lines = append(lines, fmt.Sprintf("Status changed from %s to %s", before.Status, after.Status))
	}
	return lines
}

func (e *engine) staffName(ctx context.Context, tx repository.Store, id *int64) string {
	if id == nil {
		return "nobody"
	}
	member, err := tx.Staff().GetByID(ctx, *id)
	if err != nil {
		return fmt.Sprintf("staff #%d", *id)
	}
	return member.Name
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// EditMultiple validates every ticket against its merged change set before applying
// any edit. perTicket entries override the shared changes field by field.
func (s *TicketService) EditMultiple(ctx context.Context, ticketIDs []int64, shared TicketChanges, perTicket map[int64]TicketChanges) ([]domain.Ticket, error) {
	if len(ticketIDs) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ReasonTicketIDsRequired, "at least one ticket is required", nil)
	}
	var out []domain.Ticket
	err := s.run(ctx, func(tx repository.Store, w *work) error {
		planned := make([]TicketChanges, len(ticketIDs))
		for i, id := range ticketIDs {
			planned[i] = mergeChanges(shared, perTicket[id])
			if err := s.prevalidate(ctx, tx, id, planned[i]); err != nil {
				return err
			}
		}
		for i, id := range ticketIDs {
			ticket, err := s.editTx(ctx, tx, w, id, planned[i], true)
			if err != nil {
				return err
			}
			out = append(out, *ticket)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *TicketService) prevalidate(ctx context.Context, tx repository.Store, ticketID int64, changes TicketChanges) error {
	ticket, err := s.loadTicket(ctx, tx, ticketID)
	if err != nil {
		return err
	}
	dept, err := s.loadDepartment(ctx, tx, ticket.DepartmentID)
	if err != nil {
		return err
	}
	clientID := ticket.ClientID
	if changes.ClientID != nil {
		clientID = changes.ClientID
	}
	return check(
		serviceOwned(ctx, tx, changes.ServiceID, clientID),
		departmentInCompany(ctx, tx, changes.DepartmentID, dept.CompanyID),
	)
}

func mergeChanges(shared, own TicketChanges) TicketChanges {
	out := shared
	if own.DepartmentID != nil {
		out.DepartmentID = own.DepartmentID
	}
	if own.StaffID != nil || own.ClearStaff {
		out.StaffID, out.ClearStaff = own.StaffID, own.ClearStaff
	}
	if own.ServiceID != nil || own.ClearService {
		out.ServiceID, out.ClearService = own.ServiceID, own.ClearService
	}
	if own.ClientID != nil {
		out.ClientID = own.ClientID
	}
	if own.Email != nil {
		out.Email = own.Email
	}
	if own.Summary != nil {
		out.Summary = own.Summary
	}
	if own.Priority != nil {
		out.Priority = own.Priority
	}
	if own.Status != nil {
		out.Status = own.Status
	}
	if own.DateClosed != nil {
		out.DateClosed = own.DateClosed
	}
	if own.ActorStaffID != nil {
		out.ActorStaffID = own.ActorStaffID
	}
	if own.Details != "" {
		out.Author, out.ReplyType, out.Details, out.Attachments, out.Silent = own.Author, own.ReplyType, own.Details, own.Attachments, own.Silent
	}
	if own.Fields != nil {
		out.Fields = own.Fields
	}
	return out
}

// Reply adds a reply or note and, when the department enables it, moves the ticket
// to the status implied by who replied.
func (s *TicketService) Reply(ctx context.Context, ticketID int64, input ReplyInput) (*domain.ReplyEntry, *domain.Ticket, error) {
	var (
		reply  *domain.ReplyEntry
		ticket *domain.Ticket
	)
	err := s.run(ctx, func(tx repository.Store, w *work) error {
		current, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		now := s.now()
		if reply, err = s.addReplyTx(ctx, tx, w, current, input, now); err != nil {
			return err
		}
		current.DateUpdated = now
		if err := tx.Tickets().Update(ctx, current); err != nil {
			return err
		}
		ticket = current

		dept, err := s.loadDepartment(ctx, tx, current.DepartmentID)
		if err != nil {
			return err
		}
		target, ok := transitionFor(dept, current.Status, reply)
		if !ok {
			return nil
		}
		ticket, err = s.editTx(ctx, tx, w, ticketID, TicketChanges{
			Status:       &target,
			ActorStaffID: reply.Author.StaffID(),
		}, true)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return reply, ticket, nil
}

// transitionFor returns the status a reply moves the ticket to under automatic transition.
func transitionFor(dept *domain.Department, status domain.TicketStatus, reply *domain.ReplyEntry) (domain.TicketStatus, bool) {
	if !dept.AutomaticTransition || reply.Type != domain.ReplyTypeReply {
		return "", false
	}
	target := domain.TicketStatusOpen
	if reply.Author.StaffSide() {
		switch status {
		case domain.TicketStatusOnHold, domain.TicketStatusClosed, domain.TicketStatusTrash:
			return "", false
		}
		target = domain.TicketStatusAwaitingReply
	}
	if status == target {
		return "", false
	}
	return target, true
}

// Delete hard-deletes tickets with their replies, attachments and fields, then removes
// the attachment files.
func (s *TicketService) Delete(ctx context.Context, ticketIDs []int64) error {
	if len(ticketIDs) == 0 {
		return apperrors.NewValidationError(apperrors.ReasonTicketIDsRequired, "at least one ticket is required", nil)
	}
	_, err := s.deleteTickets(ctx, ticketIDs)
	return err
}

func (e *engine) deleteTickets(ctx context.Context, ticketIDs []int64) (int, error) {
	var paths []string
	err := e.run(ctx, func(tx repository.Store, w *work) error {
		for _, id := range ticketIDs {
			if _, err := e.loadTicket(ctx, tx, id); err != nil {
				return err
			}
			atts, err := tx.Replies().ListAttachmentsByTicket(ctx, id)
			if err != nil {
				return err
			}
			for _, att := range atts {
				paths = append(paths, att.FilePath)
			}
			if err := tx.Tickets().Delete(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.discardFiles(ctx, paths)
	return len(ticketIDs), nil
}

// Get returns the ticket with its thread and decrypted custom fields.
func (s *TicketService) Get(ctx context.Context, ticketID int64) (*TicketDetails, error) {
	ticket, err := s.loadTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, classify(err)
	}
	replies, err := s.store.Replies().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, classify(err)
	}
	dept, err := s.loadDepartment(ctx, s.store, ticket.DepartmentID)
	if err != nil {
		return nil, classify(err)
	}
	fields, err := s.fields.Values(ctx, s.store, dept, ticketID)
	if err != nil {
		return nil, classify(err)
	}
	return &TicketDetails{Ticket: *ticket, Replies: replies, Fields: fields}, nil
}

// List returns tickets matching filter, most recently updated first.
func (s *TicketService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.store.Tickets().ListWithFilter(ctx, filter)
	if err != nil {
		return nil, classify(err)
	}
	return tickets, nil
}
