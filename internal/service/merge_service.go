package service

import (
	"context"
	"fmt"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// MergeService moves thread entries between tickets.
type MergeService struct {
	*engine
}

// NewMergeService constructs the service.
func NewMergeService(deps Dependencies) *MergeService {
	return &MergeService{engine: newEngine(deps)}
}

// Merge re-parents every non-log entry of each source onto target, announces the
// merge on each source and closes it. The target's status and assignment are kept.
func (s *MergeService) Merge(ctx context.Context, targetID int64, sourceIDs []int64, byStaffID *int64) (*domain.Ticket, error) {
	if len(sourceIDs) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ReasonTicketIDsRequired, "at least one source ticket is required", nil)
	}
	var target *domain.Ticket
	err := s.run(ctx, func(tx repository.Store, w *work) error {
		var err error
		target, err = s.loadTicket(ctx, tx, targetID)
		if err != nil {
			return err
		}
		switch target.Status {
		case domain.TicketStatusClosed:
			return apperrors.NewConflict(apperrors.ReasonTicketClosed, "cannot merge into a closed ticket",
				map[string]any{"ticket_id": targetID})
		case domain.TicketStatusTrash:
			return apperrors.NewConflict(apperrors.ReasonTicketTrashed, "cannot merge into a trashed ticket",
				map[string]any{"ticket_id": targetID})
		}
		targetDept, err := s.loadDepartment(ctx, tx, target.DepartmentID)
		if err != nil {
			return err
		}

		sources := make([]domain.Ticket, 0, len(sourceIDs))
		seen := make(map[int64]bool, len(sourceIDs))
		for _, id := range sourceIDs {
			if id == targetID {
				return apperrors.NewValidationError(apperrors.ReasonMergeSelf, "a ticket cannot be merged into itself",
					map[string]any{"ticket_id": id})
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			source, err := s.checkSource(ctx, tx, target, targetDept, id)
			if err != nil {
				return err
			}
			sources = append(sources, *source)
		}

		now := s.now()
		notice := fmt.Sprintf("This ticket has been merged into ticket #%s.", target.Code)
		for i := range sources {
			source := &sources[i]
			if _, err := tx.Replies().ReparentAll(ctx, source.ID, target.ID, []domain.ReplyType{domain.ReplyTypeLog}); err != nil {
				return err
			}
			if _, err := s.appendSystemReply(ctx, tx, w, source, notice, now); err != nil {
				return err
			}
			if _, err := s.closeTx(ctx, tx, w, source.ID, byStaffID); err != nil {
				return err
			}
		}

		target.DateUpdated = now
		if err := tx.Tickets().Update(ctx, target); err != nil {
			return err
		}
		w.emit(events.EventTicketMerged, target.ID, domain.AuthorFromStaff(byStaffID), now, events.TicketMergedPayload{
			Target:  target.Clone(),
			Sources: sources,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

func (s *MergeService) checkSource(ctx context.Context, tx repository.Store, target *domain.Ticket, targetDept *domain.Department, id int64) (*domain.Ticket, error) {
	source, err := s.loadTicket(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if source.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewConflict(apperrors.ReasonMergeSourceClosed, "closed tickets cannot be merged",
			map[string]any{"ticket_id": id})
	}
	dept, err := s.loadDepartment(ctx, tx, source.DepartmentID)
	if err != nil {
		return nil, err
	}
	if dept.CompanyID != targetDept.CompanyID || !target.SameRequester(*source) {
		return nil, apperrors.NewValidationError(apperrors.ReasonMergeSourceMismatch,
			"source ticket belongs to another company or requester", map[string]any{"ticket_id": id})
	}
	return source, nil
}

// Split moves the named reply and note entries onto a new ticket that copies the
// origin's top-level fields and custom field values.
func (s *MergeService) Split(ctx context.Context, ticketID int64, replyIDs []int64) (*domain.Ticket, error) {
	if len(replyIDs) == 0 {
		return nil, apperrors.NewValidationError(apperrors.ReasonSplitRequiresReply, "at least one reply must be moved", nil)
	}
	var created *domain.Ticket
	err := s.run(ctx, func(tx repository.Store, w *work) error {
		origin, err := s.loadTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		thread, err := tx.Replies().ListByTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := checkSplit(thread, replyIDs); err != nil {
			return err
		}

		code, err := s.codes.Next(ctx, tx.Tickets().CodeExists)
		if err != nil {
			return err
		}
		now := s.now()
		created = &domain.Ticket{
			Code:         code,
			DepartmentID: origin.DepartmentID,
			StaffID:      origin.StaffID,
			ServiceID:    origin.ServiceID,
			ClientID:     origin.ClientID,
			Email:        origin.Email,
			Summary:      origin.Summary,
			Priority:     origin.Priority,
			Status:       origin.Status,
			DateAdded:    now,
			DateUpdated:  now,
		}
		if created.Status == domain.TicketStatusClosed || created.Status == domain.TicketStatusTrash {
			created.Status = domain.TicketStatusOpen
		}
		if err := tx.Tickets().Create(ctx, created); err != nil {
			return err
		}

		values, err := tx.Fields().ListByTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		for _, v := range values {
			v.TicketID = created.ID
			if err := tx.Fields().Upsert(ctx, v); err != nil {
				return err
			}
		}

		if err := tx.Replies().Reparent(ctx, replyIDs, created.ID); err != nil {
			return err
		}
		origin.DateUpdated = now
		return tx.Tickets().Update(ctx, origin)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// checkSplit requires every id to be a reply or note of the thread, at least one moved
// entry to be a reply, and the origin to keep at least one reply or note.
func checkSplit(thread []domain.ReplyEntry, replyIDs []int64) error {
	byID := make(map[int64]domain.ReplyEntry, len(thread))
	for _, r := range thread {
		byID[r.ID] = r
	}
	moving := make(map[int64]bool, len(replyIDs))
	movesReply := false
	for _, id := range replyIDs {
		entry, ok := byID[id]
		if !ok || (entry.Type != domain.ReplyTypeReply && entry.Type != domain.ReplyTypeNote) {
			return apperrors.NewValidationError(apperrors.ReasonSplitReplyInvalid,
				"only replies and notes of this ticket can be split off", map[string]any{"reply_id": id})
		}
		moving[id] = true
		if entry.Type == domain.ReplyTypeReply {
			movesReply = true
		}
	}
	if !movesReply {
		return apperrors.NewValidationError(apperrors.ReasonSplitRequiresReply,
			"a split must move at least one reply", nil)
	}
	for _, r := range thread {
		if !moving[r.ID] && r.Type != domain.ReplyTypeLog {
			return nil
		}
	}
	return apperrors.NewValidationError(apperrors.ReasonSplitEmptiesOrigin,
		"a split must leave at least one reply or note on the original ticket", nil)
}
