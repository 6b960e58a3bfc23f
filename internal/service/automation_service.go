package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

// Automation job names used in logs and metrics.
const (
	JobAutoClose  = "auto_close"
	JobAutoDelete = "auto_delete"
	JobReminders  = "reminders"
)

// autoCloseExcluded are statuses auto-close never touches.
var autoCloseExcluded = []domain.TicketStatus{
	domain.TicketStatusInProgress,
	domain.TicketStatusOnHold,
	domain.TicketStatusClosed,
	domain.TicketStatusTrash,
}

// AutomationResult counts what one department pass did.
type AutomationResult struct {
	Closed    int
	Deleted   int
	Reminders int
}

// AutomationService runs the interval-driven department jobs.
type AutomationService struct {
	*engine
}

// NewAutomationService constructs the service.
func NewAutomationService(deps Dependencies) *AutomationService {
	return &AutomationService{engine: newEngine(deps)}
}

// RunTick runs auto-close, auto-delete and reminders for one department, in that order.
func (s *AutomationService) RunTick(ctx context.Context, departmentID int64) (AutomationResult, error) {
	result, err := s.RunDepartmentAutomation(ctx, departmentID)
	var remindErr error
	result.Reminders, remindErr = s.RunReminders(ctx, departmentID)
	return result, errors.Join(err, remindErr)
}

// RunDepartmentAutomation runs the auto-close then the auto-delete pass.
func (s *AutomationService) RunDepartmentAutomation(ctx context.Context, departmentID int64) (AutomationResult, error) {
	var result AutomationResult
	dept, err := s.loadDepartment(ctx, s.store, departmentID)
	if err != nil {
		return result, classify(err)
	}

	var closeErr, deleteErr error
	if dept.CloseTicketInterval != nil {
		result.Closed, closeErr = s.autoClose(ctx, dept)
		s.metrics.RecordAutomation(JobAutoClose, result.Closed, closeErr)
	}
	if dept.DeleteTicketInterval != nil {
		result.Deleted, deleteErr = s.autoDelete(ctx, dept)
		s.metrics.RecordAutomation(JobAutoDelete, result.Deleted, deleteErr)
	}
	return result, errors.Join(closeErr, deleteErr)
}

func (s *AutomationService) autoClose(ctx context.Context, dept *domain.Department) (int, error) {
	cutoff := s.now().Add(-domain.Minutes(dept.CloseTicketInterval))
	candidates, err := s.store.Tickets().ListAutoCloseCandidates(ctx, dept.ID, autoCloseExcluded, cutoff)
	if err != nil {
		return 0, classify(err)
	}

	var canned *domain.CannedResponse
	if dept.ResponseID != nil {
		canned, err = s.store.Departments().GetCannedResponse(ctx, *dept.ResponseID)
		if err != nil {
			s.logger.Warn("auto-close canned response unavailable",
				zap.Int64("department_id", dept.ID), zap.Int64("response_id", *dept.ResponseID), zap.Error(err))
			canned = nil
		}
	}

	closed := 0
	var errs []error
	for i := range candidates {
		ticket := &candidates[i]
		err := s.run(ctx, func(tx repository.Store, w *work) error {
			now := s.now()
			if canned != nil && canned.Details != "" {
				if _, err := s.appendSystemReply(ctx, tx, w, ticket, canned.Details, now); err != nil {
					return err
				}
			}
			_, err := s.closeTx(ctx, tx, w, ticket.ID, nil)
			return err
		})
		if err != nil {
			s.logger.Error("auto-close failed", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		closed++
	}
	if closed > 0 {
		s.logger.Info("tickets auto-closed", zap.Int64("department_id", dept.ID), zap.Int("count", closed))
	}
	return closed, errors.Join(errs...)
}

func (s *AutomationService) autoDelete(ctx context.Context, dept *domain.Department) (int, error) {
	cutoff := s.now().Add(-domain.Minutes(dept.DeleteTicketInterval))
	trashed, err := s.store.Tickets().ListTrashedBefore(ctx, dept.ID, cutoff)
	if err != nil {
		return 0, classify(err)
	}
	if len(trashed) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(trashed))
	for i, t := range trashed {
		ids[i] = t.ID
	}
	deleted, err := s.deleteTickets(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.logger.Info("trashed tickets deleted", zap.Int64("department_id", dept.ID), zap.Int("count", deleted))
	return deleted, nil
}

// RunReminders records a reminder for every ticket whose last reply is older than the
// department's reminder interval and that has not been reminded since. Recipients
// are resolved by the notification handlers after commit.
func (s *AutomationService) RunReminders(ctx context.Context, departmentID int64) (int, error) {
	dept, err := s.loadDepartment(ctx, s.store, departmentID)
	if err != nil {
		return 0, classify(err)
	}
	if dept.ReminderTicketInterval == nil {
		return 0, nil
	}
	sent, err := s.reminders(ctx, dept)
	s.metrics.RecordAutomation(JobReminders, sent, err)
	return sent, err
}

func (s *AutomationService) reminders(ctx context.Context, dept *domain.Department) (int, error) {
	candidates, err := s.store.Tickets().ListReminderCandidates(ctx, repository.ReminderFilter{
		DepartmentID: dept.ID,
		Cutoff:       s.now().Add(-domain.Minutes(dept.ReminderTicketInterval)),
		Statuses:     dept.ReminderTicketStatus,
		Priorities:   dept.ReminderTicketPriority,
	})
	if err != nil {
		return 0, classify(err)
	}

	sent := 0
	var errs []error
	for _, candidate := range candidates {
		err := s.run(ctx, func(tx repository.Store, w *work) error {
			now := s.now()
			if err := tx.Reminders().Create(ctx, &domain.Reminder{
				TicketID:     candidate.Ticket.ID,
				StatusAtSend: candidate.Ticket.Status,
				DateSent:     now,
			}); err != nil {
				return err
			}
			w.emit(events.EventTicketReminder, candidate.Ticket.ID, domain.SystemAuthor(), now, events.ReminderPayload{
				Ticket:    candidate.Ticket,
				LastReply: candidate.LastReply,
			})
			return nil
		})
		if err != nil {
			s.logger.Error("reminder failed", zap.Int64("ticket_id", candidate.Ticket.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}

// AutomatedDepartments lists departments with at least one interval configured.
func (s *AutomationService) AutomatedDepartments(ctx context.Context) ([]domain.Department, error) {
	depts, err := s.store.Departments().ListAutomated(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return depts, nil
}
