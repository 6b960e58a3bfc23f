package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

var validate = validator.New()

// rule is one step of an operation's validation pipeline.
type rule func() error

// check runs rules in order and stops at the first failure.
func check(rules ...rule) error {
	for _, r := range rules {
		if err := r(); err != nil {
			return err
		}
	}
	return nil
}

func requireSummary(summary string) rule {
	return func() error {
		if strings.TrimSpace(summary) == "" {
			return apperrors.NewValidationError(apperrors.ReasonSummaryRequired, "summary is required", nil)
		}
		return nil
	}
}

func validEmail(email string) rule {
	return func() error {
		email = strings.TrimSpace(email)
		if email == "" {
			return apperrors.NewValidationError(apperrors.ReasonEmailRequired, "email is required", nil)
		}
		if err := validate.Var(email, "email"); err != nil {
			return apperrors.NewValidationError(apperrors.ReasonEmailInvalid, "email is not a valid address",
				map[string]any{"email": email})
		}
		return nil
	}
}

func validStatus(status *domain.TicketStatus) rule {
	return func() error {
		if status != nil && !status.Valid() {
			return apperrors.NewValidationError(apperrors.ReasonInvalidStatus, "unknown ticket status",
				map[string]any{"status": *status})
		}
		return nil
	}
}

func validPriority(priority *domain.TicketPriority) rule {
	return func() error {
		if priority != nil && !priority.Valid() {
			return apperrors.NewValidationError(apperrors.ReasonInvalidPriority, "unknown ticket priority",
				map[string]any{"priority": *priority})
		}
		return nil
	}
}

func staffExists(ctx context.Context, tx repository.Store, staffID *int64) rule {
	return func() error {
		if staffID == nil {
			return nil
		}
		_, err := tx.Staff().GetByID(ctx, *staffID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError(apperrors.ReasonStaffNotFound, "staff member does not exist",
				map[string]any{"staff_id": *staffID})
		}
		return err
	}
}

// clientInCompany checks that the client exists and belongs to companyID.
func clientInCompany(ctx context.Context, tx repository.Store, clientID *int64, companyID int64) rule {
	return func() error {
		if clientID == nil {
			return nil
		}
		client, err := tx.Clients().GetClient(ctx, *clientID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError(apperrors.ReasonClientNotFound, "client does not exist",
				map[string]any{"client_id": *clientID})
		}
		if err != nil {
			return err
		}
		if client.CompanyID != companyID {
			return apperrors.NewValidationError(apperrors.ReasonClientCompany, "client belongs to another company",
				map[string]any{"client_id": *clientID})
		}
		return nil
	}
}

// serviceOwned checks that serviceID belongs to clientID.
func serviceOwned(ctx context.Context, tx repository.Store, serviceID, clientID *int64) rule {
	return func() error {
		if serviceID == nil {
			return nil
		}
		svc, err := tx.Clients().GetService(ctx, *serviceID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err != nil || clientID == nil || svc.ClientID != *clientID {
			return apperrors.NewValidationError(apperrors.ReasonServiceNotOwned, "service does not belong to the ticket's client",
				map[string]any{"service_id": *serviceID})
		}
		return nil
	}
}

// departmentInCompany checks that departmentID exists and belongs to companyID.
func departmentInCompany(ctx context.Context, tx repository.Store, departmentID *int64, companyID int64) rule {
	return func() error {
		if departmentID == nil {
			return nil
		}
		dept, err := tx.Departments().GetByID(ctx, *departmentID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewValidationError(apperrors.ReasonDepartmentNotFound, "department does not exist",
				map[string]any{"department_id": *departmentID})
		}
		if err != nil {
			return err
		}
		if dept.CompanyID != companyID {
			return apperrors.NewValidationError(apperrors.ReasonDepartmentCompany, "department belongs to another company",
				map[string]any{"department_id": *departmentID})
		}
		return nil
	}
}
