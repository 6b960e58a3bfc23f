package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

type departmentRepository struct {
	q Querier
}

const departmentColumns = `id, company_id, name, email, close_ticket_interval, delete_ticket_interval,
               reminder_ticket_interval, reminder_ticket_status, reminder_ticket_priority, response_id,
               automatic_transition`

func (r *departmentRepository) GetByID(ctx context.Context, id int64) (*domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE id=$1`
	rows, err := r.q.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	depts, err := scanDepartments(rows)
	if err != nil {
		return nil, err
	}
	if len(depts) == 0 {
		return nil, ErrNotFound
	}
	dept := depts[0]
	if dept.Fields, err = r.listFields(ctx, dept.ID); err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *departmentRepository) ListAutomated(ctx context.Context) ([]domain.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments
        WHERE close_ticket_interval IS NOT NULL
           OR delete_ticket_interval IS NOT NULL
           OR reminder_ticket_interval IS NOT NULL
        ORDER BY id`
	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return scanDepartments(rows)
}

func (r *departmentRepository) GetCannedResponse(ctx context.Context, id int64) (*domain.CannedResponse, error) {
	var resp domain.CannedResponse
	err := r.q.QueryRow(ctx, `SELECT id, details FROM canned_responses WHERE id=$1`, id).Scan(&resp.ID, &resp.Details)
	if err != nil {
		return nil, notFound(err)
	}
	return &resp, nil
}

func (r *departmentRepository) GetCompany(ctx context.Context, id int64) (*domain.Company, error) {
	var company domain.Company
	err := r.q.QueryRow(ctx, `SELECT id, name, timezone, locale FROM companies WHERE id=$1`, id).
		Scan(&company.ID, &company.Name, &company.Timezone, &company.Locale)
	if err != nil {
		return nil, notFound(err)
	}
	return &company, nil
}

func (r *departmentRepository) listFields(ctx context.Context, departmentID int64) ([]domain.CustomFieldSchema, error) {
	const query = `
        SELECT id, department_id, label, type, required, encrypted, auto_delete, options
        FROM department_fields WHERE department_id=$1 ORDER BY id`
	rows, err := r.q.Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CustomFieldSchema
	for rows.Next() {
		var field domain.CustomFieldSchema
		if err := rows.Scan(
			&field.ID,
			&field.DepartmentID,
			&field.Label,
			&field.Type,
			&field.Required,
			&field.Encrypted,
			&field.AutoDelete,
			&field.Options,
		); err != nil {
			return nil, err
		}
		result = append(result, field)
	}
	return result, rows.Err()
}

func scanDepartments(rows pgx.Rows) ([]domain.Department, error) {
	defer rows.Close()

	var result []domain.Department
	for rows.Next() {
		var (
			dept       domain.Department
			statuses   []string
			priorities []string
		)
		if err := rows.Scan(
			&dept.ID,
			&dept.CompanyID,
			&dept.Name,
			&dept.Email,
			&dept.CloseTicketInterval,
			&dept.DeleteTicketInterval,
			&dept.ReminderTicketInterval,
			&statuses,
			&priorities,
			&dept.ResponseID,
			&dept.AutomaticTransition,
		); err != nil {
			return nil, err
		}
		for _, s := range statuses {
			dept.ReminderTicketStatus = append(dept.ReminderTicketStatus, domain.TicketStatus(s))
		}
		for _, p := range priorities {
			dept.ReminderTicketPriority = append(dept.ReminderTicketPriority, domain.TicketPriority(p))
		}
		result = append(result, dept)
	}
	return result, rows.Err()
}
