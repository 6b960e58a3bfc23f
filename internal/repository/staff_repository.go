package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

type staffRepository struct {
	q Querier
}

const staffColumns = `s.id, s.company_id, s.name, s.email, s.mobile_email, s.password_hash, s.signature, s.active`

func (r *staffRepository) GetByID(ctx context.Context, id int64) (*domain.StaffMember, error) {
	return r.getOne(ctx, `SELECT `+staffColumns+` FROM staff s WHERE s.id=$1`, id)
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	return r.getOne(ctx, `SELECT `+staffColumns+` FROM staff s WHERE LOWER(s.email)=LOWER($1)`, email)
}

func (r *staffRepository) getOne(ctx context.Context, query string, arg any) (*domain.StaffMember, error) {
	var staff domain.StaffMember
	if err := r.q.QueryRow(ctx, query, arg).Scan(
		&staff.ID,
		&staff.CompanyID,
		&staff.Name,
		&staff.Email,
		&staff.MobileEmail,
		&staff.PasswordHash,
		&staff.Signature,
		&staff.Active,
	); err != nil {
		return nil, notFound(err)
	}
	return &staff, nil
}

func (r *staffRepository) ListByDepartment(ctx context.Context, departmentID int64) ([]domain.DepartmentStaff, error) {
	query := `SELECT ` + staffColumns + `, sd.notification_preferences
        FROM staff s
        JOIN staff_departments sd ON sd.staff_id = s.id
        WHERE sd.department_id=$1 AND s.active = TRUE
        ORDER BY s.id`
	rows, err := r.q.Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DepartmentStaff
	index := map[int64]int{}
	for rows.Next() {
		var (
			member domain.DepartmentStaff
			prefs  []byte
		)
		if err := rows.Scan(
			&member.Staff.ID,
			&member.Staff.CompanyID,
			&member.Staff.Name,
			&member.Staff.Email,
			&member.Staff.MobileEmail,
			&member.Staff.PasswordHash,
			&member.Staff.Signature,
			&member.Staff.Active,
			&prefs,
		); err != nil {
			return nil, err
		}
		member.Preferences = domain.NotificationPreferences{}
		if len(prefs) > 0 {
			if err := json.Unmarshal(prefs, &member.Preferences); err != nil {
				return nil, fmt.Errorf("decode notification preferences for staff %d: %w", member.Staff.ID, err)
			}
		}
		index[member.Staff.ID] = len(result)
		result = append(result, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	schedules, err := r.listSchedules(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	for _, sched := range schedules {
		if i, ok := index[sched.StaffID]; ok {
			result[i].Schedules = append(result[i].Schedules, sched)
		}
	}
	return result, nil
}

func (r *staffRepository) listSchedules(ctx context.Context, departmentID int64) ([]domain.StaffSchedule, error) {
	const query = `
        SELECT staff_id, department_id, day, start_time, end_time
        FROM staff_schedules WHERE department_id=$1 ORDER BY staff_id, day, start_time`
	rows, err := r.q.Query(ctx, query, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StaffSchedule
	for rows.Next() {
		var (
			sched      domain.StaffSchedule
			day        int16
			start, end pgtype.Time
		)
		if err := rows.Scan(&sched.StaffID, &sched.DepartmentID, &day, &start, &end); err != nil {
			return nil, err
		}
		sched.Day = time.Weekday(day)
		sched.Start = time.Duration(start.Microseconds) * time.Microsecond
		sched.End = time.Duration(end.Microseconds) * time.Microsecond
		result = append(result, sched)
	}
	return result, rows.Err()
}
