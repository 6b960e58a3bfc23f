package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

// StaffRecipient is a staff member chosen for a notification and the channel to use.
type StaffRecipient struct {
	Staff   domain.StaffMember
	Channel domain.NotifyChannel
}

// AvailabilityMatcher picks the staff of a department who should hear about a ticket
// event at a given moment.
type AvailabilityMatcher struct {
	staff       repository.StaffRepository
	departments repository.DepartmentRepository
	location    *time.Location
	zones       sync.Map // timezone name -> *time.Location
}

// NewAvailabilityMatcher evaluates schedules in the timezone of the department's
// company. loc is used when the company has none or it cannot be loaded; nil means
// UTC. departments may be nil, in which case loc always applies.
func NewAvailabilityMatcher(staff repository.StaffRepository, departments repository.DepartmentRepository, loc *time.Location) *AvailabilityMatcher {
	if loc == nil {
		loc = time.UTC
	}
	return &AvailabilityMatcher{staff: staff, departments: departments, location: loc}
}

// Recipients returns active staff of the department available at `at` whose
// preference for priority is not off.
func (m *AvailabilityMatcher) Recipients(ctx context.Context, departmentID int64, priority domain.TicketPriority, at time.Time) ([]StaffRecipient, error) {
	members, err := m.staff.ListByDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	loc, err := m.locationFor(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	local := at.In(loc)
	var out []StaffRecipient
	for _, member := range members {
		if !member.Staff.Active || !Available(member.Schedules, departmentID, local) {
			continue
		}
		channel := member.Preferences.ChannelFor(priority)
		if channel == domain.NotifyOff {
			continue
		}
		out = append(out, StaffRecipient{Staff: member.Staff, Channel: channel})
	}
	return out, nil
}

func (m *AvailabilityMatcher) locationFor(ctx context.Context, departmentID int64) (*time.Location, error) {
	if m.departments == nil {
		return m.location, nil
	}
	dept, err := m.departments.GetByID(ctx, departmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return m.location, nil
	}
	if err != nil {
		return nil, err
	}
	company, err := m.departments.GetCompany(ctx, dept.CompanyID)
	if errors.Is(err, repository.ErrNotFound) {
		return m.location, nil
	}
	if err != nil {
		return nil, err
	}
	if company.Timezone == "" {
		return m.location, nil
	}
	if cached, ok := m.zones.Load(company.Timezone); ok {
		return cached.(*time.Location), nil
	}
	loc, err := time.LoadLocation(company.Timezone)
	if err != nil {
		// unknown zone names fall back like an unset one
		loc = m.location
	}
	m.zones.Store(company.Timezone, loc)
	return loc, nil
}

// Available reports whether schedules allow contact at t. No schedule for the
// department means always available; otherwise an entry for t's weekday must cover
// t's time of day.
func Available(schedules []domain.StaffSchedule, departmentID int64, t time.Time) bool {
	tod := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second
	restricted := false
	for _, s := range schedules {
		if s.DepartmentID != departmentID {
			continue
		}
		restricted = true
		if s.Day == t.Weekday() && s.Covers(tod) {
			return true
		}
	}
	return !restricted
}
