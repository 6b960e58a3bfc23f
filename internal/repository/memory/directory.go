package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

// directoryRepo serves the read-only department, staff and client lookups.
type directoryRepo struct{ sh *shared }

func (r *directoryRepo) GetByID(ctx context.Context, id int64) (*domain.Department, error) {
	st, err := r.sh.lock("departments.get")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	dept, ok := st.departments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &dept, nil
}

func (r *directoryRepo) ListAutomated(ctx context.Context) ([]domain.Department, error) {
	st, err := r.sh.lock("departments.automated")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	var out []domain.Department
	for _, dept := range st.departments {
		if dept.HasAutomation() {
			out = append(out, dept)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *directoryRepo) GetCannedResponse(ctx context.Context, id int64) (*domain.CannedResponse, error) {
	st, err := r.sh.lock("departments.response")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	resp, ok := st.responses[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &resp, nil
}

func (r *directoryRepo) GetCompany(ctx context.Context, id int64) (*domain.Company, error) {
	st, err := r.sh.lock("departments.company")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	company, ok := st.companies[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &company, nil
}

func (r *directoryRepo) GetStaff(ctx context.Context, id int64) (*domain.StaffMember, error) {
	st, err := r.sh.lock("staff.get")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	member, ok := st.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &member, nil
}

func (r *directoryRepo) GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error) {
	st, err := r.sh.lock("staff.email")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	for _, member := range st.staff {
		if strings.EqualFold(member.Email, email) {
			out := member
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *directoryRepo) ListByDepartment(ctx context.Context, departmentID int64) ([]domain.DepartmentStaff, error) {
	st, err := r.sh.lock("staff.department")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	out := make([]domain.DepartmentStaff, len(st.deptStaff[departmentID]))
	copy(out, st.deptStaff[departmentID])
	return out, nil
}

func (r *directoryRepo) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	st, err := r.sh.lock("clients.get")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	client, ok := st.clients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &client, nil
}

func (r *directoryRepo) GetContact(ctx context.Context, id int64) (*domain.Contact, error) {
	st, err := r.sh.lock("clients.contact")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	contact, ok := st.contacts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &contact, nil
}

func (r *directoryRepo) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	st, err := r.sh.lock("clients.service")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	svc, ok := st.services[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &svc, nil
}

// staffRepo adapts directoryRepo to repository.StaffRepository, whose GetByID collides
// with the department lookup.
type staffRepo struct{ *directoryRepo }

func (r staffRepo) GetByID(ctx context.Context, id int64) (*domain.StaffMember, error) {
	return r.directoryRepo.GetStaff(ctx, id)
}

// PutCompany stores or replaces a company.
func (s *Store) PutCompany(company domain.Company) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.st.companies[company.ID] = company
}

// PutDepartment stores or replaces a department together with its field schema.
func (s *Store) PutDepartment(dept domain.Department) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.st.departments[dept.ID] = dept
}

// PutCannedResponse stores or replaces a canned response.
func (s *Store) PutCannedResponse(resp domain.CannedResponse) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.st.responses[resp.ID] = resp
}

// PutStaff stores a staff member and attaches them to the given department.
func (s *Store) PutStaff(departmentID int64, member domain.DepartmentStaff) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.st.staff[member.Staff.ID] = member.Staff
	if departmentID != 0 {
		s.sh.st.deptStaff[departmentID] = append(s.sh.st.deptStaff[departmentID], member)
	}
}

// PutClient stores or replaces a client.
func (s *Store) PutClient(client domain.Client) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.st.clients[client.ID] = client
}

// PutContact stores or replaces a contact.
func (s *Store) PutContact(contact domain.Contact) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.st.contacts[contact.ID] = contact
}

// PutService stores or replaces a service.
func (s *Store) PutService(svc domain.Service) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.st.services[svc.ID] = svc
}
