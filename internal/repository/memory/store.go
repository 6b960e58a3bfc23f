// Package memory provides an in-memory repository.Store with snapshot rollback.
package memory

import (
	"context"
	"sync"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

type state struct {
	tickets     map[int64]domain.Ticket
	replies     map[int64]domain.ReplyEntry
	attachments map[int64]domain.Attachment
	fields      map[int64]map[int64]domain.CustomFieldValue
	reminders   map[int64]domain.Reminder

	companies   map[int64]domain.Company
	departments map[int64]domain.Department
	responses   map[int64]domain.CannedResponse
	staff       map[int64]domain.StaffMember
	deptStaff   map[int64][]domain.DepartmentStaff
	clients     map[int64]domain.Client
	contacts    map[int64]domain.Contact
	services    map[int64]domain.Service

	nextID int64
}

func newState() *state {
	return &state{
		tickets:     map[int64]domain.Ticket{},
		replies:     map[int64]domain.ReplyEntry{},
		attachments: map[int64]domain.Attachment{},
		fields:      map[int64]map[int64]domain.CustomFieldValue{},
		reminders:   map[int64]domain.Reminder{},
		companies:   map[int64]domain.Company{},
		departments: map[int64]domain.Department{},
		responses:   map[int64]domain.CannedResponse{},
		staff:       map[int64]domain.StaffMember{},
		deptStaff:   map[int64][]domain.DepartmentStaff{},
		clients:     map[int64]domain.Client{},
		contacts:    map[int64]domain.Contact{},
		services:    map[int64]domain.Service{},
	}
}

// clone copies the mutable engine tables. Directory tables are read-only to the engine
// and are shared.
func (s *state) clone() *state {
	out := *s
	out.tickets = make(map[int64]domain.Ticket, len(s.tickets))
	for k, v := range s.tickets {
		out.tickets[k] = v.Clone()
	}
	out.replies = make(map[int64]domain.ReplyEntry, len(s.replies))
	for k, v := range s.replies {
		out.replies[k] = v
	}
	out.attachments = make(map[int64]domain.Attachment, len(s.attachments))
	for k, v := range s.attachments {
		out.attachments[k] = v
	}
	out.fields = make(map[int64]map[int64]domain.CustomFieldValue, len(s.fields))
	for k, v := range s.fields {
		inner := make(map[int64]domain.CustomFieldValue, len(v))
		for fk, fv := range v {
			inner[fk] = fv
		}
		out.fields[k] = inner
	}
	out.reminders = make(map[int64]domain.Reminder, len(s.reminders))
	for k, v := range s.reminders {
		out.reminders[k] = v
	}
	return &out
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type shared struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	st       *state
	failures map[string]error
}

// Store is an in-memory repository.Store.
type Store struct {
	sh   *shared
	inTx bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sh: &shared{st: newState(), failures: map[string]error{}}}
}

// FailOn makes the named operation (for example "replies.create") return err until
// cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	if err == nil {
		delete(s.sh.failures, op)
		return
	}
	s.sh.failures[op] = err
}

func (s *Store) Tickets() repository.TicketRepository         { return &ticketRepo{sh: s.sh} }
func (s *Store) Replies() repository.ReplyRepository          { return &replyRepo{sh: s.sh} }
func (s *Store) Fields() repository.CustomFieldRepository     { return &fieldRepo{sh: s.sh} }
func (s *Store) Reminders() repository.ReminderRepository     { return &reminderRepo{sh: s.sh} }
func (s *Store) Departments() repository.DepartmentRepository { return &directoryRepo{sh: s.sh} }
func (s *Store) Staff() repository.StaffRepository            { return staffRepo{&directoryRepo{sh: s.sh}} }
func (s *Store) Clients() repository.ClientRepository         { return &directoryRepo{sh: s.sh} }

// WithinTx runs fn and restores the previous state if it returns an error.
// Transactions are serialized; nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.sh.txMu.Lock()
	defer s.sh.txMu.Unlock()

	s.sh.mu.Lock()
	snapshot := s.sh.st.clone()
	s.sh.mu.Unlock()

	if err := fn(&Store{sh: s.sh, inTx: true}); err != nil {
		s.sh.mu.Lock()
		s.sh.st = snapshot
		s.sh.mu.Unlock()
		return err
	}
	return nil
}

func (sh *shared) lock(op string) (*state, error) {
	sh.mu.Lock()
	if err := sh.failures[op]; err != nil {
		sh.mu.Unlock()
		return nil, err
	}
	return sh.st, nil
}
