package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the unit-of-work boundary. Repositories obtained from a Store passed to a
// WithinTx callback share that transaction.
type Store interface {
	Tickets() TicketRepository
	Replies() ReplyRepository
	Fields() CustomFieldRepository
	Reminders() ReminderRepository
	Departments() DepartmentRepository
	Staff() StaffRepository
	Clients() ClientRepository
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// TicketFilter captures listing parameters.
type TicketFilter struct {
	DepartmentID *int64
	StaffID      *int64
	ClientID     *int64
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Limit        int
	Offset       int
}

// ReminderFilter selects tickets due for a reminder.
type ReminderFilter struct {
	DepartmentID int64
	Cutoff       time.Time
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
}

// ReminderCandidate pairs a ticket with its most recent reply-type entry.
type ReminderCandidate struct {
	Ticket    domain.Ticket
	LastReply domain.ReplyEntry
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, id int64) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ListAutoCloseCandidates returns tickets of the department whose status is not
	// excluded and whose newest reply-type entry is staff-side and dated at or before cutoff.
	ListAutoCloseCandidates(ctx context.Context, departmentID int64, excluded []domain.TicketStatus, cutoff time.Time) ([]domain.Ticket, error)
	// ListTrashedBefore returns trashed tickets of the department last updated at or before cutoff.
	ListTrashedBefore(ctx context.Context, departmentID int64, cutoff time.Time) ([]domain.Ticket, error)
	// ListReminderCandidates returns tickets whose newest reply-type entry is at or before
	// the cutoff and that have no reminder sent at or after that entry.
	ListReminderCandidates(ctx context.Context, filter ReminderFilter) ([]ReminderCandidate, error)
}

// ReplyRepository manages ticket thread entries and their attachments.
type ReplyRepository interface {
	Create(ctx context.Context, reply *domain.ReplyEntry) error
	AddAttachment(ctx context.Context, attachment *domain.Attachment) error
	// ListByTicket returns the thread newest first: date_added DESC, id DESC.
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.ReplyEntry, error)
	ListAttachmentsByTicket(ctx context.Context, ticketID int64) ([]domain.Attachment, error)
	Reparent(ctx context.Context, replyIDs []int64, ticketID int64) error
	// ReparentAll moves every entry of fromTicketID whose type is not excluded.
	ReparentAll(ctx context.Context, fromTicketID, toTicketID int64, excluded []domain.ReplyType) ([]int64, error)
}

// CustomFieldRepository manages ticket custom field values.
type CustomFieldRepository interface {
	Upsert(ctx context.Context, value domain.CustomFieldValue) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.CustomFieldValue, error)
	Delete(ctx context.Context, ticketID int64, fieldIDs []int64) error
}

// ReminderRepository appends reminder records.
type ReminderRepository interface {
	Create(ctx context.Context, reminder *domain.Reminder) error
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.Reminder, error)
}

// DepartmentRepository is a read-only view of department policy.
type DepartmentRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Department, error)
	ListAutomated(ctx context.Context) ([]domain.Department, error)
	GetCannedResponse(ctx context.Context, id int64) (*domain.CannedResponse, error)
	GetCompany(ctx context.Context, id int64) (*domain.Company, error)
}

// StaffRepository is a read-only view of staff members.
type StaffRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.StaffMember, error)
	GetByEmail(ctx context.Context, email string) (*domain.StaffMember, error)
	ListByDepartment(ctx context.Context, departmentID int64) ([]domain.DepartmentStaff, error)
}

// ClientRepository is a read-only view of clients, contacts and services.
type ClientRepository interface {
	GetClient(ctx context.Context, id int64) (*domain.Client, error)
	GetContact(ctx context.Context, id int64) (*domain.Contact, error)
	GetService(ctx context.Context, id int64) (*domain.Service, error)
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgStore struct {
	q Querier
}

// NewPostgresStore returns a Store backed by the pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{q: pool}
}

func (s *pgStore) Tickets() TicketRepository         { return &ticketRepository{q: s.q} }
func (s *pgStore) Replies() ReplyRepository          { return &replyRepository{q: s.q} }
func (s *pgStore) Fields() CustomFieldRepository     { return &customFieldRepository{q: s.q} }
func (s *pgStore) Reminders() ReminderRepository     { return &reminderRepository{q: s.q} }
func (s *pgStore) Departments() DepartmentRepository { return &departmentRepository{q: s.q} }
func (s *pgStore) Staff() StaffRepository            { return &staffRepository{q: s.q} }
func (s *pgStore) Clients() ClientRepository         { return &clientRepository{q: s.q} }

// WithinTx runs fn inside a transaction. Nested calls become savepoints.
func (s *pgStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return pgx.BeginFunc(ctx, s.q, func(tx pgx.Tx) error {
		return fn(&pgStore{q: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
