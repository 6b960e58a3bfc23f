package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/storage"
	"github.com/spec-kit/ticket-engine/internal/ticketcode"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// AttachmentStore persists attachment bytes outside the database.
type AttachmentStore interface {
	Write(ctx context.Context, data []byte, suggestedName string) (storage.Stored, error)
	Delete(ctx context.Context, path string) error
}

// Encrypter seals custom field values marked encrypted.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Dependencies bundles collaborators shared by the ticket services.
type Dependencies struct {
	Store       repository.Store
	Dispatcher  events.Dispatcher
	Attachments AttachmentStore
	Vault       Encrypter
	Codes       *ticketcode.Generator
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Clock       func() time.Time
}

// engine holds the transactional building blocks the public services compose.
type engine struct {
	store       repository.Store
	dispatcher  events.Dispatcher
	attachments AttachmentStore
	fields      *FieldBinder
	codes       *ticketcode.Generator
	logger      *zap.Logger
	metrics     *observability.Metrics
	clock       func() time.Time
}

func newEngine(deps Dependencies) *engine {
	e := &engine{
		store:       deps.Store,
		dispatcher:  deps.Dispatcher,
		attachments: deps.Attachments,
		fields:      NewFieldBinder(deps.Vault),
		codes:       deps.Codes,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		clock:       deps.Clock,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.codes == nil {
		e.codes, _ = ticketcode.New(7)
	}
	return e
}

func (e *engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// work collects what a unit of work produced: events to publish after commit and
// files to remove if it rolls back.
type work struct {
	events []events.Event
	files  []string
}

func (w *work) emit(eventType events.EventType, ticketID int64, actor domain.Author, at time.Time, payload any) {
	w.events = append(w.events, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	})
}

// run executes fn in one transaction. Events are published only after commit; on
// failure written attachment files are removed and the error is classified.
func (e *engine) run(ctx context.Context, fn func(tx repository.Store, w *work) error) error {
	w := &work{}
	err := e.store.WithinTx(ctx, func(tx repository.Store) error {
		return fn(tx, w)
	})
	if err != nil {
		e.discardFiles(ctx, w.files)
		return classify(err)
	}
	e.publish(ctx, w.events)
	return nil
}

func (e *engine) publish(ctx context.Context, evts []events.Event) {
	if e.dispatcher == nil {
		return
	}
	for _, evt := range evts {
		if err := e.dispatcher.Publish(ctx, evt); err != nil {
			e.logger.Warn("publish event failed", zap.String("type", string(evt.Type)), zap.Error(err))
		}
	}
}

func (e *engine) discardFiles(ctx context.Context, paths []string) {
	if e.attachments == nil {
		return
	}
	for _, path := range paths {
		if err := e.attachments.Delete(ctx, path); err != nil {
			e.logger.Warn("remove attachment file failed", zap.String("path", path), zap.Error(err))
		}
	}
}

// classify passes domain errors through and reports everything else as a storage failure.
func classify(err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewStorageError(err)
}

func (e *engine) loadTicket(ctx context.Context, tx repository.Store, id int64) (*domain.Ticket, error) {
	ticket, err := tx.Tickets().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return ticket, err
}

func (e *engine) loadDepartment(ctx context.Context, tx repository.Store, id int64) (*domain.Department, error) {
	dept, err := tx.Departments().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewValidationError(apperrors.ReasonDepartmentNotFound, "department does not exist",
			map[string]any{"department_id": id})
	}
	return dept, err
}
