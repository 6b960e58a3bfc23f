package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/notify"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

// NotificationService turns committed ticket events into transport messages.
type NotificationService struct {
	dispatcher events.Dispatcher
	store      repository.Store
	matcher    *AvailabilityMatcher
	transport  notify.Transport
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NotificationDependencies bundles the collaborators of the notification service.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Store      repository.Store
	Matcher    *AvailabilityMatcher
	Transport  notify.Transport
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		matcher:    deps.Matcher,
		transport:  deps.Transport,
		logger:     logger,
		metrics:    deps.Metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketReplyAdded, n.handleReplyAdded)
	n.dispatcher.Subscribe(events.EventTicketReminder, n.handleReminder)
	n.dispatcher.Subscribe(events.EventTicketMerged, n.handleMerged)
}

// ticketContext is what every message about a ticket needs.
type ticketContext struct {
	dept    *domain.Department
	locale  string
	client  *notify.Recipient
	tags    map[string]string
	company int64
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	tc, err := n.resolve(ctx, payload.Ticket, payload.Reply)
	if err != nil {
		return err
	}
	var errs []error
	if tc.client != nil && !payload.Reply.Author.StaffSide() {
		errs = append(errs, n.send(ctx, notify.TemplateTicketReceived, tc, []notify.Recipient{*tc.client}))
	}
	errs = append(errs, n.notifyStaff(ctx, notify.TemplateStaffTicketUpdated, tc, payload.Ticket, payload.Reply))
	return errors.Join(errs...)
}

func (n *NotificationService) handleReplyAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ReplyAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	if payload.Silent {
		return nil
	}
	tc, err := n.resolve(ctx, payload.Ticket, payload.Reply)
	if err != nil {
		return err
	}
	switch {
	case payload.Reply.Type == domain.ReplyTypeNote:
		return n.notifyStaff(ctx, notify.TemplateStaffTicketUpdated, tc, payload.Ticket, payload.Reply)
	case payload.Reply.Author.StaffSide():
		if tc.client == nil {
			return nil
		}
		return n.send(ctx, notify.TemplateClientTicketUpdated, tc, []notify.Recipient{*tc.client})
	default:
		return n.notifyStaff(ctx, notify.TemplateStaffTicketUpdated, tc, payload.Ticket, payload.Reply)
	}
}

// handleReminder notifies staff when the client spoke last and the client otherwise.
func (n *NotificationService) handleReminder(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ReminderPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	tc, err := n.resolve(ctx, payload.Ticket, payload.LastReply)
	if err != nil {
		return err
	}
	if payload.LastReply.Author.StaffSide() {
		if tc.client == nil {
			return nil
		}
		return n.send(ctx, notify.TemplateClientTicketReminder, tc, []notify.Recipient{*tc.client})
	}
	return n.notifyStaff(ctx, notify.TemplateStaffTicketReminder, tc, payload.Ticket, payload.LastReply)
}

func (n *NotificationService) handleMerged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMergedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	tc, err := n.resolve(ctx, payload.Target, domain.ReplyEntry{})
	if err != nil {
		return err
	}
	if tc.client == nil {
		return nil
	}
	codes := ""
	for i, src := range payload.Sources {
		if i > 0 {
			codes += ","
		}
		codes += src.Code
	}
	tc.tags["merged_codes"] = codes
	return n.send(ctx, notify.TemplateTicketMerged, tc, []notify.Recipient{*tc.client})
}

// notifyStaff sends to the department staff available at the reply time, skipping the
// reply's own author.
func (n *NotificationService) notifyStaff(ctx context.Context, template string, tc *ticketContext, ticket domain.Ticket, reply domain.ReplyEntry) error {
	if n.matcher == nil {
		return nil
	}
	at := reply.DateAdded
	if at.IsZero() {
		at = time.Now()
	}
	candidates, err := n.matcher.Recipients(ctx, ticket.DepartmentID, ticket.Priority, at)
	if err != nil {
		return err
	}
	var recipients []notify.Recipient
	for _, c := range candidates {
		if reply.Author.Kind == domain.AuthorStaff && reply.Author.ID == c.Staff.ID {
			continue
		}
		if ticket.StaffID != nil && *ticket.StaffID != c.Staff.ID && template != notify.TemplateStaffTicketReminder {
			continue
		}
		recipients = append(recipients, staffRecipient(c))
	}
	if len(recipients) == 0 {
		return nil
	}
	return n.send(ctx, template, tc, recipients)
}

func staffRecipient(c StaffRecipient) notify.Recipient {
	id := c.Staff.ID
	r := notify.Recipient{StaffID: &id, Channel: string(c.Channel), Email: c.Staff.Email}
	switch c.Channel {
	case domain.NotifyMobile:
		if c.Staff.MobileEmail != "" {
			r.Email = c.Staff.MobileEmail
		}
	case domain.NotifyMessenger:
		r.Email = ""
	}
	return r
}

func (n *NotificationService) send(ctx context.Context, template string, tc *ticketContext, recipients []notify.Recipient) error {
	msg := notify.Message{
		ID:         uuid.NewString(),
		TemplateID: template,
		CompanyID:  tc.company,
		Locale:     tc.locale,
		Recipients: recipients,
		Tags:       tc.tags,
		CreatedAt:  time.Now().UTC(),
	}
	if tc.dept.Email != "" {
		msg.Options = map[string]string{"reply_to": tc.dept.Email}
	}
	err := n.transport.Send(ctx, msg)
	n.metrics.RecordNotification(template, err)
	return err
}

func (n *NotificationService) resolve(ctx context.Context, ticket domain.Ticket, reply domain.ReplyEntry) (*ticketContext, error) {
	dept, err := n.store.Departments().GetByID(ctx, ticket.DepartmentID)
	if err != nil {
		return nil, err
	}
	tc := &ticketContext{
		dept:    dept,
		company: dept.CompanyID,
		tags: map[string]string{
			"ticket_id":   strconv.FormatInt(ticket.ID, 10),
			"ticket_code": ticket.Code,
			"summary":     ticket.Summary,
			"status":      string(ticket.Status),
			"priority":    string(ticket.Priority),
			"department":  dept.Name,
		},
	}
	if reply.ID != 0 {
		tc.tags["reply_id"] = strconv.FormatInt(reply.ID, 10)
		tc.tags["details"] = reply.Details
	}
	if company, err := n.store.Departments().GetCompany(ctx, dept.CompanyID); err == nil {
		tc.locale = company.Locale
	}

	switch {
	case ticket.ClientID != nil:
		client, err := n.store.Clients().GetClient(ctx, *ticket.ClientID)
		if err != nil {
			return nil, err
		}
		tc.client = &notify.Recipient{Email: client.Email}
		if client.Locale != "" {
			tc.locale = client.Locale
		}
	case ticket.Email != nil:
		tc.client = &notify.Recipient{Email: *ticket.Email}
	}
	return tc, nil
}
