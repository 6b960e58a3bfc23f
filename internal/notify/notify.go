// Package notify hands rendered-later notification requests to an outbound transport.
package notify

import (
	"context"
	"time"
)

// Template identifiers understood by the mail renderer.
const (
	TemplateTicketReceived       = "ticket_received"
	TemplateStaffTicketUpdated   = "staff_ticket_updated"
	TemplateClientTicketUpdated  = "client_ticket_updated"
	TemplateStaffTicketReminder  = "staff_ticket_reminder"
	TemplateClientTicketReminder = "client_ticket_reminder"
	TemplateTicketMerged         = "ticket_merged"
)

// Recipient is one addressee. Channel is "primary", "mobile" or "messenger" for staff.
type Recipient struct {
	Email   string `json:"email,omitempty"`
	StaffID *int64 `json:"staff_id,omitempty"`
	Channel string `json:"channel,omitempty"`
}

// Message is a transport-neutral notification request.
type Message struct {
	ID          string            `json:"id"`
	TemplateID  string            `json:"template_id"`
	CompanyID   int64             `json:"company_id"`
	Locale      string            `json:"locale"`
	Recipients  []Recipient       `json:"recipients"`
	Tags        map[string]string `json:"tags"`
	CC          []string          `json:"cc,omitempty"`
	BCC         []string          `json:"bcc,omitempty"`
	Attachments []string          `json:"attachments,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Transport delivers messages. Implementations log their own failures; callers treat
// the returned error as informational.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}
