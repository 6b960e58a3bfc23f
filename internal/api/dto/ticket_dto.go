package dto

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// AttachmentRequest is an inline upload; Data is base64 in JSON.
type AttachmentRequest struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// AuthorRequest selects who a reply is written as. Omitted means the caller.
type AuthorRequest struct {
	Kind domain.AuthorKind `json:"kind"`
	ID   int64             `json:"id,omitempty"`
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	DepartmentID int64                 `json:"department_id"`
	StaffID      *int64                `json:"staff_id"`
	ServiceID    *int64                `json:"service_id"`
	ClientID     *int64                `json:"client_id"`
	Email        *string               `json:"email"`
	Summary      string                `json:"summary"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	Author       *AuthorRequest        `json:"author"`
	Details      string                `json:"details"`
	Attachments  []AttachmentRequest   `json:"attachments"`
	Fields       map[int64]string      `json:"fields"`
}

// EditTicketRequest is a sparse edit; absent keys are left unchanged.
type EditTicketRequest struct {
	DepartmentID *int64                 `json:"department_id"`
	StaffID      *int64                 `json:"staff_id"`
	ClearStaff   bool                   `json:"clear_staff"`
	ServiceID    *int64                 `json:"service_id"`
	ClearService bool                   `json:"clear_service"`
	ClientID     *int64                 `json:"client_id"`
	Email        *string                `json:"email"`
	Summary      *string                `json:"summary"`
	Priority     *domain.TicketPriority `json:"priority"`
	Status       *domain.TicketStatus   `json:"status"`
	DateClosed   *time.Time             `json:"date_closed"`
	ReplyType    domain.ReplyType       `json:"reply_type"`
	Details      string                 `json:"details"`
	Attachments  []AttachmentRequest    `json:"attachments"`
	Fields       map[int64]string       `json:"fields"`
	Silent       bool                   `json:"silent"`
}

// EditMultipleRequest applies Changes to every ticket in TicketIDs, with per-ticket
// overrides keyed by id.
type EditMultipleRequest struct {
	TicketIDs []int64                     `json:"ticket_ids"`
	Changes   EditTicketRequest           `json:"changes"`
	PerTicket map[int64]EditTicketRequest `json:"per_ticket"`
}

// TicketIDsRequest names tickets for bulk operations.
type TicketIDsRequest struct {
	TicketIDs []int64 `json:"ticket_ids"`
}

// ReplyRequest payload.
type ReplyRequest struct {
	Type        domain.ReplyType    `json:"type"`
	Author      *AuthorRequest      `json:"author"`
	Details     string              `json:"details"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// MergeRequest payload.
type MergeRequest struct {
	SourceIDs []int64 `json:"source_ids"`
}

// SplitRequest payload.
type SplitRequest struct {
	ReplyIDs []int64 `json:"reply_ids"`
}

// TicketResponse is the top-level ticket view.
type TicketResponse struct {
	ID           int64                 `json:"id"`
	Code         string                `json:"code"`
	DepartmentID int64                 `json:"department_id"`
	StaffID      *int64                `json:"staff_id"`
	ServiceID    *int64                `json:"service_id"`
	ClientID     *int64                `json:"client_id"`
	Email        *string               `json:"email"`
	Summary      string                `json:"summary"`
	Priority     domain.TicketPriority `json:"priority"`
	Status       domain.TicketStatus   `json:"status"`
	DateAdded    time.Time             `json:"date_added"`
	DateUpdated  time.Time             `json:"date_updated"`
	DateClosed   *time.Time            `json:"date_closed"`
}

// TicketDetailResponse adds the thread and custom field values.
type TicketDetailResponse struct {
	TicketResponse
	Replies []ReplyResponse      `json:"replies"`
	Fields  []FieldValueResponse `json:"fields"`
}

// ReplyResponse is one thread entry.
type ReplyResponse struct {
	ID          int64                `json:"id"`
	TicketID    int64                `json:"ticket_id"`
	Author      domain.Author        `json:"author"`
	Type        domain.ReplyType     `json:"type"`
	Details     string               `json:"details"`
	DateAdded   time.Time            `json:"date_added"`
	Attachments []AttachmentResponse `json:"attachments"`
}

// AttachmentResponse metadata.
type AttachmentResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FieldValueResponse is a decrypted custom field value.
type FieldValueResponse struct {
	FieldID int64                  `json:"field_id"`
	Label   string                 `json:"label"`
	Type    domain.CustomFieldType `json:"type"`
	Value   string                 `json:"value"`
}

// AutomationResponse reports one manual department tick.
type AutomationResponse struct {
	Closed    int `json:"closed"`
	Deleted   int `json:"deleted"`
	Reminders int `json:"reminders"`
}
