package events

import (
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketReplyAdded EventType = "ticket_reply_added"
	EventTicketReminder   EventType = "ticket_reminder"
	EventTicketMerged     EventType = "ticket_merged"
)

// Event represents a domain event emitted by services after their transaction commits.
type Event struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	TicketID  int64         `json:"ticket_id"`
	Actor     domain.Author `json:"actor"`
	Timestamp time.Time     `json:"timestamp"`
	Payload   any           `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Ticket domain.Ticket     `json:"ticket"`
	Reply  domain.ReplyEntry `json:"reply"`
}

// ReplyAddedPayload payload. Silent suppresses notifications, e.g. for staff-only edits.
type ReplyAddedPayload struct {
	Ticket domain.Ticket     `json:"ticket"`
	Reply  domain.ReplyEntry `json:"reply"`
	Silent bool              `json:"silent"`
}

// ReminderPayload payload.
type ReminderPayload struct {
	Ticket    domain.Ticket     `json:"ticket"`
	LastReply domain.ReplyEntry `json:"last_reply"`
}

// TicketMergedPayload payload.
type TicketMergedPayload struct {
	Target  domain.Ticket   `json:"target"`
	Sources []domain.Ticket `json:"sources"`
}
