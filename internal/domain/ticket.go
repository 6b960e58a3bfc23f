package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen          TicketStatus = "open"
	TicketStatusAwaitingReply TicketStatus = "awaiting_reply"
	TicketStatusInProgress    TicketStatus = "in_progress"
	TicketStatusOnHold        TicketStatus = "on_hold"
	TicketStatusClosed        TicketStatus = "closed"
	TicketStatusTrash         TicketStatus = "trash"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusAwaitingReply, TicketStatusInProgress,
		TicketStatusOnHold, TicketStatusClosed, TicketStatusTrash:
		return true
	}
	return false
}

// TicketPriority enumerates urgency.
type TicketPriority string

const (
	TicketPriorityEmergency TicketPriority = "emergency"
	TicketPriorityCritical  TicketPriority = "critical"
	TicketPriorityHigh      TicketPriority = "high"
	TicketPriorityMedium    TicketPriority = "medium"
	TicketPriorityLow       TicketPriority = "low"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityEmergency, TicketPriorityCritical, TicketPriorityHigh,
		TicketPriorityMedium, TicketPriorityLow:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           int64
	Code         string
	DepartmentID int64
	StaffID      *int64
	ServiceID    *int64
	ClientID     *int64
	Email        *string
	Summary      string
	Priority     TicketPriority
	Status       TicketStatus
	DateAdded    time.Time
	DateUpdated  time.Time
	DateClosed   *time.Time
}

// Clone returns a deep copy of the ticket.
func (t Ticket) Clone() Ticket {
	out := t
	out.StaffID = cloneInt64(t.StaffID)
	out.ServiceID = cloneInt64(t.ServiceID)
	out.ClientID = cloneInt64(t.ClientID)
	if t.Email != nil {
		email := *t.Email
		out.Email = &email
	}
	if t.DateClosed != nil {
		closed := *t.DateClosed
		out.DateClosed = &closed
	}
	return out
}

// SameRequester reports whether both tickets belong to the same client, or, with no
// client on either, to the same submitter email.
func (t Ticket) SameRequester(other Ticket) bool {
	if t.ClientID != nil || other.ClientID != nil {
		return t.ClientID != nil && other.ClientID != nil && *t.ClientID == *other.ClientID
	}
	return t.Email != nil && other.Email != nil && *t.Email == *other.Email
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
