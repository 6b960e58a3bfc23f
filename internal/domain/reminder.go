package domain

import "time"

// Reminder records that a reminder was sent for a ticket.
type Reminder struct {
	ID           int64
	TicketID     int64
	StatusAtSend TicketStatus
	DateSent     time.Time
}
