package domain

import "time"

// StaffMember models a support agent.
type StaffMember struct {
	ID           int64
	CompanyID    int64
	Name         string
	Email        string
	MobileEmail  string
	PasswordHash string
	Signature    string
	Active       bool
}

// NotifyChannel selects how a staff member hears about a ticket event.
type NotifyChannel string

const (
	NotifyOff       NotifyChannel = "off"
	NotifyPrimary   NotifyChannel = "primary"
	NotifyMobile    NotifyChannel = "mobile"
	NotifyMessenger NotifyChannel = "messenger"
)

// NotificationPreferences maps a ticket priority to the channel used for it.
// Priorities absent from the map are treated as NotifyOff.
type NotificationPreferences map[TicketPriority]NotifyChannel

// ChannelFor returns the channel configured for priority.
func (p NotificationPreferences) ChannelFor(priority TicketPriority) NotifyChannel {
	if ch, ok := p[priority]; ok && ch != "" {
		return ch
	}
	return NotifyOff
}

// StaffSchedule is a declared weekly availability window. Start and End are offsets
// from midnight. Start == End means all day; End < Start wraps past midnight.
type StaffSchedule struct {
	StaffID      int64
	DepartmentID int64
	Day          time.Weekday
	Start        time.Duration
	End          time.Duration
}

// Covers reports whether the window spans the time-of-day tod on its own weekday.
func (s StaffSchedule) Covers(tod time.Duration) bool {
	switch {
	case s.Start == s.End:
		return true
	case s.Start < s.End:
		return tod >= s.Start && tod < s.End
	default:
		return tod >= s.Start || tod < s.End
	}
}

// DepartmentStaff is a staff member as seen from one department: their schedules there
// and their notification preferences for it.
type DepartmentStaff struct {
	Staff       StaffMember
	Schedules   []StaffSchedule
	Preferences NotificationPreferences
}
