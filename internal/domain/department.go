package domain

import "time"

// Department is a routing and policy unit. Interval fields are minutes; nil disables.
type Department struct {
	ID                     int64
	CompanyID              int64
	Name                   string
	Email                  string
	CloseTicketInterval    *int
	DeleteTicketInterval   *int
	ReminderTicketInterval *int
	ReminderTicketStatus   []TicketStatus
	ReminderTicketPriority []TicketPriority
	ResponseID             *int64
	AutomaticTransition    bool
	Fields                 []CustomFieldSchema
}

// Field returns the schema for fieldID, if the department defines it.
func (d Department) Field(fieldID int64) (CustomFieldSchema, bool) {
	for _, f := range d.Fields {
		if f.ID == fieldID {
			return f, true
		}
	}
	return CustomFieldSchema{}, false
}

// HasAutomation reports whether any scheduler interval is configured.
func (d Department) HasAutomation() bool {
	return d.CloseTicketInterval != nil || d.DeleteTicketInterval != nil || d.ReminderTicketInterval != nil
}

// Minutes converts an interval pointer into a duration.
func Minutes(v *int) time.Duration {
	if v == nil {
		return 0
	}
	return time.Duration(*v) * time.Minute
}

// CannedResponse is a predefined reply text.
type CannedResponse struct {
	ID      int64
	Details string
}

// Company groups departments and clients.
type Company struct {
	ID       int64
	Name     string
	Timezone string
	Locale   string
}
