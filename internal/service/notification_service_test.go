package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/notify"
)

func newNotifyHarness(t *testing.T) (*harness, *fakeTransport) {
	t.Helper()
	h := newHarness(t)
	transport := &fakeTransport{}
	svc := NewNotificationService(NotificationDependencies{
		Dispatcher: h.events,
		Store:      h.store,
		Matcher:    NewAvailabilityMatcher(h.store.Staff(), h.store.Departments(), nil),
		Transport:  transport,
	})
	svc.RegisterHandlers()
	return h, transport
}

func emails(msg notify.Message) []string {
	out := make([]string, 0, len(msg.Recipients))
	for _, r := range msg.Recipients {
		out = append(out, r.Email)
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

func TestNotify_ClientCreatedTicket(t *testing.T) {
	h, transport := newNotifyHarness(t)
	ticket := h.createClientTicket(t, acmeClient)

	require.Equal(t, []string{notify.TemplateTicketReceived, notify.TemplateStaffTicketUpdated}, transport.templates())

	received := transport.sent[0]
	assert.Equal(t, []string{"wile@client.test"}, emails(received))
	assert.Equal(t, "fr", received.Locale)
	assert.Equal(t, companyID, received.CompanyID)
	assert.Equal(t, ticket.Code, received.Tags["ticket_code"])
	assert.Equal(t, "Support", received.Tags["department"])
	assert.Equal(t, "My server does not respond.", received.Tags["details"])
	assert.Equal(t, "support@acme.test", received.Options["reply_to"])
	assert.NotEmpty(t, received.ID)

	staff := transport.sent[1]
	require.Len(t, staff.Recipients, 2)
	assert.Equal(t, notify.Recipient{Email: "alice@acme.test", StaffID: domain.Int64Ptr(aliceID), Channel: "primary"}, staff.Recipients[0])
	assert.Equal(t, notify.Recipient{Email: "bob@sms.test", StaffID: domain.Int64Ptr(bobID), Channel: "mobile"}, staff.Recipients[1])
}

func TestNotify_EmailTicketUsesCompanyLocale(t *testing.T) {
	h, transport := newNotifyHarness(t)
	h.createEmailTicket(t, "visitor@example.com")

	// Billing has no staff, so only the submitter hears back.
	require.Equal(t, []string{notify.TemplateTicketReceived}, transport.templates())
	assert.Equal(t, []string{"visitor@example.com"}, emails(transport.sent[0]))
	assert.Equal(t, "en", transport.sent[0].Locale)
}

func TestNotify_StaffCreatedTicketSkipsClientReceipt(t *testing.T) {
	h, transport := newNotifyHarness(t)
	_, err := h.tickets.Create(context.Background(), CreateTicketInput{
		DepartmentID: supportDept,
		ClientID:     domain.Int64Ptr(acmeClient),
		Summary:      "Scheduled maintenance",
		Details:      "We will reboot tonight.",
		Author:       domain.StaffAuthor(aliceID),
		Fields:       requiredFields(),
	})
	require.NoError(t, err)

	require.Equal(t, []string{notify.TemplateStaffTicketUpdated}, transport.templates())
	assert.Equal(t, []string{"bob@sms.test"}, emails(transport.sent[0]))
}

func TestNotify_ReplyRouting(t *testing.T) {
	h, transport := newNotifyHarness(t)
	ctx := context.Background()
	ticket := h.createClientTicket(t, acmeClient)

	cases := []struct {
		name      string
		input     ReplyInput
		templates []string
		to        []string
	}{
		{
			name:      "staff reply goes to the client",
			input:     ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Rebooted."},
			templates: []string{notify.TemplateClientTicketUpdated},
			to:        []string{"wile@client.test"},
		},
		{
			name:  "silent staff reply goes nowhere",
			input: ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Rebooted.", Silent: true},
		},
		{
			name:      "note goes to other staff",
			input:     ReplyInput{Author: domain.StaffAuthor(aliceID), Type: domain.ReplyTypeNote, Details: "internal"},
			templates: []string{notify.TemplateStaffTicketUpdated},
			to:        []string{"bob@sms.test"},
		},
		{
			name:      "contact reply goes to staff",
			input:     ReplyInput{Author: domain.ContactAuthor(acmeContact), Details: "Still down."},
			templates: []string{notify.TemplateStaffTicketUpdated},
			to:        []string{"alice@acme.test", "bob@sms.test"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport.reset()
			_, err := h.threads.AddReply(ctx, ticket.ID, tc.input)
			require.NoError(t, err)
			assert.Equal(t, len(tc.templates), len(transport.templates()))
			for i, tmpl := range tc.templates {
				assert.Equal(t, tmpl, transport.sent[i].TemplateID)
				assert.Equal(t, tc.to, emails(transport.sent[i]))
			}
		})
	}
}

func TestNotify_AssignedTicketOnlyNotifiesAssignee(t *testing.T) {
	h, transport := newNotifyHarness(t)
	ctx := context.Background()
	ticket := h.createClientTicket(t, acmeClient)
	_, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{StaffID: domain.Int64Ptr(bobID)})
	require.NoError(t, err)
	transport.reset()

	_, err = h.threads.AddReply(ctx, ticket.ID, ReplyInput{Details: "Any update?"})
	require.NoError(t, err)
	require.Equal(t, []string{notify.TemplateStaffTicketUpdated}, transport.templates())
	assert.Equal(t, []string{"bob@sms.test"}, emails(transport.sent[0]))
}

func TestNotify_Reminders(t *testing.T) {
	h, transport := newNotifyHarness(t)
	ctx := context.Background()
	support := h.supportDept
	support.ReminderTicketInterval = intPtr(60)
	h.store.PutDepartment(support)

	waitingOnStaff := h.createClientTicket(t, acmeClient)
	_, err := h.tickets.Edit(ctx, waitingOnStaff.ID, TicketChanges{StaffID: domain.Int64Ptr(aliceID)})
	require.NoError(t, err)
	waitingOnClient := h.createClientTicket(t, globexClient)
	_, err = h.threads.AddReply(ctx, waitingOnClient.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Please confirm."})
	require.NoError(t, err)
	transport.reset()

	h.clock.Advance(2 * time.Hour)
	sent, err := h.automation.RunReminders(ctx, supportDept)
	require.NoError(t, err)
	require.Equal(t, 2, sent)

	byTemplate := map[string]notify.Message{}
	for _, m := range transport.sent {
		byTemplate[m.TemplateID] = m
	}
	require.Len(t, byTemplate, 2)
	// reminders reach every available staff member, assigned or not
	assert.Equal(t, []string{"alice@acme.test", "bob@sms.test"}, emails(byTemplate[notify.TemplateStaffTicketReminder]))
	assert.Equal(t, waitingOnStaff.Code, byTemplate[notify.TemplateStaffTicketReminder].Tags["ticket_code"])
	assert.Equal(t, []string{"hank@globex.test"}, emails(byTemplate[notify.TemplateClientTicketReminder]))
}

func TestNotify_Merge(t *testing.T) {
	h, transport := newNotifyHarness(t)
	ctx := context.Background()
	target := h.createEmailTicket(t, "visitor@example.com")
	first := h.createEmailTicket(t, "visitor@example.com")
	second := h.createEmailTicket(t, "visitor@example.com")
	transport.reset()

	_, err := h.merges.Merge(ctx, target.ID, []int64{first.ID, second.ID}, domain.Int64Ptr(aliceID))
	require.NoError(t, err)

	var merged []notify.Message
	for _, m := range transport.sent {
		if m.TemplateID == notify.TemplateTicketMerged {
			merged = append(merged, m)
		}
	}
	require.Len(t, merged, 1)
	assert.Equal(t, []string{"visitor@example.com"}, emails(merged[0]))
	assert.Equal(t, first.Code+","+second.Code, merged[0].Tags["merged_codes"])
	assert.Equal(t, target.Code, merged[0].Tags["ticket_code"])
}

func TestNotify_TransportFailureDoesNotFailMutation(t *testing.T) {
	h, transport := newNotifyHarness(t)
	transport.err = errors.New("smtp unavailable")

	ticket := h.createClientTicket(t, acmeClient)
	assert.NotZero(t, ticket.ID)
	assert.NotEmpty(t, transport.templates())
}

func TestStaffRecipient_Channels(t *testing.T) {
	member := domain.StaffMember{ID: 9, Email: "main@acme.test", MobileEmail: "pager@acme.test"}

	assert.Equal(t, "main@acme.test", staffRecipient(StaffRecipient{Staff: member, Channel: domain.NotifyPrimary}).Email)
	assert.Equal(t, "pager@acme.test", staffRecipient(StaffRecipient{Staff: member, Channel: domain.NotifyMobile}).Email)
	messenger := staffRecipient(StaffRecipient{Staff: member, Channel: domain.NotifyMessenger})
	assert.Empty(t, messenger.Email)
	assert.Equal(t, int64(9), *messenger.StaffID)

	member.MobileEmail = ""
	assert.Equal(t, "main@acme.test", staffRecipient(StaffRecipient{Staff: member, Channel: domain.NotifyMobile}).Email)
}
