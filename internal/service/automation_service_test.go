package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

func intPtr(v int) *int { return &v }

func (h *harness) configureBilling(mutate func(*domain.Department)) {
	dept := domain.Department{ID: billingDept, CompanyID: companyID, Name: "Billing"}
	mutate(&dept)
	h.store.PutDepartment(dept)
}

func TestAutoClose_ClosesStaffAnsweredTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.PutCannedResponse(domain.CannedResponse{ID: 5, Details: "Closing due to inactivity."})
	h.configureBilling(func(d *domain.Department) {
		d.CloseTicketInterval = intPtr(60)
		d.ResponseID = domain.Int64Ptr(5)
	})

	answered := h.createEmailTicket(t, "a@example.com")
	_, err := h.threads.AddReply(ctx, answered.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Fixed?"})
	require.NoError(t, err)

	waiting := h.createEmailTicket(t, "b@example.com")

	working := h.createEmailTicket(t, "c@example.com")
	inProgress := domain.TicketStatusInProgress
	_, err = h.tickets.Edit(ctx, working.ID, TicketChanges{Status: &inProgress, ActorStaffID: domain.Int64Ptr(aliceID), Details: "On it."})
	require.NoError(t, err)

	h.clock.Advance(30 * time.Minute)
	result, err := h.automation.RunDepartmentAutomation(ctx, billingDept)
	require.NoError(t, err)
	assert.Zero(t, result.Closed, "interval not yet elapsed")

	h.clock.Advance(60 * time.Minute)
	h.events.reset()
	result, err = h.automation.RunDepartmentAutomation(ctx, billingDept)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Closed)

	details, err := h.tickets.Get(ctx, answered.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, details.Ticket.Status)
	require.NotNil(t, details.Ticket.DateClosed)
	assert.Equal(t, epoch.Add(90*time.Minute), *details.Ticket.DateClosed)

	thread := details.Replies
	require.GreaterOrEqual(t, len(thread), 2)
	assert.Equal(t, domain.ReplyTypeLog, thread[0].Type)
	assert.Equal(t, "Status changed from open to closed", thread[0].Details)
	assert.Equal(t, domain.SystemAuthor(), thread[0].Author)
	assert.Equal(t, domain.ReplyTypeReply, thread[1].Type)
	assert.Equal(t, "Closing due to inactivity.", thread[1].Details)
	assert.Equal(t, domain.SystemAuthor(), thread[1].Author)

	for _, id := range []int64{waiting.ID, working.ID} {
		other, err := h.tickets.Get(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, domain.TicketStatusClosed, other.Ticket.Status)
	}
	assert.Equal(t, []events.EventType{events.EventTicketReplyAdded}, h.events.types())

	result, err = h.automation.RunDepartmentAutomation(ctx, billingDept)
	require.NoError(t, err)
	assert.Zero(t, result.Closed)
}

func TestAutoClose_MissingCannedResponseStillCloses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.configureBilling(func(d *domain.Department) {
		d.CloseTicketInterval = intPtr(10)
		d.ResponseID = domain.Int64Ptr(77)
	})
	ticket := h.createEmailTicket(t, "a@example.com")
	_, err := h.threads.AddReply(ctx, ticket.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Done."})
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	result, err := h.automation.RunDepartmentAutomation(ctx, billingDept)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Closed)
	assert.Len(t, h.thread(t, ticket.ID), 3)
}

func TestAutoClose_FailureLeavesTicketOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.PutCannedResponse(domain.CannedResponse{ID: 5, Details: "Bye."})
	h.configureBilling(func(d *domain.Department) {
		d.CloseTicketInterval = intPtr(10)
		d.ResponseID = domain.Int64Ptr(5)
	})
	ticket := h.createEmailTicket(t, "a@example.com")
	_, err := h.threads.AddReply(ctx, ticket.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Done."})
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	h.store.FailOn("tickets.update", errors.New("deadlock detected"))
	result, err := h.automation.RunDepartmentAutomation(ctx, billingDept)
	h.store.FailOn("tickets.update", nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStorage))
	assert.Zero(t, result.Closed)
	assert.Len(t, h.thread(t, ticket.ID), 2, "canned reply rolled back")
}

func TestAutoDelete_RemovesOldTrash(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.configureBilling(func(d *domain.Department) { d.DeleteTicketInterval = intPtr(30) })
	trash := domain.TicketStatusTrash

	old := h.createEmailTicket(t, "a@example.com")
	_, err := h.threads.AddReply(ctx, old.ID, ReplyInput{
		Author:      domain.StaffAuthor(aliceID),
		Details:     "log attached",
		Attachments: []AttachmentInput{{Name: "a.log", Data: []byte("a")}},
	})
	require.NoError(t, err)
	_, err = h.tickets.Edit(ctx, old.ID, TicketChanges{Status: &trash})
	require.NoError(t, err)

	h.clock.Advance(40 * time.Minute)
	recent := h.createEmailTicket(t, "b@example.com")
	_, err = h.tickets.Edit(ctx, recent.ID, TicketChanges{Status: &trash})
	require.NoError(t, err)
	kept := h.createEmailTicket(t, "c@example.com")

	h.clock.Advance(5 * time.Minute)
	result, err := h.automation.RunDepartmentAutomation(ctx, billingDept)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	_, err = h.tickets.Get(ctx, old.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	for _, id := range []int64{recent.ID, kept.ID} {
		_, err = h.tickets.Get(ctx, id)
		assert.NoError(t, err)
	}
	assert.Equal(t, []string{"/files/1-a.log"}, h.files.deleted)
}

func TestReminders_SentOncePerSilence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.configureBilling(func(d *domain.Department) { d.ReminderTicketInterval = intPtr(60) })

	ticket := h.createEmailTicket(t, "a@example.com")
	_, err := h.threads.AddReply(ctx, ticket.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Any news?"})
	require.NoError(t, err)
	closedTicket := h.createEmailTicket(t, "b@example.com")
	_, err = h.tickets.Close(ctx, closedTicket.ID, nil)
	require.NoError(t, err)
	h.events.reset()

	h.clock.Advance(61 * time.Minute)
	sent, err := h.automation.RunReminders(ctx, billingDept)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, h.events.events, 1)
	evt := h.events.events[0]
	assert.Equal(t, events.EventTicketReminder, evt.Type)
	payload, ok := evt.Payload.(events.ReminderPayload)
	require.True(t, ok)
	assert.Equal(t, ticket.ID, payload.Ticket.ID)
	assert.Equal(t, domain.StaffAuthor(aliceID), payload.LastReply.Author)

	h.clock.Advance(2 * time.Hour)
	sent, err = h.automation.RunReminders(ctx, billingDept)
	require.NoError(t, err)
	assert.Zero(t, sent, "no new reply since the last reminder")

	reminders, err := h.store.Reminders().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, domain.TicketStatusOpen, reminders[0].StatusAtSend)

	_, err = h.threads.AddReply(ctx, ticket.ID, ReplyInput{Details: "Still broken."})
	require.NoError(t, err)
	h.clock.Advance(61 * time.Minute)
	sent, err = h.automation.RunReminders(ctx, billingDept)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestReminders_StatusAndPriorityFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.configureBilling(func(d *domain.Department) {
		d.ReminderTicketInterval = intPtr(60)
		d.ReminderTicketStatus = []domain.TicketStatus{domain.TicketStatusAwaitingReply}
		d.ReminderTicketPriority = []domain.TicketPriority{domain.TicketPriorityHigh}
	})

	awaiting := domain.TicketStatusAwaitingReply
	high := domain.TicketPriorityHigh
	match := h.createEmailTicket(t, "a@example.com")
	_, err := h.tickets.Edit(ctx, match.ID, TicketChanges{Status: &awaiting, Priority: &high})
	require.NoError(t, err)
	wrongPriority := h.createEmailTicket(t, "b@example.com")
	_, err = h.tickets.Edit(ctx, wrongPriority.ID, TicketChanges{Status: &awaiting})
	require.NoError(t, err)
	h.createEmailTicket(t, "c@example.com")

	h.clock.Advance(2 * time.Hour)
	sent, err := h.automation.RunReminders(ctx, billingDept)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestRunTick_DisabledDepartmentDoesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "a@example.com")
	_, err := h.threads.AddReply(ctx, ticket.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Done."})
	require.NoError(t, err)

	h.clock.Advance(30 * 24 * time.Hour)
	result, err := h.automation.RunTick(ctx, billingDept)
	require.NoError(t, err)
	assert.Equal(t, AutomationResult{}, result)

	_, err = h.automation.RunTick(ctx, 999)
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonDepartmentNotFound))
}

func TestAutomatedDepartments(t *testing.T) {
	h := newHarness(t)
	h.configureBilling(func(d *domain.Department) { d.ReminderTicketInterval = intPtr(15) })

	depts, err := h.automation.AutomatedDepartments(context.Background())
	require.NoError(t, err)
	require.Len(t, depts, 1)
	assert.Equal(t, billingDept, depts[0].ID)
}
