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
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

func TestCreate_ClientTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ticket := h.createClientTicket(t, acmeClient)

	assert.Len(t, ticket.Code, 6)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Nil(t, ticket.Email)
	assert.Nil(t, ticket.DateClosed)
	assert.Equal(t, epoch, ticket.DateAdded)

	thread := h.thread(t, ticket.ID)
	require.Len(t, thread, 1)
	assert.Equal(t, domain.ClientAuthor(), thread[0].Author)
	assert.Equal(t, domain.ReplyTypeReply, thread[0].Type)

	stored, err := h.store.Fields().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	values := map[int64]string{}
	for _, v := range stored {
		values[v.FieldID] = v.Value
	}
	assert.Equal(t, "ORD-1", values[fieldOrder])
	assert.Equal(t, "sealed:hunter2", values[fieldPassword])

	details, err := h.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	plain := map[int64]string{}
	for _, f := range details.Fields {
		plain[f.Field.ID] = f.Value
	}
	assert.Equal(t, "hunter2", plain[fieldPassword])

	assert.Equal(t, []events.EventType{events.EventTicketCreated}, h.events.types())
}

func TestCreate_EmailTicketTrimsInput(t *testing.T) {
	h := newHarness(t)

	ticket, err := h.tickets.Create(context.Background(), CreateTicketInput{
		DepartmentID: billingDept,
		Email:        domain.StringPtr("  visitor@example.com "),
		Summary:      "  Refund  ",
		Priority:     domain.TicketPriorityHigh,
		Status:       domain.TicketStatusClosed,
		Details:      "Please refund.",
	})
	require.NoError(t, err)

	require.NotNil(t, ticket.Email)
	assert.Equal(t, "visitor@example.com", *ticket.Email)
	assert.Equal(t, "Refund", ticket.Summary)
	require.NotNil(t, ticket.DateClosed)
	assert.Equal(t, epoch, *ticket.DateClosed)
}

func TestCreate_Validation(t *testing.T) {
	cases := []struct {
		name   string
		input  CreateTicketInput
		reason apperrors.Reason
	}{
		{
			name:   "missing summary",
			input:  CreateTicketInput{DepartmentID: billingDept, Email: domain.StringPtr("a@b.test"), Summary: "  ", Details: "x"},
			reason: apperrors.ReasonSummaryRequired,
		},
		{
			name:   "no client and no email",
			input:  CreateTicketInput{DepartmentID: billingDept, Summary: "s", Details: "x"},
			reason: apperrors.ReasonEmailRequired,
		},
		{
			name:   "malformed email",
			input:  CreateTicketInput{DepartmentID: billingDept, Email: domain.StringPtr("not-an-email"), Summary: "s", Details: "x"},
			reason: apperrors.ReasonEmailInvalid,
		},
		{
			name:   "unknown department",
			input:  CreateTicketInput{DepartmentID: 999, Email: domain.StringPtr("a@b.test"), Summary: "s", Details: "x"},
			reason: apperrors.ReasonDepartmentNotFound,
		},
		{
			name:   "client of another company",
			input:  CreateTicketInput{DepartmentID: billingDept, ClientID: domain.Int64Ptr(foreignClient), Summary: "s", Details: "x"},
			reason: apperrors.ReasonClientCompany,
		},
		{
			name: "service of another client",
			input: CreateTicketInput{DepartmentID: billingDept, ClientID: domain.Int64Ptr(acmeClient),
				ServiceID: domain.Int64Ptr(globexService), Summary: "s", Details: "x"},
			reason: apperrors.ReasonServiceNotOwned,
		},
		{
			name:   "unknown staff",
			input:  CreateTicketInput{DepartmentID: billingDept, Email: domain.StringPtr("a@b.test"), StaffID: domain.Int64Ptr(404), Summary: "s", Details: "x"},
			reason: apperrors.ReasonStaffNotFound,
		},
		{
			name:   "invalid priority",
			input:  CreateTicketInput{DepartmentID: billingDept, Email: domain.StringPtr("a@b.test"), Priority: "urgent", Summary: "s", Details: "x"},
			reason: apperrors.ReasonInvalidPriority,
		},
		{
			name:   "empty details",
			input:  CreateTicketInput{DepartmentID: billingDept, Email: domain.StringPtr("a@b.test"), Summary: "s", Details: " \n"},
			reason: apperrors.ReasonDetailsRequired,
		},
		{
			name: "required field missing",
			input: CreateTicketInput{DepartmentID: supportDept, ClientID: domain.Int64Ptr(acmeClient), Summary: "s", Details: "x",
				Fields: map[int64]string{fieldOrder: "ORD-1"}},
			reason: apperrors.ReasonCustomFieldRequired,
		},
		{
			name: "select option not allowed",
			input: CreateTicketInput{DepartmentID: supportDept, ClientID: domain.Int64Ptr(acmeClient), Summary: "s", Details: "x",
				Fields: map[int64]string{fieldOrder: "ORD-1", fieldPassword: "pw", fieldPlan: "enterprise"}},
			reason: apperrors.ReasonCustomFieldOption,
		},
		{
			name: "field of another department",
			input: CreateTicketInput{DepartmentID: billingDept, Email: domain.StringPtr("a@b.test"), Summary: "s", Details: "x",
				Fields: map[int64]string{fieldOrder: "ORD-1"}},
			reason: apperrors.ReasonCustomFieldUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.tickets.Create(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation), "got %v", err)
			assert.True(t, apperrors.IsReason(err, tc.reason), "got %v", err)

			tickets, err := h.tickets.List(context.Background(), repository.TicketFilter{})
			require.NoError(t, err)
			assert.Empty(t, tickets)
			assert.Empty(t, h.events.types())
		})
	}
}

func TestEdit_TrashIsTerminalUntilMovedOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "someone@example.com")

	trash := domain.TicketStatusTrash
	_, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{Status: &trash})
	require.NoError(t, err)

	summary := "new summary"
	_, err = h.tickets.Edit(ctx, ticket.ID, TicketChanges{Summary: &summary})
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonTicketTrashed))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	_, err = h.tickets.Edit(ctx, ticket.ID, TicketChanges{Status: &trash, Summary: &summary})
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonTicketTrashed))

	open := domain.TicketStatusOpen
	restored, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{Status: &open, Summary: &summary})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, restored.Status)
	assert.Equal(t, summary, restored.Summary)
}

func TestEdit_ClientCannotBeReassigned(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "someone@example.com")

	assigned, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{ClientID: domain.Int64Ptr(acmeClient)})
	require.NoError(t, err)
	require.NotNil(t, assigned.ClientID)
	assert.Equal(t, acmeClient, *assigned.ClientID)
	assert.Nil(t, assigned.Email)

	_, err = h.tickets.Edit(ctx, ticket.ID, TicketChanges{ClientID: domain.Int64Ptr(globexClient)})
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonClientAlreadyAssigned))

	_, err = h.tickets.Edit(ctx, ticket.ID, TicketChanges{ClientID: domain.Int64Ptr(acmeClient)})
	assert.NoError(t, err)
}

func TestClose_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createClientTicket(t, acmeClient)

	_, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{Fields: map[int64]string{fieldScratch: "temp"}})
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	closed, err := h.tickets.Close(ctx, ticket.ID, domain.Int64Ptr(aliceID))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.DateClosed)
	closedAt := *closed.DateClosed
	assert.Equal(t, epoch.Add(time.Hour), closedAt)

	stored, err := h.store.Fields().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	for _, v := range stored {
		assert.NotEqual(t, fieldScratch, v.FieldID, "auto-delete field survived close")
	}
	logsAfterFirst := logLines(h.thread(t, ticket.ID))
	assert.Equal(t, []string{"Status changed from open to closed"}, logsAfterFirst)

	h.clock.Advance(time.Hour)
	again, err := h.tickets.Close(ctx, ticket.ID, domain.Int64Ptr(aliceID))
	require.NoError(t, err)
	assert.Equal(t, closedAt, *again.DateClosed)
	assert.Equal(t, logsAfterFirst, logLines(h.thread(t, ticket.ID)))
}

func TestEdit_ExplicitCloseDateAndReopen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "someone@example.com")

	closed := domain.TicketStatusClosed
	when := epoch.Add(-24 * time.Hour)
	out, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{Status: &closed, DateClosed: &when})
	require.NoError(t, err)
	require.NotNil(t, out.DateClosed)
	assert.Equal(t, when, *out.DateClosed)

	open := domain.TicketStatusOpen
	out, err = h.tickets.Edit(ctx, ticket.ID, TicketChanges{Status: &open})
	require.NoError(t, err)
	assert.Nil(t, out.DateClosed)
}

func TestEdit_LogsInFixedOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createClientTicket(t, acmeClient)

	billing := billingDept
	summary := "Server unreachable"
	priority := domain.TicketPriorityHigh
	status := domain.TicketStatusInProgress
	_, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{
		Status:       &status,
		Priority:     &priority,
		Summary:      &summary,
		StaffID:      domain.Int64Ptr(aliceID),
		DepartmentID: &billing,
		ActorStaffID: domain.Int64Ptr(bobID),
	})
	require.NoError(t, err)

	thread := h.thread(t, ticket.ID)
	assert.Equal(t, []string{
		"Department changed from Support to Billing",
		"Assigned staff changed from nobody to Alice",
		`Summary changed from "Server down" to "Server unreachable"`,
		"Priority changed from medium to high",
		"Status changed from open to in_progress",
	}, logLines(thread))
	for _, r := range thread {
		if r.Type == domain.ReplyTypeLog {
			assert.Equal(t, domain.StaffAuthor(bobID), r.Author)
		}
	}

	// Billing defines no custom fields, so every value is pruned.
	stored, err := h.store.Fields().ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestEdit_WithoutLogAndSystemAuthor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "someone@example.com")

	priority := domain.TicketPriorityLow
	_, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{Priority: &priority}, WithoutLog())
	require.NoError(t, err)
	assert.Empty(t, logLines(h.thread(t, ticket.ID)))

	priority = domain.TicketPriorityCritical
	_, err = h.tickets.Edit(ctx, ticket.ID, TicketChanges{Priority: &priority})
	require.NoError(t, err)
	thread := h.thread(t, ticket.ID)
	require.Equal(t, domain.ReplyTypeLog, thread[0].Type)
	assert.Equal(t, domain.SystemAuthor(), thread[0].Author)
}

func TestEdit_ReplyPrecedesLogs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createClientTicket(t, acmeClient)
	h.events.reset()

	status := domain.TicketStatusAwaitingReply
	_, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{
		Status:       &status,
		ActorStaffID: domain.Int64Ptr(aliceID),
		Details:      "We are looking into it.",
	})
	require.NoError(t, err)

	thread := h.thread(t, ticket.ID)
	require.Len(t, thread, 3)
	// Same timestamp: newest-first falls back to id, so the log is on top.
	assert.Equal(t, domain.ReplyTypeLog, thread[0].Type)
	assert.Equal(t, domain.ReplyTypeReply, thread[1].Type)
	assert.Equal(t, domain.StaffAuthor(aliceID), thread[1].Author)
	assert.Less(t, thread[1].ID, thread[0].ID)

	assert.Equal(t, []events.EventType{events.EventTicketReplyAdded}, h.events.types())
}

func TestEdit_SignatureOnlyDetailsOnlyLogs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createClientTicket(t, acmeClient)
	h.events.reset()

	status := domain.TicketStatusInProgress
	edited, err := h.tickets.Edit(ctx, ticket.ID, TicketChanges{
		Status:       &status,
		ActorStaffID: domain.Int64Ptr(aliceID),
		Author:       domain.StaffAuthor(aliceID),
		Details:      " -- Alice\n",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, edited.Status)

	thread := h.thread(t, ticket.ID)
	require.Len(t, thread, 2)
	assert.Equal(t, []string{"Status changed from open to in_progress"}, logLines(thread))
	assert.Empty(t, h.events.types())
}

func TestEditMultiple_AllOrNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.createClientTicket(t, acmeClient)
	second := h.createClientTicket(t, globexClient)

	// The shared service belongs to acme, so the globex ticket fails validation and
	// neither ticket changes.
	priority := domain.TicketPriorityHigh
	_, err := h.tickets.EditMultiple(ctx, []int64{first.ID, second.ID},
		TicketChanges{Priority: &priority, ServiceID: domain.Int64Ptr(acmeService)}, nil)
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonServiceNotOwned))

	for _, id := range []int64{first.ID, second.ID} {
		details, err := h.tickets.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketPriorityMedium, details.Ticket.Priority)
		assert.Nil(t, details.Ticket.ServiceID)
	}

	// A per-ticket override fixes the conflict.
	out, err := h.tickets.EditMultiple(ctx, []int64{first.ID, second.ID},
		TicketChanges{Priority: &priority, ServiceID: domain.Int64Ptr(acmeService)},
		map[int64]TicketChanges{second.ID: {ServiceID: domain.Int64Ptr(globexService)}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, acmeService, *out[0].ServiceID)
	assert.Equal(t, globexService, *out[1].ServiceID)
	assert.Equal(t, domain.TicketPriorityHigh, out[1].Priority)
}

func TestEditMultiple_RequiresTickets(t *testing.T) {
	h := newHarness(t)
	_, err := h.tickets.EditMultiple(context.Background(), nil, TicketChanges{}, nil)
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonTicketIDsRequired))
}

func TestEdit_DepartmentOfAnotherCompany(t *testing.T) {
	h := newHarness(t)
	ticket := h.createEmailTicket(t, "someone@example.com")

	foreign := foreignDept
	_, err := h.tickets.Edit(context.Background(), ticket.ID, TicketChanges{DepartmentID: &foreign})
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonDepartmentCompany))
}

func TestEdit_UnknownTicket(t *testing.T) {
	h := newHarness(t)
	_, err := h.tickets.Edit(context.Background(), 12345, TicketChanges{})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestReply_AutomaticTransition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	billing := domain.Department{ID: billingDept, CompanyID: companyID, Name: "Billing", AutomaticTransition: true}
	h.store.PutDepartment(billing)
	ticket := h.createEmailTicket(t, "someone@example.com")

	_, out, err := h.tickets.Reply(ctx, ticket.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Refund issued."})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAwaitingReply, out.Status)

	_, out, err = h.tickets.Reply(ctx, ticket.ID, ReplyInput{Type: domain.ReplyTypeNote, Author: domain.StaffAuthor(aliceID), Details: "internal"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAwaitingReply, out.Status, "notes never transition")

	_, out, err = h.tickets.Reply(ctx, ticket.ID, ReplyInput{Author: domain.ClientAuthor(), Details: "Thanks, still waiting."})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, out.Status)

	hold := domain.TicketStatusOnHold
	_, err = h.tickets.Edit(ctx, ticket.ID, TicketChanges{Status: &hold})
	require.NoError(t, err)
	_, out, err = h.tickets.Reply(ctx, ticket.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "On it."})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOnHold, out.Status)

	assert.Contains(t, logLines(h.thread(t, ticket.ID)), "Status changed from open to awaiting_reply")
}

func TestReply_WithoutAutomaticTransitionKeepsStatus(t *testing.T) {
	h := newHarness(t)
	ticket := h.createEmailTicket(t, "someone@example.com")

	_, out, err := h.tickets.Reply(context.Background(), ticket.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, out.Status)
}

func TestDelete_RemovesTicketsAndFiles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "someone@example.com")
	_, err := h.threads.AddReply(ctx, ticket.ID, ReplyInput{
		Author:      domain.StaffAuthor(aliceID),
		Details:     "see attached",
		Attachments: []AttachmentInput{{Name: "log.txt", Data: []byte("x")}},
	})
	require.NoError(t, err)

	require.NoError(t, h.tickets.Delete(ctx, []int64{ticket.ID}))

	_, err = h.tickets.Get(ctx, ticket.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	assert.Equal(t, h.files.written, h.files.deleted)

	assert.True(t, apperrors.IsReason(h.tickets.Delete(ctx, nil), apperrors.ReasonTicketIDsRequired))
}

func TestStorageFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "someone@example.com")
	h.events.reset()

	h.store.FailOn("tickets.update", errors.New("connection reset"))
	_, err := h.threads.AddReply(ctx, ticket.ID, ReplyInput{Author: domain.StaffAuthor(aliceID), Details: "hello"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStorage))
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonStorageFailure))

	h.store.FailOn("tickets.update", nil)
	assert.Len(t, h.thread(t, ticket.ID), 1)
	assert.Empty(t, h.events.types())
}

func TestList_FiltersAndOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.createEmailTicket(t, "a@example.com")
	h.clock.Advance(time.Minute)
	second := h.createEmailTicket(t, "b@example.com")
	h.clock.Advance(time.Minute)
	h.createClientTicket(t, acmeClient)

	billing := billingDept
	tickets, err := h.tickets.List(ctx, repository.TicketFilter{DepartmentID: &billing})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, second.ID, tickets[0].ID)
	assert.Equal(t, first.ID, tickets[1].ID)

	paged, err := h.tickets.List(ctx, repository.TicketFilter{DepartmentID: &billing, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, first.ID, paged[0].ID)
}
