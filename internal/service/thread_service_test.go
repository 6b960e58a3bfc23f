package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

func TestAddReply_SignatureOnlyIsEmpty(t *testing.T) {
	h := newHarness(t)
	ticket := h.createClientTicket(t, acmeClient)

	_, err := h.threads.AddReply(context.Background(), ticket.ID, ReplyInput{
		Author:  domain.StaffAuthor(aliceID),
		Details: "  -- Alice \n",
	})
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonDetailsRequired))

	reply, err := h.threads.AddReply(context.Background(), ticket.ID, ReplyInput{
		Author:  domain.StaffAuthor(aliceID),
		Details: "Rebooted.\n-- Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "Rebooted.\n-- Alice", reply.Details)
}

func TestAddReply_ContactMustBelongToClient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acme := h.createClientTicket(t, acmeClient)
	globex := h.createClientTicket(t, globexClient)
	email := h.createEmailTicket(t, "someone@example.com")

	reply, err := h.threads.AddReply(ctx, acme.ID, ReplyInput{Author: domain.ContactAuthor(acmeContact), Details: "me too"})
	require.NoError(t, err)
	assert.Equal(t, domain.ContactAuthor(acmeContact), reply.Author)

	for _, id := range []int64{globex.ID, email.ID} {
		_, err = h.threads.AddReply(ctx, id, ReplyInput{Author: domain.ContactAuthor(acmeContact), Details: "hi"})
		assert.True(t, apperrors.IsReason(err, apperrors.ReasonContactNotOwned))
	}

	_, err = h.threads.AddReply(ctx, acme.ID, ReplyInput{Author: domain.ContactAuthor(999), Details: "hi"})
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonContactNotOwned))
}

func TestAddReply_RejectsLogType(t *testing.T) {
	h := newHarness(t)
	ticket := h.createEmailTicket(t, "someone@example.com")

	_, err := h.threads.AddReply(context.Background(), ticket.ID, ReplyInput{
		Author:  domain.StaffAuthor(aliceID),
		Type:    domain.ReplyTypeLog,
		Details: "Status changed from open to closed",
	})
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonInvalidReplyType))
}

func TestAddReply_UnknownStaffAuthor(t *testing.T) {
	h := newHarness(t)
	ticket := h.createEmailTicket(t, "someone@example.com")

	_, err := h.threads.AddReply(context.Background(), ticket.ID, ReplyInput{Author: domain.StaffAuthor(404), Details: "hi"})
	assert.True(t, apperrors.IsReason(err, apperrors.ReasonStaffNotFound))
}

func TestAddReply_AttachmentFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "someone@example.com")
	h.events.reset()
	h.files.failOn = "second.png"

	_, err := h.threads.AddReply(ctx, ticket.ID, ReplyInput{
		Author:  domain.StaffAuthor(aliceID),
		Details: "screenshots",
		Attachments: []AttachmentInput{
			{Name: "first.png", Data: []byte{1}},
			{Name: "second.png", Data: []byte{2}},
		},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAttachment))

	assert.Equal(t, []string{"/files/1-first.png"}, h.files.written)
	assert.Equal(t, h.files.written, h.files.deleted)
	assert.Len(t, h.thread(t, ticket.ID), 1)
	assert.Empty(t, h.events.types())
}

func TestAddReply_StoresAttachmentsAndEmits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ticket := h.createEmailTicket(t, "someone@example.com")
	h.events.reset()

	h.clock.Advance(time.Second)
	reply, err := h.threads.AddReply(ctx, ticket.ID, ReplyInput{
		Author:      domain.StaffAuthor(bobID),
		Type:        domain.ReplyTypeNote,
		Details:     "internal only",
		Attachments: []AttachmentInput{{Name: "trace.log", Data: []byte("x")}},
	})
	require.NoError(t, err)
	require.Len(t, reply.Attachments, 1)
	assert.Equal(t, "trace.log", reply.Attachments[0].Name)

	thread := h.thread(t, ticket.ID)
	require.Len(t, thread, 2)
	assert.Equal(t, reply.ID, thread[0].ID)
	assert.Len(t, thread[0].Attachments, 1)

	assert.Equal(t, []events.EventType{events.EventTicketReplyAdded}, h.events.types())
	details, err := h.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, details.Ticket.Status, "AddReply never transitions")
	assert.True(t, details.Ticket.DateUpdated.After(ticket.DateUpdated))
}

func TestThread_UnknownTicket(t *testing.T) {
	h := newHarness(t)
	_, err := h.threads.Thread(context.Background(), 42)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
