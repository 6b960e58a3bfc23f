package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// StaffTicketsHandler handles thread reads and the merge and split operations.
type StaffTicketsHandler struct {
	threads *service.ThreadService
	merges  *service.MergeService
}

// NewStaffTicketsHandler constructs handler.
func NewStaffTicketsHandler(threads *service.ThreadService, merges *service.MergeService) *StaffTicketsHandler {
	return &StaffTicketsHandler{threads: threads, merges: merges}
}

// ListReplies GET /tickets/:id/replies.
func (h *StaffTicketsHandler) ListReplies(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	replies, err := h.threads.Thread(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.ReplyResponse, 0, len(replies))
	for i := range replies {
		items = append(items, replyResponse(&replies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// MergeTickets POST /tickets/:id/merge.
func (h *StaffTicketsHandler) MergeTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	ticket, err := h.merges.Merge(c.UserContext(), id, req.SourceIDs, principal.StaffID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// SplitTicket POST /tickets/:id/split.
func (h *StaffTicketsHandler) SplitTicket(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.SplitRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	ticket, err := h.merges.Split(c.UserContext(), id, req.ReplyIDs)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}
