package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/service"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// TicketsHandler manages the staff ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}

	ticket, err := h.service.Create(c.UserContext(), service.CreateTicketInput{
		DepartmentID: req.DepartmentID,
		StaffID:      req.StaffID,
		ServiceID:    req.ServiceID,
		ClientID:     req.ClientID,
		Email:        req.Email,
		Summary:      req.Summary,
		Priority:     req.Priority,
		Status:       req.Status,
		Author:       authorFor(principal, req.Author),
		Details:      req.Details,
		Attachments:  attachmentInputs(req.Attachments),
		Fields:       req.Fields,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.List(c.UserContext(), parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	details, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(details)})
}

// EditTicket PATCH /tickets/:id.
func (h *TicketsHandler) EditTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.EditTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	ticket, err := h.service.Edit(c.UserContext(), id, ticketChanges(principal, req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// EditMultiple PATCH /tickets.
func (h *TicketsHandler) EditMultiple(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.EditMultipleRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	perTicket := make(map[int64]service.TicketChanges, len(req.PerTicket))
	for id, changes := range req.PerTicket {
		perTicket[id] = ticketChanges(principal, changes)
	}
	tickets, err := h.service.EditMultiple(c.UserContext(), req.TicketIDs, ticketChanges(principal, req.Changes), perTicket)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// DeleteTickets DELETE /tickets.
func (h *TicketsHandler) DeleteTickets(c *fiber.Ctx) error {
	var req dto.TicketIDsRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	if err := h.service.Delete(c.UserContext(), req.TicketIDs); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ticket, err := h.service.Close(c.UserContext(), id, principal.StaffID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// AddReply POST /tickets/:id/replies.
func (h *TicketsHandler) AddReply(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	reply, ticket, err := h.service.Reply(c.UserContext(), id, service.ReplyInput{
		Author:      authorFor(principal, req.Author),
		Type:        req.Type,
		Details:     req.Details,
		Attachments: attachmentInputs(req.Attachments),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"reply":  replyResponse(reply),
		"ticket": ticketResponse(ticket),
	}})
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return principal, nil
}

func pathID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError(apperrors.ReasonInvalidPayload, "invalid "+name,
			map[string]any{name: c.Params(name)})
	}
	return id, nil
}

// authorFor defaults the author to the calling staff member.
func authorFor(principal *auth.Principal, req *dto.AuthorRequest) domain.Author {
	if req == nil || req.Kind == "" {
		return principal.Author()
	}
	return domain.Author{Kind: req.Kind, ID: req.ID}
}

func ticketChanges(principal *auth.Principal, req dto.EditTicketRequest) service.TicketChanges {
	changes := service.TicketChanges{
		DepartmentID: req.DepartmentID,
		StaffID:      req.StaffID,
		ClearStaff:   req.ClearStaff,
		ServiceID:    req.ServiceID,
		ClearService: req.ClearService,
		ClientID:     req.ClientID,
		Email:        req.Email,
		Summary:      req.Summary,
		Priority:     req.Priority,
		Status:       req.Status,
		DateClosed:   req.DateClosed,
		ActorStaffID: principal.StaffID(),
		ReplyType:    req.ReplyType,
		Details:      req.Details,
		Attachments:  attachmentInputs(req.Attachments),
		Silent:       req.Silent,
		Fields:       req.Fields,
	}
	if req.Details != "" || len(req.Attachments) > 0 {
		changes.Author = principal.Author()
	}
	return changes
}

func attachmentInputs(reqs []dto.AttachmentRequest) []service.AttachmentInput {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]service.AttachmentInput, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, service.AttachmentInput{Name: r.Name, Data: r.Data})
	}
	return out
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{
		DepartmentID: queryID(c, "department_id"),
		StaffID:      queryID(c, "staff_id"),
		ClientID:     queryID(c, "client_id"),
	}
	for _, part := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(part))
	}
	for _, part := range splitList(c.Query("priority")) {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(part))
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryID(c *fiber.Ctx, key string) *int64 {
	id, err := strconv.ParseInt(c.Query(key), 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           ticket.ID,
		Code:         ticket.Code,
		DepartmentID: ticket.DepartmentID,
		StaffID:      ticket.StaffID,
		ServiceID:    ticket.ServiceID,
		ClientID:     ticket.ClientID,
		Email:        ticket.Email,
		Summary:      ticket.Summary,
		Priority:     ticket.Priority,
		Status:       ticket.Status,
		DateAdded:    ticket.DateAdded,
		DateUpdated:  ticket.DateUpdated,
		DateClosed:   ticket.DateClosed,
	}
}

func ticketDetail(details *service.TicketDetails) dto.TicketDetailResponse {
	replies := make([]dto.ReplyResponse, 0, len(details.Replies))
	for i := range details.Replies {
		replies = append(replies, replyResponse(&details.Replies[i]))
	}
	fields := make([]dto.FieldValueResponse, 0, len(details.Fields))
	for _, f := range details.Fields {
		fields = append(fields, dto.FieldValueResponse{
			FieldID: f.Field.ID,
			Label:   f.Field.Label,
			Type:    f.Field.Type,
			Value:   f.Value,
		})
	}
	return dto.TicketDetailResponse{
		TicketResponse: ticketResponse(&details.Ticket),
		Replies:        replies,
		Fields:         fields,
	}
}

func replyResponse(reply *domain.ReplyEntry) dto.ReplyResponse {
	attachments := make([]dto.AttachmentResponse, 0, len(reply.Attachments))
	for _, att := range reply.Attachments {
		attachments = append(attachments, dto.AttachmentResponse{ID: att.ID, Name: att.Name})
	}
	return dto.ReplyResponse{
		ID:          reply.ID,
		TicketID:    reply.TicketID,
		Author:      reply.Author,
		Type:        reply.Type,
		Details:     reply.Details,
		DateAdded:   reply.DateAdded,
		Attachments: attachments,
	}
}
