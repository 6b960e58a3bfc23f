package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/service"
)

// AutomationHandler triggers department automation on demand.
type AutomationHandler struct {
	automation *service.AutomationService
}

// NewAutomationHandler constructs handler.
func NewAutomationHandler(automation *service.AutomationService) *AutomationHandler {
	return &AutomationHandler{automation: automation}
}

// RunDepartment POST /departments/:id/automation.
func (h *AutomationHandler) RunDepartment(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	result, err := h.automation.RunTick(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AutomationResponse{
		Closed:    result.Closed,
		Deleted:   result.Deleted,
		Reminders: result.Reminders,
	}})
}
