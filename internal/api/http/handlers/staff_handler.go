package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/service"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// StaffHandler exposes staff authentication.
type StaffHandler struct {
	authService *service.AuthService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService) *StaffHandler {
	return &StaffHandler{authService: authService}
}

// Login handles POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidPayload(err)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError(apperrors.ReasonInvalidPayload, "email and password required", nil)
	}

	result, err := h.authService.LoginStaff(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"staff": staffResponse(result.Staff),
			"auth":  dto.AuthResponse{Token: result.Token, ExpiresAt: result.ExpiresAt},
		},
	})
}

func staffResponse(staff *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:        staff.ID,
		CompanyID: staff.CompanyID,
		Name:      staff.Name,
		Email:     staff.Email,
	}
}

func invalidPayload(err error) error {
	return apperrors.NewValidationError(apperrors.ReasonInvalidPayload, "invalid payload",
		map[string]any{"cause": err.Error()})
}
