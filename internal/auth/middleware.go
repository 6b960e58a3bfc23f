package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal is the authenticated staff member.
type Principal struct {
	Staff *domain.StaffMember
}

// Author returns the thread author the principal writes as.
func (p *Principal) Author() domain.Author {
	return domain.StaffAuthor(p.Staff.ID)
}

// StaffID returns a pointer suitable for actor fields.
func (p *Principal) StaffID() *int64 {
	id := p.Staff.ID
	return &id
}

// AuthMiddleware validates bearer tokens and loads the staff principal.
type AuthMiddleware struct {
	tokens *TokenManager
	staff  repository.StaffRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	staffID, _ := claims.StaffID()

	staff, err := m.staff.GetByID(c.UserContext(), staffID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized("staff not found")
		}
		return apperrors.NewStorageError(err)
	}
	if !staff.Active {
		return apperrors.NewForbidden("staff member is inactive")
	}

	c.Locals(principalKey, &Principal{Staff: staff})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated staff member.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok && principal.Staff != nil
}
