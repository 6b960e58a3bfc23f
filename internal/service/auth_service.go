package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// LoginResult is a successful staff login.
type LoginResult struct {
	Staff     *domain.StaffMember
	Token     string
	ExpiresAt time.Time
}

// AuthService authenticates staff members.
type AuthService struct {
	staff    repository.StaffRepository
	tokenMgr *auth.TokenManager
	logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, staff repository.StaffRepository, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		staff:    staff,
		tokenMgr: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		logger:   logger,
	}
}

// LoginStaff checks credentials and issues an access token. Unknown emails, inactive
// accounts and wrong passwords all yield the same error.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*LoginResult, error) {
	invalid := apperrors.NewDomainError(apperrors.CodeUnauth, apperrors.ReasonCredentialsInvalid,
		"invalid credentials", http.StatusUnauthorized, nil)

	staff, err := s.staff.GetByEmail(ctx, strings.TrimSpace(strings.ToLower(email)))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, apperrors.NewStorageError(err)
	}
	if !staff.Active {
		s.logger.Info("inactive staff login rejected", zap.Int64("staff_id", staff.ID))
		return nil, invalid
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, invalid
	}

	token, exp, err := s.tokenMgr.GenerateToken(staff.ID, staff.CompanyID)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{Staff: staff, Token: token, ExpiresAt: exp}, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
