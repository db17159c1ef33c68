package service

import (
	"context"
	"crypto/subtle"
	"device-loan-api/internal/model"
	"device-loan-api/internal/repository"
	"device-loan-api/pkg/auth"
	"device-loan-api/pkg/errors"
	"device-loan-api/pkg/logger"
	"strings"
	"time"
)

const (
	defaultLoginListLimit = 50
	maxLoginListLimit     = 500
)

// AdminCredentials is the single configured admin account
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// AuthService checks admin credentials, issues tokens and keeps the login audit trail
type AuthService struct {
	admins repository.AdminRepository
	creds  AdminCredentials
	tokens auth.TokenConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewAuthService(admins repository.AdminRepository, creds AdminCredentials, tokens auth.TokenConfig, log *logger.Logger) *AuthService {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthService{admins: admins, creds: creds, tokens: tokens, logger: log, now: time.Now}
}

// SetClock replaces the time source used for audit rows and token issue times
func (s *AuthService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login verifies the credentials and returns a signed token. Every attempt,
// successful or not, is recorded before the result is returned.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest, remoteAddr string) (*model.LoginResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, errors.ValidationError("username and password are required")
	}

	// bcrypt runs even on a username mismatch so both failures take the same time
	passwordOK, err := auth.CheckPassword(s.creds.PasswordHash, req.Password)
	if err != nil {
		return nil, errors.InternalError("admin password hash is invalid", err)
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.creds.Username)) == 1
	succeeded := userOK && passwordOK

	now := s.now()
	ctx = s.logger.WithFields(ctx, map[string]any{"username": username, "remote_addr": remoteAddr})
	if err := s.admins.RecordLogin(ctx, model.AdminLogin{
		Username:   username,
		Succeeded:  succeeded,
		RemoteAddr: remoteAddr,
		LoginTime:  now,
	}); err != nil {
		return nil, errors.DatabaseError("failed to record admin login", err)
	}

	if !succeeded {
		s.logger.Warn(ctx, "admin.login_failed")
		return nil, errors.UnauthorizedError("invalid username or password")
	}

	token, expiresAt, err := auth.MintAdminToken(s.tokens, now, s.creds.Username)
	if err != nil {
		return nil, errors.InternalError("failed to issue admin token", err)
	}

	s.logger.Info(ctx, "admin.login")
	return &model.LoginResult{Token: token, ExpiresAt: expiresAt}, nil
}

// Verify validates an admin bearer token and returns the admin username
func (s *AuthService) Verify(token string) (string, error) {
	claims, err := auth.ParseAdminToken(s.tokens, token)
	if err != nil {
		return "", errors.NewAppErrorWithCause(errors.ErrorCodeUnauthorized, "invalid or expired token", err)
	}
	return claims.Username, nil
}

// RecentLogins returns the latest login attempts, newest first
func (s *AuthService) RecentLogins(ctx context.Context, limit int) ([]model.AdminLogin, error) {
	switch {
	case limit <= 0:
		limit = defaultLoginListLimit
	case limit > maxLoginListLimit:
		limit = maxLoginListLimit
	}
	logins, err := s.admins.ListLogins(ctx, limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to retrieve admin logins", err)
	}
	return logins, nil
}
