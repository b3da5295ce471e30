package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/atrium-auth/internal/audit"
	"github.com/smallbiznis/atrium-auth/internal/domain"
	"github.com/smallbiznis/atrium-auth/internal/repository"
)

// Login authenticates an email/password pair and opens a new session.
// Every pre-issuance failure collapses to a small set of generic errors;
// the categorized reason goes to the audit trail only.
func (s *AuthService) Login(ctx context.Context, meta Meta, email, pass string) (sess Session, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	defer func(started time.Time) { s.observe("login", started, err) }(s.now())

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || pass == "" {
		s.loginFailed(ctx, meta, email, 0, "missing_credentials")
		return Session{}, errInvalidCredentials()
	}

	user, lookupErr := s.repos.Users.GetByEmail(ctx, email)
	if lookupErr != nil {
		if !errors.Is(lookupErr, domain.ErrNotFound) {
			s.logger.Error("login user lookup failed", zap.Error(lookupErr))
		}
		s.loginFailed(ctx, meta, email, 0, "user_not_found")
		return Session{}, errInvalidCredentials()
	}
	if !user.IsActive {
		s.loginFailed(ctx, meta, email, user.ID, "account_inactive")
		return Session{}, errAccountInactive()
	}

	var org *domain.Organization
	if user.HasOrg() {
		found, orgErr := s.repos.Orgs.GetByID(ctx, user.OrgID)
		if orgErr != nil || !found.IsActive {
			s.loginFailed(ctx, meta, email, user.ID, "organization_inactive")
			return Session{}, errOrgInactive()
		}
		org = &found
	}

	if !s.hasher.Verify(user.PasswordHash, pass) {
		s.loginFailed(ctx, meta, email, user.ID, "invalid_password")
		return Session{}, errInvalidCredentials()
	}

	refreshTokenID := uuid.NewString()
	var pair domain.TokenPair
	txErr := s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		var mintErr error
		pair, mintErr = s.mintSession(ctx, r.Tokens, user, refreshTokenID)
		return mintErr
	})
	if txErr != nil {
		s.logger.Error("login session mint failed", zap.Int64("user_id", user.ID), zap.Error(txErr))
		return Session{}, errAuthFailed()
	}

	actx := meta.auditContext()
	actx.SessionID = refreshTokenID
	actx.UserID = user.ID
	actx.OrgID = user.OrgID
	s.record(ctx, audit.UserLoggedIn, actx, map[string]string{
		"email_hash": audit.HashPII(email),
	})
	s.record(ctx, audit.AuthSessionCreated, actx, map[string]string{
		"refresh_token_id": refreshTokenID,
		"expires_at":       pair.RefreshExpiresAt.UTC().Format(timeLayout),
	})

	return Session{Pair: pair, User: user, Org: org}, nil
}

// loginFailed emits the best-effort UserLoginFailed event. The email enters
// the trail hashed, never plaintext.
func (s *AuthService) loginFailed(ctx context.Context, meta Meta, email string, userID int64, reason string) {
	actx := meta.auditContext()
	actx.UserID = userID
	s.record(ctx, audit.UserLoginFailed, actx, map[string]string{
		"email_hash": audit.HashPII(email),
		"reason":     reason,
	})
}
