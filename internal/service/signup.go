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
	"github.com/smallbiznis/atrium-auth/internal/password"
	"github.com/smallbiznis/atrium-auth/internal/repository"
)

// SignupInput is the request to create an organization with its first user.
type SignupInput struct {
	Email          string
	Password       string
	OrgName        string
	OrgSlug        string
	OrgDescription string
}

// conflictError distinguishes duplicate slug from duplicate email inside the
// signup transaction so the right message survives the rollback.
type conflictError struct {
	authErr *AuthError
}

func (e *conflictError) Error() string { return e.authErr.Error() }

// Signup creates an organization, its owner user and an initial session in
// one transaction. The uniqueness pre-checks run inside the same transaction
// as the writes; the unique constraints on organizations.slug and
// users.email remain the authoritative guard against the check-then-insert
// race.
func (s *AuthService) Signup(ctx context.Context, meta Meta, in SignupInput) (sess Session, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Signup")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	defer func(started time.Time) { s.observe("signup", started, err) }(s.now())

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.OrgSlug = strings.ToLower(strings.TrimSpace(in.OrgSlug))
	in.OrgName = strings.TrimSpace(in.OrgName)

	var violations []string
	if in.Email == "" {
		violations = append(violations, "email is required")
	}
	if in.OrgSlug == "" {
		violations = append(violations, "organization slug is required")
	}
	if in.OrgName == "" {
		violations = append(violations, "organization name is required")
	}
	if strength := password.CheckStrength(in.Password); !strength.Valid {
		violations = append(violations, strength.Errors...)
	}
	if len(violations) > 0 {
		return Session{}, errValidation(violations)
	}

	// Hash before opening the transaction: the KDF is the expensive step
	// and must not hold a database transaction open.
	passwordHash, hashErr := s.hasher.Hash(in.Password)
	if hashErr != nil {
		s.logger.Error("signup password hash failed", zap.Error(hashErr))
		return Session{}, errSignupFailed()
	}

	org := domain.Organization{
		ID:          s.node.Generate().Int64(),
		Slug:        in.OrgSlug,
		Name:        in.OrgName,
		Description: in.OrgDescription,
		IsActive:    true,
	}
	user := domain.User{
		ID:            s.node.Generate().Int64(),
		OrgID:         org.ID,
		Email:         in.Email,
		EmailVerified: s.autoActivate,
		PasswordHash:  passwordHash,
		IsActive:      s.autoActivate,
		Role:          "owner",
	}
	refreshTokenID := uuid.NewString()

	var pair domain.TokenPair
	txErr := s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		availability, checkErr := r.Orgs.CheckSlugAvailable(ctx, in.OrgSlug)
		if checkErr != nil {
			return checkErr
		}
		if !availability.IsAvailable {
			return &conflictError{authErr: errConflict("Organization slug is already taken.", map[string]any{
				"errors":      availability.Errors,
				"suggestions": availability.Suggestions,
			})}
		}

		taken, takenErr := r.Users.EmailTaken(ctx, in.Email)
		if takenErr != nil {
			return takenErr
		}
		if taken {
			return &conflictError{authErr: errConflict("Email is already registered.", map[string]any{
				"errors": []string{"an account with this email already exists"},
			})}
		}

		if _, createErr := r.Orgs.Create(ctx, org); createErr != nil {
			return createErr
		}
		if _, createErr := r.Users.Create(ctx, user); createErr != nil {
			return createErr
		}

		var mintErr error
		pair, mintErr = s.mintSession(ctx, r.Tokens, user, refreshTokenID)
		return mintErr
	})
	if txErr != nil {
		var conflict *conflictError
		if errors.As(txErr, &conflict) {
			return Session{}, conflict.authErr
		}
		if errors.Is(txErr, domain.ErrAlreadyExists) {
			// Lost the race to a concurrent signup; the constraint, not
			// the pre-check, caught it.
			return Session{}, errConflict("Organization slug or email is already taken.", nil)
		}
		s.logger.Error("signup transaction failed", zap.String("slug", in.OrgSlug), zap.Error(txErr))
		return Session{}, errSignupFailed()
	}

	actx := meta.auditContext()
	actx.SessionID = refreshTokenID
	actx.UserID = user.ID
	actx.OrgID = org.ID
	s.record(ctx, audit.OrganizationCreated, actx, map[string]string{
		"slug": org.Slug,
	})
	s.record(ctx, audit.UserCreated, actx, map[string]string{
		"email_hash": audit.HashPII(in.Email),
		"role":       user.Role,
	})
	s.record(ctx, audit.OrganizationSignupComplete, actx, map[string]string{
		"slug": org.Slug,
	})
	s.record(ctx, audit.AuthSessionCreated, actx, map[string]string{
		"refresh_token_id": refreshTokenID,
		"expires_at":       pair.RefreshExpiresAt.UTC().Format(timeLayout),
	})

	return Session{Pair: pair, User: user, Org: &org}, nil
}
