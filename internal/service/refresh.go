package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/atrium-auth/internal/audit"
	"github.com/smallbiznis/atrium-auth/internal/domain"
	"github.com/smallbiznis/atrium-auth/internal/repository"
)

// Refresh rotates a refresh token: the presented token's record is revoked
// and a new pair is issued atomically. Every failure branch emits a
// SessionExpired-class audit event with the real reason, then returns the
// same uniform unauthorized error.
func (s *AuthService) Refresh(ctx context.Context, meta Meta, refreshToken string) (sess Session, err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	defer func(started time.Time) { s.observe("refresh", started, err) }(s.now())

	claims, validateErr := s.codec.ValidateRefresh(refreshToken)
	if validateErr != nil {
		s.sessionExpired(ctx, meta, "", 0, "invalid_token")
		return Session{}, errUnauthorized()
	}

	record, findErr := s.repos.Tokens.FindLiveByID(ctx, claims.TokenID, claims.UserID)
	if findErr != nil {
		if !errors.Is(findErr, domain.ErrNotFound) {
			s.logger.Error("refresh token lookup failed", zap.Error(findErr))
		}
		s.sessionExpired(ctx, meta, claims.TokenID, claims.UserID, "token_not_found_or_revoked")
		return Session{}, errUnauthorized()
	}

	if !record.Live(s.now()) {
		// Expired but unrevoked: retire the record as a side effect so it
		// can never be confused for a live session again.
		if revokeErr := s.repos.Tokens.Revoke(ctx, record.ID); revokeErr != nil && !errors.Is(revokeErr, domain.ErrTokenRevoked) {
			s.logger.Warn("expired token revoke failed", zap.String("token_id", record.ID), zap.Error(revokeErr))
		}
		s.sessionExpired(ctx, meta, record.ID, record.UserID, "expired")
		return Session{}, errUnauthorized()
	}

	if !s.hasher.Verify(record.TokenHash, refreshToken) {
		// A valid signature with a mismatched stored hash means the token
		// id was reused with foreign material; kill the record.
		if revokeErr := s.repos.Tokens.Revoke(ctx, record.ID); revokeErr != nil && !errors.Is(revokeErr, domain.ErrTokenRevoked) {
			s.logger.Warn("mismatched token revoke failed", zap.String("token_id", record.ID), zap.Error(revokeErr))
		}
		s.sessionExpired(ctx, meta, record.ID, record.UserID, "hash_mismatch")
		return Session{}, errUnauthorized()
	}

	user, userErr := s.repos.Users.GetByID(ctx, record.UserID)
	if userErr != nil {
		s.sessionExpired(ctx, meta, record.ID, record.UserID, "user_missing")
		return Session{}, errUnauthorized()
	}
	if !user.IsActive {
		s.sessionExpired(ctx, meta, record.ID, record.UserID, "account_inactive")
		return Session{}, errUnauthorized()
	}

	newTokenID := uuid.NewString()
	var pair domain.TokenPair
	txErr := s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		// The conditional revoke is the rotation's concurrency gate: of two
		// concurrent refreshes of one token, exactly one revokes the row.
		if revokeErr := r.Tokens.Revoke(ctx, record.ID); revokeErr != nil {
			return revokeErr
		}
		var mintErr error
		pair, mintErr = s.mintSession(ctx, r.Tokens, user, newTokenID)
		return mintErr
	})
	if txErr != nil {
		if errors.Is(txErr, domain.ErrTokenRevoked) {
			s.sessionExpired(ctx, meta, record.ID, record.UserID, "rotation_race_lost")
			return Session{}, errUnauthorized()
		}
		s.logger.Error("refresh rotation failed", zap.String("token_id", record.ID), zap.Error(txErr))
		return Session{}, errAuthFailed()
	}

	actx := meta.auditContext()
	actx.SessionID = newTokenID
	actx.UserID = user.ID
	actx.OrgID = user.OrgID
	s.record(ctx, audit.RefreshTokenRevoked, actx, map[string]string{
		"refresh_token_id": record.ID,
		"reason":           "rotated",
	})
	s.record(ctx, audit.TokenRefreshed, actx, map[string]string{
		"old_refresh_token_id": record.ID,
		"new_refresh_token_id": newTokenID,
	})

	var org *domain.Organization
	if user.HasOrg() {
		if found, orgErr := s.repos.Orgs.GetByID(ctx, user.OrgID); orgErr == nil {
			org = &found
		}
	}
	return Session{Pair: pair, User: user, Org: org}, nil
}

// Logout ends every live session for the token's user (all-devices).
// Presenting an already-revoked token fails exactly like an invalid one so
// logout cannot be used as a liveness oracle.
func (s *AuthService) Logout(ctx context.Context, meta Meta, refreshToken string) (err error) {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	defer func(started time.Time) { s.observe("logout", started, err) }(s.now())

	claims, validateErr := s.codec.ValidateRefresh(refreshToken)
	if validateErr != nil {
		s.sessionExpired(ctx, meta, "", 0, "invalid_token")
		return errUnauthorized()
	}

	record, findErr := s.repos.Tokens.FindLiveByID(ctx, claims.TokenID, claims.UserID)
	if findErr != nil {
		if !errors.Is(findErr, domain.ErrNotFound) {
			s.logger.Error("logout token lookup failed", zap.Error(findErr))
		}
		s.sessionExpired(ctx, meta, claims.TokenID, claims.UserID, "token_not_found_or_revoked")
		return errUnauthorized()
	}

	user, userErr := s.repos.Users.GetByID(ctx, record.UserID)
	if userErr != nil {
		s.sessionExpired(ctx, meta, record.ID, record.UserID, "user_missing")
		return errUnauthorized()
	}

	var revoked []domain.RefreshToken
	txErr := s.tx.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		live, listErr := r.Tokens.ListLiveByUser(ctx, user.ID)
		if listErr != nil {
			return listErr
		}
		if _, revokeErr := r.Tokens.RevokeAllForUser(ctx, user.ID); revokeErr != nil {
			return revokeErr
		}
		revoked = live
		return nil
	})
	if txErr != nil {
		s.logger.Error("logout revocation failed", zap.Int64("user_id", user.ID), zap.Error(txErr))
		return errAuthFailed()
	}

	actx := meta.auditContext()
	actx.SessionID = record.ID
	actx.UserID = user.ID
	actx.OrgID = user.OrgID
	s.record(ctx, audit.UserLogout, actx, map[string]string{
		"sessions_ended": strconv.Itoa(len(revoked)),
	})
	s.record(ctx, audit.AuthSessionEnded, actx, map[string]string{
		"refresh_token_id": record.ID,
	})
	for _, tok := range revoked {
		s.record(ctx, audit.RefreshTokenRevoked, actx, map[string]string{
			"refresh_token_id": tok.ID,
			"reason":           "logout",
		})
	}
	return nil
}

// sessionExpired emits the audit event shared by every refresh/logout
// failure branch.
func (s *AuthService) sessionExpired(ctx context.Context, meta Meta, tokenID string, userID int64, reason string) {
	actx := meta.auditContext()
	actx.SessionID = tokenID
	actx.UserID = userID
	payload := map[string]string{"reason": reason}
	if tokenID != "" {
		payload["refresh_token_id"] = tokenID
	}
	s.record(ctx, audit.SessionExpired, actx, payload)
}
