package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/atrium-auth/internal/audit"
	"github.com/smallbiznis/atrium-auth/internal/domain"
	"github.com/smallbiznis/atrium-auth/internal/metrics"
	"github.com/smallbiznis/atrium-auth/internal/password"
	"github.com/smallbiznis/atrium-auth/internal/repository"
	"github.com/smallbiznis/atrium-auth/internal/token"
)

// commandTimeout bounds each command handler invocation end to end.
const commandTimeout = 10 * time.Second

// timeLayout is the format used for timestamps in audit payloads.
const timeLayout = time.RFC3339

// Meta carries per-request context captured at the transport boundary.
// IP and user agent reach the audit trail only as one-way hashes.
type Meta struct {
	CorrelationID string
	CausationID   string
	IPAddress     string
	UserAgent     string
}

func (m Meta) auditContext() audit.Context {
	return audit.Context{
		CorrelationID: m.CorrelationID,
		CausationID:   m.CausationID,
		IPHash:        audit.HashPII(m.IPAddress),
		UserAgentHash: audit.HashPII(m.UserAgent),
	}
}

// Session is the successful result of login, signup and refresh: a token
// pair plus the identifiers the caller needs.
type Session struct {
	Pair domain.TokenPair
	User domain.User
	Org  *domain.Organization
}

// AuthService orchestrates the login/signup/refresh/logout command handlers
// over the session store, token codec, credential verifier and audit sink.
type AuthService struct {
	repos   repository.Repositories
	tx      repository.TxManager
	codec   *token.Codec
	hasher  *password.Hasher
	audit   audit.Recorder
	metrics *metrics.Metrics
	node    *snowflake.Node
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	autoActivate bool
}

// NewAuthService wires dependencies. All collaborators are explicit; there
// is no ambient global state beyond the zap fallback logger.
func NewAuthService(
	repos repository.Repositories,
	tx repository.TxManager,
	codec *token.Codec,
	hasher *password.Hasher,
	recorder audit.Recorder,
	m *metrics.Metrics,
	node *snowflake.Node,
	autoActivate bool,
	logger *zap.Logger,
) *AuthService {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		repos:        repos,
		tx:           tx,
		codec:        codec,
		hasher:       hasher,
		audit:        recorder,
		metrics:      m,
		node:         node,
		logger:       logger,
		tracer:       otel.Tracer("github.com/smallbiznis/atrium-auth/internal/service"),
		now:          time.Now,
		autoActivate: autoActivate,
	}
}

// WithClock overrides the time source for tests.
func (s *AuthService) WithClock(fn func() time.Time) *AuthService {
	if fn != nil {
		s.now = fn
	}
	return s
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) observe(command string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		if ae, ok := err.(*AuthError); ok {
			result = ae.Code
		}
	}
	s.metrics.Observe(command, result, time.Since(started).Seconds())
}

// record emits an audit event. Failures can never reach here: the recorder
// contract is fire-and-forget with errors absorbed downstream.
func (s *AuthService) record(ctx context.Context, eventType audit.EventType, actx audit.Context, payload map[string]string) {
	s.audit.Record(ctx, audit.Event{
		Type:       eventType,
		OccurredAt: s.now().UTC(),
		Context:    actx,
		Payload:    payload,
	})
}

// mintSession issues a token pair for the user, hashes the refresh token and
// persists its record inside the supplied repositories (typically bound to
// the caller's transaction).
func (s *AuthService) mintSession(ctx context.Context, tokens repository.TokenRepository, user domain.User, refreshTokenID string) (domain.TokenPair, error) {
	pair, err := s.codec.IssuePair(user.ID, user.OrgID, refreshTokenID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	tokenHash, err := s.hasher.Hash(pair.RefreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}

	record := domain.RefreshToken{
		ID:        refreshTokenID,
		UserID:    user.ID,
		OrgID:     user.OrgID,
		TokenHash: tokenHash,
		ExpiresAt: pair.RefreshExpiresAt,
	}
	if err := tokens.Insert(ctx, record); err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		ExpiresIn:        pair.ExpiresIn,
	}, nil
}

// ValidateAccessToken verifies a bearer token and loads its user. Used by
// the HTTP auth middleware.
func (s *AuthService) ValidateAccessToken(ctx context.Context, raw string) (domain.User, error) {
	access, err := s.codec.ValidateAccess(raw)
	if err != nil {
		return domain.User{}, errUnauthorized()
	}
	user, err := s.repos.Users.GetByID(ctx, access.UserID)
	if err != nil || !user.IsActive {
		return domain.User{}, errUnauthorized()
	}
	return user, nil
}
