package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/atrium-auth/internal/audit"
	"github.com/smallbiznis/atrium-auth/internal/domain"
	"github.com/smallbiznis/atrium-auth/internal/password"
	"github.com/smallbiznis/atrium-auth/internal/repository"
	"github.com/smallbiznis/atrium-auth/internal/service"
	"github.com/smallbiznis/atrium-auth/internal/slug"
	"github.com/smallbiznis/atrium-auth/internal/token"
)

var testHasher = password.NewHasher(password.Params{
	MemoryKiB:   8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
})

const goodPassword = "C0rrect-horse"

func newTestService(t *testing.T) (*service.AuthService, *memStore, *captureRecorder) {
	t.Helper()

	store := newMemStore()
	codec, err := token.NewCodec("test-secret-at-least-32-bytes-long!!", 15*time.Minute, time.Hour)
	require.NoError(t, err)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	recorder := &captureRecorder{}

	repos := repository.Repositories{Users: memUsers{store}, Orgs: memOrgs{store}, Tokens: store}
	svc := service.NewAuthService(repos, &memTx{repos: repos}, codec, testHasher, recorder, nil, node, true, zap.NewNop())
	return svc, store, recorder
}

func seedUser(t *testing.T, store *memStore, email string, orgID int64, active bool) domain.User {
	t.Helper()
	hash, err := testHasher.Hash(goodPassword)
	require.NoError(t, err)
	user, err := memUsers{store}.Create(context.Background(), domain.User{
		ID:           store.nextID(),
		OrgID:        orgID,
		Email:        email,
		PasswordHash: hash,
		IsActive:     active,
		Role:         "member",
	})
	require.NoError(t, err)
	return user
}

func seedOrg(t *testing.T, store *memStore, orgSlug string, active bool) domain.Organization {
	t.Helper()
	org, err := memOrgs{store}.Create(context.Background(), domain.Organization{
		ID:       store.nextID(),
		Slug:     orgSlug,
		Name:     orgSlug,
		IsActive: active,
	})
	require.NoError(t, err)
	return org
}

func TestLoginIssuesSession(t *testing.T) {
	svc, store, recorder := newTestService(t)
	org := seedOrg(t, store, "acme", true)
	user := seedUser(t, store, "owner@acme.test", org.ID, true)

	sess, err := svc.Login(context.Background(), service.Meta{IPAddress: "10.0.0.1", UserAgent: "test"}, "Owner@Acme.Test", goodPassword)
	require.NoError(t, err)
	require.Equal(t, user.ID, sess.User.ID)
	require.NotNil(t, sess.Org)
	require.Equal(t, org.ID, sess.Org.ID)
	require.NotEmpty(t, sess.Pair.AccessToken)
	require.NotEmpty(t, sess.Pair.RefreshToken)

	// Exactly one session record, holding a hash rather than the token.
	records := store.liveTokens(user.ID)
	require.Len(t, records, 1)
	require.NotEqual(t, sess.Pair.RefreshToken, records[0].TokenHash)
	require.True(t, testHasher.Verify(records[0].TokenHash, sess.Pair.RefreshToken))

	require.Len(t, recorder.ofType(audit.UserLoggedIn), 1)
	created := recorder.ofType(audit.AuthSessionCreated)
	require.Len(t, created, 1)
	require.Equal(t, records[0].ID, created[0].Payload["refresh_token_id"])

	// The email reaches the trail hashed, never in plaintext.
	logged := recorder.ofType(audit.UserLoggedIn)[0]
	require.Equal(t, audit.HashPII("owner@acme.test"), logged.Payload["email_hash"])
	require.NotContains(t, logged.Payload["email_hash"], "@")
}

func TestLoginWrongPassword(t *testing.T) {
	svc, store, recorder := newTestService(t)
	seedUser(t, store, "user@test.test", 0, true)

	_, err := svc.Login(context.Background(), service.Meta{}, "user@test.test", "Wr0ng-password!")
	requireAuthError(t, err, "invalid_credentials", 401)

	failed := recorder.ofType(audit.UserLoginFailed)
	require.Len(t, failed, 1)
	require.Equal(t, "invalid_password", failed[0].Payload["reason"])
	require.Empty(t, recorder.ofType(audit.AuthSessionCreated))
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	svc, _, recorder := newTestService(t)

	_, err := svc.Login(context.Background(), service.Meta{}, "ghost@test.test", goodPassword)
	requireAuthError(t, err, "invalid_credentials", 401)

	failed := recorder.ofType(audit.UserLoginFailed)
	require.Len(t, failed, 1)
	require.Equal(t, "user_not_found", failed[0].Payload["reason"])
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, store, recorder := newTestService(t)
	seedUser(t, store, "user@test.test", 0, false)

	_, err := svc.Login(context.Background(), service.Meta{}, "user@test.test", goodPassword)
	requireAuthError(t, err, "account_inactive", 401)
	require.Equal(t, "account_inactive", recorder.ofType(audit.UserLoginFailed)[0].Payload["reason"])
}

func TestLoginInactiveOrganization(t *testing.T) {
	svc, store, recorder := newTestService(t)
	org := seedOrg(t, store, "dormant", false)
	seedUser(t, store, "user@dormant.test", org.ID, true)

	_, err := svc.Login(context.Background(), service.Meta{}, "user@dormant.test", goodPassword)
	requireAuthError(t, err, "organization_inactive", 401)
	require.Equal(t, "organization_inactive", recorder.ofType(audit.UserLoginFailed)[0].Payload["reason"])
}

func TestSignupCreatesOrgOwnerAndSession(t *testing.T) {
	svc, _, recorder := newTestService(t)

	sess, err := svc.Signup(context.Background(), service.Meta{}, service.SignupInput{
		Email:    "founder@acme.test",
		Password: goodPassword,
		OrgName:  "Acme",
		OrgSlug:  "acme",
	})
	require.NoError(t, err)
	require.NotNil(t, sess.Org)
	require.Equal(t, "acme", sess.Org.Slug)
	require.Equal(t, "owner", sess.User.Role)
	require.True(t, sess.User.IsActive)
	require.Equal(t, sess.Org.ID, sess.User.OrgID)
	require.NotEmpty(t, sess.Pair.RefreshToken)

	require.Len(t, recorder.ofType(audit.OrganizationCreated), 1)
	require.Len(t, recorder.ofType(audit.UserCreated), 1)
	require.Len(t, recorder.ofType(audit.OrganizationSignupComplete), 1)
	require.Len(t, recorder.ofType(audit.AuthSessionCreated), 1)

	// The new credentials work immediately.
	_, err = svc.Login(context.Background(), service.Meta{}, "founder@acme.test", goodPassword)
	require.NoError(t, err)
}

func TestSignupValidationAccumulates(t *testing.T) {
	svc, _, recorder := newTestService(t)

	_, err := svc.Signup(context.Background(), service.Meta{}, service.SignupInput{
		Email:    "",
		Password: "weak",
		OrgName:  "Acme",
		OrgSlug:  "acme",
	})
	authErr := requireAuthError(t, err, "validation_failed", 400)
	violations, ok := authErr.Details["errors"].([]string)
	require.True(t, ok)
	// Missing email plus the four strength violations of "weak".
	require.Len(t, violations, 5)
	require.Empty(t, recorder.events)
}

func TestSignupDuplicateSlugConflict(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedOrg(t, store, "acme", true)

	_, err := svc.Signup(context.Background(), service.Meta{}, service.SignupInput{
		Email:    "founder@other.test",
		Password: goodPassword,
		OrgName:  "Other Acme",
		OrgSlug:  "acme",
	})
	authErr := requireAuthError(t, err, "conflict", 409)
	suggestions, ok := authErr.Details["suggestions"].([]string)
	require.True(t, ok)
	require.Contains(t, suggestions, "acme-2")

	// Nothing was written.
	require.False(t, store.emailExists("founder@other.test"))
}

func TestSignupDuplicateEmailConflict(t *testing.T) {
	svc, store, _ := newTestService(t)
	seedUser(t, store, "founder@acme.test", 0, true)

	_, err := svc.Signup(context.Background(), service.Meta{}, service.SignupInput{
		Email:    "founder@acme.test",
		Password: goodPassword,
		OrgName:  "Acme",
		OrgSlug:  "acme",
	})
	authErr := requireAuthError(t, err, "conflict", 409)
	require.Contains(t, authErr.Description, "Email")
	require.False(t, store.slugExists("acme"))
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	svc, store, recorder := newTestService(t)
	user := seedUser(t, store, "user@test.test", 0, true)

	sess, err := svc.Login(context.Background(), service.Meta{}, "user@test.test", goodPassword)
	require.NoError(t, err)
	oldToken := sess.Pair.RefreshToken

	next, err := svc.Refresh(context.Background(), service.Meta{}, oldToken)
	require.NoError(t, err)
	require.NotEmpty(t, next.Pair.RefreshToken)
	require.NotEqual(t, oldToken, next.Pair.RefreshToken)

	// Still exactly one live session: the old record is revoked, not deleted.
	require.Len(t, store.liveTokens(user.ID), 1)

	revoked := recorder.ofType(audit.RefreshTokenRevoked)
	require.Len(t, revoked, 1)
	require.Equal(t, "rotated", revoked[0].Payload["reason"])
	refreshed := recorder.ofType(audit.TokenRefreshed)
	require.Len(t, refreshed, 1)
	require.NotEqual(t, refreshed[0].Payload["old_refresh_token_id"], refreshed[0].Payload["new_refresh_token_id"])

	// Replaying the rotated-out token fails with the uniform error.
	_, err = svc.Refresh(context.Background(), service.Meta{}, oldToken)
	requireAuthError(t, err, "unauthorized", 401)
	expired := recorder.ofType(audit.SessionExpired)
	require.Len(t, expired, 1)
	require.Equal(t, "token_not_found_or_revoked", expired[0].Payload["reason"])

	// The rotated token keeps working.
	_, err = svc.Refresh(context.Background(), service.Meta{}, next.Pair.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshExpiredRecordIsRetired(t *testing.T) {
	svc, store, recorder := newTestService(t)
	user := seedUser(t, store, "user@test.test", 0, true)

	sess, err := svc.Login(context.Background(), service.Meta{}, "user@test.test", goodPassword)
	require.NoError(t, err)
	store.expireAll(user.ID)

	_, err = svc.Refresh(context.Background(), service.Meta{}, sess.Pair.RefreshToken)
	requireAuthError(t, err, "unauthorized", 401)

	expired := recorder.ofType(audit.SessionExpired)
	require.Len(t, expired, 1)
	require.Equal(t, "expired", expired[0].Payload["reason"])

	// Retired as a side effect: the record cannot be found live anymore.
	require.Empty(t, store.liveTokens(user.ID))
}

func TestRefreshGarbageToken(t *testing.T) {
	svc, _, recorder := newTestService(t)

	_, err := svc.Refresh(context.Background(), service.Meta{}, "not-a-jwt")
	requireAuthError(t, err, "unauthorized", 401)
	require.Equal(t, "invalid_token", recorder.ofType(audit.SessionExpired)[0].Payload["reason"])
}

func TestLogoutEndsAllSessions(t *testing.T) {
	svc, store, recorder := newTestService(t)
	user := seedUser(t, store, "user@test.test", 0, true)

	first, err := svc.Login(context.Background(), service.Meta{}, "user@test.test", goodPassword)
	require.NoError(t, err)
	second, err := svc.Login(context.Background(), service.Meta{}, "user@test.test", goodPassword)
	require.NoError(t, err)
	require.Len(t, store.liveTokens(user.ID), 2)

	err = svc.Logout(context.Background(), service.Meta{}, first.Pair.RefreshToken)
	require.NoError(t, err)
	require.Empty(t, store.liveTokens(user.ID))

	logout := recorder.ofType(audit.UserLogout)
	require.Len(t, logout, 1)
	require.Equal(t, "2", logout[0].Payload["sessions_ended"])
	require.Len(t, recorder.ofType(audit.AuthSessionEnded), 1)

	revoked := recorder.ofType(audit.RefreshTokenRevoked)
	require.Len(t, revoked, 2)
	for _, e := range revoked {
		require.Equal(t, "logout", e.Payload["reason"])
	}

	// Logout is not idempotent: the second device's token is already dead.
	err = svc.Logout(context.Background(), service.Meta{}, second.Pair.RefreshToken)
	requireAuthError(t, err, "unauthorized", 401)
}

func TestValidateAccessToken(t *testing.T) {
	svc, store, _ := newTestService(t)
	user := seedUser(t, store, "user@test.test", 0, true)

	sess, err := svc.Login(context.Background(), service.Meta{}, "user@test.test", goodPassword)
	require.NoError(t, err)

	got, err := svc.ValidateAccessToken(context.Background(), sess.Pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	// A refresh token is not an access token.
	_, err = svc.ValidateAccessToken(context.Background(), sess.Pair.RefreshToken)
	requireAuthError(t, err, "unauthorized", 401)
}

func requireAuthError(t *testing.T, err error, code string, status int) *service.AuthError {
	t.Helper()
	require.Error(t, err)
	authErr, ok := err.(*service.AuthError)
	require.True(t, ok, "expected *service.AuthError, got %T", err)
	require.Equal(t, code, authErr.Code)
	require.Equal(t, status, authErr.Status)
	return authErr
}

// captureRecorder gathers audit events synchronously for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *captureRecorder) Record(_ context.Context, event audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *captureRecorder) ofType(et audit.EventType) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

// memStore is an in-memory stand-in for the three postgres repositories,
// mirroring their lookup and conditional-revoke semantics. memUsers and
// memOrgs exist because the user and organization interfaces both declare
// GetByID and Create.
type memStore struct {
	mu     sync.Mutex
	lastID int64
	users  map[int64]domain.User
	orgs   map[int64]domain.Organization
	tokens map[string]domain.RefreshToken
}

type memUsers struct{ *memStore }

type memOrgs struct{ *memStore }

func newMemStore() *memStore {
	return &memStore{
		lastID: 100,
		users:  make(map[int64]domain.User),
		orgs:   make(map[int64]domain.Organization),
		tokens: make(map[string]domain.RefreshToken),
	}
}

func (m *memStore) nextID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	return m.lastID
}

func (m memUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

func (m memUsers) GetByID(_ context.Context, userID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (m memUsers) Create(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, u := range m.users {
		if u.Email == user.Email {
			return domain.User{}, domain.ErrAlreadyExists
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m memUsers) EmailTaken(_ context.Context, email string) (bool, error) {
	return m.emailExists(email), nil
}

func (m memOrgs) GetByID(_ context.Context, orgID int64) (domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[orgID]
	if !ok {
		return domain.Organization{}, domain.ErrNotFound
	}
	return o, nil
}

func (m memOrgs) Create(_ context.Context, org domain.Organization) (domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Slug == org.Slug {
			return domain.Organization{}, domain.ErrAlreadyExists
		}
	}
	org.CreatedAt = time.Now()
	org.UpdatedAt = org.CreatedAt
	m.orgs[org.ID] = org
	return org, nil
}

func (m memOrgs) CheckSlugAvailable(_ context.Context, candidate string) (domain.SlugAvailability, error) {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	if errs := slug.Validate(candidate); len(errs) > 0 {
		return domain.SlugAvailability{IsAvailable: false, Errors: errs}, nil
	}
	if !m.slugExists(candidate) {
		return domain.SlugAvailability{IsAvailable: true}, nil
	}
	suggestions := slug.Suggest(candidate, 3, func(s string) bool { return m.slugExists(s) })
	return domain.SlugAvailability{
		IsAvailable: false,
		Errors:      []string{"slug is already taken"},
		Suggestions: suggestions,
	}, nil
}

func (m *memStore) Insert(_ context.Context, record domain.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[record.ID]; ok {
		return domain.ErrAlreadyExists
	}
	record.CreatedAt = time.Now()
	m.tokens[record.ID] = record
	return nil
}

func (m *memStore) FindLiveByID(_ context.Context, tokenID string, userID int64) (domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[tokenID]
	if !ok || rec.UserID != userID || rec.RevokedAt != nil {
		return domain.RefreshToken{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) Revoke(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[tokenID]
	if !ok || rec.RevokedAt != nil {
		return domain.ErrTokenRevoked
	}
	now := time.Now()
	rec.RevokedAt = &now
	m.tokens[tokenID] = rec
	return nil
}

func (m *memStore) RevokeAllForUser(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := time.Now()
	for id, rec := range m.tokens {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
			m.tokens[id] = rec
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListLiveByUser(_ context.Context, userID int64) ([]domain.RefreshToken, error) {
	return m.liveTokens(userID), nil
}

func (m *memStore) liveTokens(userID int64) []domain.RefreshToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RefreshToken
	for _, rec := range m.tokens {
		if rec.UserID == userID && rec.RevokedAt == nil {
			out = append(out, rec)
		}
	}
	return out
}

func (m *memStore) expireAll(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.tokens {
		if rec.UserID == userID {
			rec.ExpiresAt = time.Now().Add(-time.Minute)
			m.tokens[id] = rec
		}
	}
}

func (m *memStore) emailExists(email string) bool {
	_, err := memUsers{m}.GetByEmail(context.Background(), email)
	return err == nil
}

func (m *memStore) slugExists(s string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Slug == s {
			return true
		}
	}
	return false
}

// memTx runs the function against the same repositories without transactional
// isolation; rollback behavior is covered by the postgres layer.
type memTx struct {
	repos repository.Repositories
}

func (m *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repositories) error) error {
	return fn(ctx, m.repos)
}
