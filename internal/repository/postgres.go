package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/smallbiznis/atrium-auth/internal/domain"
	"github.com/smallbiznis/atrium-auth/internal/slug"
)

// Compile-time interface assertions.
var (
	_ UserRepository  = (*PostgresUserRepo)(nil)
	_ OrgRepository   = (*PostgresOrgRepo)(nil)
	_ TokenRepository = (*PostgresTokenRepo)(nil)
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// letting the same repositories run pooled or inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

func translateErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("%s: %w", op, err)
}

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db Querier
}

func NewPostgresUserRepo(db Querier) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserColumns = `id, COALESCE(organization_id, 0), email, email_verified, password_hash, is_active, is_system_admin, COALESCE(role, ''), created_at, updated_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.OrgID, &u.Email, &u.EmailVerified, &u.PasswordHash, &u.IsActive, &u.IsSystemAdmin, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+selectUserColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, translateErr("get user by email", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+selectUserColumns+` FROM users WHERE id = $1`, userID)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, translateErr("get user by id", err)
	}
	return u, nil
}

func (r *PostgresUserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`,
		strings.ToLower(strings.TrimSpace(email)),
	).Scan(&exists)
	if err != nil {
		return false, translateErr("email taken", err)
	}
	return exists, nil
}

const insertUserSQL = `INSERT INTO users (id, organization_id, email, email_verified, password_hash, is_active, is_system_admin, role)
VALUES ($1, NULLIF($2, 0::bigint), $3, $4, $5, $6, $7, NULLIF($8, ''))
RETURNING created_at, updated_at`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	err := r.db.QueryRow(ctx, insertUserSQL,
		user.ID,
		user.OrgID,
		user.Email,
		user.EmailVerified,
		user.PasswordHash,
		user.IsActive,
		user.IsSystemAdmin,
		user.Role,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return domain.User{}, translateErr("create user", err)
	}
	return user, nil
}

// PostgresOrgRepo implements OrgRepository.
type PostgresOrgRepo struct {
	db Querier
}

func NewPostgresOrgRepo(db Querier) *PostgresOrgRepo {
	return &PostgresOrgRepo{db: db}
}

func (r *PostgresOrgRepo) GetByID(ctx context.Context, orgID int64) (domain.Organization, error) {
	var org domain.Organization
	err := r.db.QueryRow(ctx,
		`SELECT id, slug, name, COALESCE(description, ''), is_active, created_at, updated_at FROM organizations WHERE id = $1`,
		orgID,
	).Scan(&org.ID, &org.Slug, &org.Name, &org.Description, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return domain.Organization{}, translateErr("get organization", err)
	}
	return org, nil
}

const insertOrgSQL = `INSERT INTO organizations (id, slug, name, description, is_active)
VALUES ($1, $2, $3, NULLIF($4, ''), $5)
RETURNING created_at, updated_at`

func (r *PostgresOrgRepo) Create(ctx context.Context, org domain.Organization) (domain.Organization, error) {
	org.Slug = strings.ToLower(strings.TrimSpace(org.Slug))
	err := r.db.QueryRow(ctx, insertOrgSQL,
		org.ID, org.Slug, org.Name, org.Description, org.IsActive,
	).Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return domain.Organization{}, translateErr("create organization", err)
	}
	return org, nil
}

// CheckSlugAvailable validates the slug shape, checks the organizations
// table and, when taken, proposes numbered alternatives that are currently
// free. The unique constraint on organizations.slug stays the authoritative
// guard; this check only exists for a friendly error.
func (r *PostgresOrgRepo) CheckSlugAvailable(ctx context.Context, candidate string) (domain.SlugAvailability, error) {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	if errs := slug.Validate(candidate); len(errs) > 0 {
		return domain.SlugAvailability{IsAvailable: false, Errors: errs}, nil
	}

	taken, err := r.slugTaken(ctx, candidate)
	if err != nil {
		return domain.SlugAvailability{}, err
	}
	if !taken {
		return domain.SlugAvailability{IsAvailable: true}, nil
	}

	suggestions := slug.Suggest(candidate, 3, func(s string) bool {
		used, err := r.slugTaken(ctx, s)
		return err == nil && used
	})
	return domain.SlugAvailability{
		IsAvailable: false,
		Errors:      []string{fmt.Sprintf("slug %q is already taken", candidate)},
		Suggestions: suggestions,
	}, nil
}

func (r *PostgresOrgRepo) slugTaken(ctx context.Context, candidate string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM organizations WHERE slug = $1)`, candidate,
	).Scan(&exists)
	if err != nil {
		return false, translateErr("slug taken", err)
	}
	return exists, nil
}

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db Querier
}

func NewPostgresTokenRepo(db Querier) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

const insertTokenSQL = `INSERT INTO refresh_tokens (id, user_id, organization_id, token_hash, expires_at)
VALUES ($1, $2, NULLIF($3, 0::bigint), $4, $5)`

func (r *PostgresTokenRepo) Insert(ctx context.Context, record domain.RefreshToken) error {
	_, err := r.db.Exec(ctx, insertTokenSQL,
		record.ID, record.UserID, record.OrgID, record.TokenHash, record.ExpiresAt)
	if err != nil {
		return translateErr("insert refresh token", err)
	}
	return nil
}

const selectTokenColumns = `id, user_id, COALESCE(organization_id, 0), token_hash, expires_at, is_revoked, created_at`

func scanToken(row pgx.Row) (domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.OrgID, &t.TokenHash, &t.ExpiresAt, &t.RevokedAt, &t.CreatedAt)
	return t, err
}

func (r *PostgresTokenRepo) FindLiveByID(ctx context.Context, tokenID string, userID int64) (domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+selectTokenColumns+` FROM refresh_tokens WHERE id = $1 AND user_id = $2 AND is_revoked IS NULL`,
		tokenID, userID)
	t, err := scanToken(row)
	if err != nil {
		return domain.RefreshToken{}, translateErr("find live refresh token", err)
	}
	return t, nil
}

// Revoke conditions the update on the record still being live so two
// concurrent rotations of one token cannot both succeed.
func (r *PostgresTokenRepo) Revoke(ctx context.Context, tokenID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET is_revoked = now() WHERE id = $1 AND is_revoked IS NULL`,
		tokenID)
	if err != nil {
		return translateErr("revoke refresh token", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTokenRevoked
	}
	return nil
}

func (r *PostgresTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE refresh_tokens SET is_revoked = now() WHERE user_id = $1 AND is_revoked IS NULL`,
		userID)
	if err != nil {
		return 0, translateErr("revoke user refresh tokens", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresTokenRepo) ListLiveByUser(ctx context.Context, userID int64) ([]domain.RefreshToken, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+selectTokenColumns+` FROM refresh_tokens WHERE user_id = $1 AND is_revoked IS NULL ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, translateErr("list live refresh tokens", err)
	}
	defer rows.Close()

	var tokens []domain.RefreshToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, translateErr("scan refresh token", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
