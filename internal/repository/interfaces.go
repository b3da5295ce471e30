package repository

import (
	"context"

	"github.com/smallbiznis/atrium-auth/internal/domain"
)

// UserRepository exposes persistence for platform users.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
}

// OrgRepository exposes organization lookups and signup-time creation.
type OrgRepository interface {
	GetByID(ctx context.Context, orgID int64) (domain.Organization, error)
	Create(ctx context.Context, org domain.Organization) (domain.Organization, error)
	CheckSlugAvailable(ctx context.Context, slug string) (domain.SlugAvailability, error)
}

// TokenRepository is the session store: the persistent record of issued
// refresh tokens. Records are only ever inserted or revoked, never deleted.
type TokenRepository interface {
	Insert(ctx context.Context, record domain.RefreshToken) error
	// FindLiveByID returns the record only while it is unrevoked.
	FindLiveByID(ctx context.Context, tokenID string, userID int64) (domain.RefreshToken, error)
	// Revoke is a conditional update gated on the record still being live.
	// It returns domain.ErrTokenRevoked when another request won the race.
	Revoke(ctx context.Context, tokenID string) error
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
	ListLiveByUser(ctx context.Context, userID int64) ([]domain.RefreshToken, error)
}

// Repositories bundles the stores participating in a command, bound either
// to the pool or to one transaction.
type Repositories struct {
	Users  UserRepository
	Orgs   OrgRepository
	Tokens TokenRepository
}

// TxManager runs a function with repositories bound to a single database
// transaction. The transaction commits when fn returns nil and rolls back
// otherwise; no partial writes are ever observable.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
}
