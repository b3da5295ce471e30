package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ TxManager = (*PgxTxManager)(nil)

// PgxTxManager runs callbacks inside a single pgx transaction.
type PgxTxManager struct {
	pool *pgxpool.Pool
}

// NewPgxTxManager builds a TxManager over the shared pool.
func NewPgxTxManager(pool *pgxpool.Pool) *PgxTxManager {
	return &PgxTxManager{pool: pool}
}

// WithinTx begins a transaction, hands fn repositories bound to it and
// commits on success. Any error rolls everything back.
func (m *PgxTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	err := pgx.BeginTxFunc(ctx, m.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(ctx, NewRepositories(tx))
	})
	if err != nil {
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

// NewRepositories binds all repositories to the given querier, either the
// pool or one transaction.
func NewRepositories(db Querier) Repositories {
	return Repositories{
		Users:  NewPostgresUserRepo(db),
		Orgs:   NewPostgresOrgRepo(db),
		Tokens: NewPostgresTokenRepo(db),
	}
}
