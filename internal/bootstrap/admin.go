package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/atrium-auth/internal/config"
	"github.com/smallbiznis/atrium-auth/internal/domain"
	"github.com/smallbiznis/atrium-auth/internal/password"
	"github.com/smallbiznis/atrium-auth/internal/repository"
)

const systemAdminRole = "system_admin"

// EnsureSystemAdmin seeds a system administrator account on startup when
// ADMIN_EMAIL and ADMIN_PASSWORD are configured. The account is global: it
// belongs to no organization. When the variables are absent the hook is a
// no-op, so production deployments can opt out entirely.
func EnsureSystemAdmin(lc fx.Lifecycle, cfg config.Config, repos repository.Repositories, hasher *password.Hasher, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureSystemAdmin(ctx, cfg, repos, hasher, node, logger)
		},
	})
}

func ensureSystemAdmin(ctx context.Context, cfg config.Config, repos repository.Repositories, hasher *password.Hasher, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		return nil
	}

	if _, err := repos.Users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	if res := password.CheckStrength(cfg.AdminPassword); !res.Valid {
		return fmt.Errorf("bootstrap admin password rejected: %s", strings.Join(res.Errors, "; "))
	}

	hashed, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	user := domain.User{
		ID:            node.Generate().Int64(),
		Email:         email,
		EmailVerified: true,
		PasswordHash:  hashed,
		IsActive:      true,
		IsSystemAdmin: true,
		Role:          systemAdminRole,
	}

	created, err := repos.Users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap system admin created",
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}
