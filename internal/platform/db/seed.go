package db

import (
	"context"
	"fmt"
	"log/slog"

	"staffdesk/internal/domain/auth"
	"staffdesk/internal/platform/config"
)

// Seed creates the first operator from SEED_ADMIN_* unless it already exists.
func Seed(ctx context.Context, operators *auth.Service, cfg config.Config) error {
	if cfg.SeedAdminEmail == "" {
		return nil
	}
	id, created, err := operators.EnsureOperator(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword, cfg.SeedAdminName, auth.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("seed admin operator: %w", err)
	}
	if created {
		slog.Info("seeded admin operator", "operatorId", id, "email", cfg.SeedAdminEmail)
	}
	return nil
}
