package migration

import (
	"strings"

	"github.com/smallbiznis/revshare/internal/config"
	"github.com/smallbiznis/revshare/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		switch strings.ToLower(strings.TrimSpace(cfg.DBType)) {
		case "postgres":
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		case "sqlite":
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		default:
			log.Warn("schema not managed for database type", zap.String("db_type", cfg.DBType))
		}

		if cfg.SeedDevTenants && !cfg.IsProduction() {
			if err := seed.EnsureDevTenants(conn); err != nil {
				return err
			}
			log.Info("development tenants seeded")
		}
		return nil
	}),
)
