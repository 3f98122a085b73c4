package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"gorm.io/gorm"
)

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists the tables AutoMigrate creates for local sqlite runs.
func Models() []any {
	return []any{
		&tenantdomain.Tenant{},
		&revenuedomain.RevenueEvent{},
		&successfeedomain.SuccessFeeCharge{},
		&royaltydomain.RoyaltyLedgerEntry{},
	}
}

// AutoMigrate creates the schema from the gorm models. The casbin_rule table
// is owned by the policy adapter on every dialect.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	return conn.AutoMigrate(Models()...)
}
