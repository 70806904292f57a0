package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	payouttierdomain "github.com/smallbiznis/tokenledger/internal/payouttier/domain"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
	withdrawaldomain "github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// RunMigrations applies the embedded postgres schema with golang-migrate.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	source, err := iofs.New(embeddedMigrations, migrationsDir)
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

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	// migrator.Close would close the shared *sql.DB.
	return nil
}

// AutoMigrate builds the schema from the gorm models for dialects without
// embedded SQL (sqlite for tests and local runs, mysql).
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&ledgerdomain.Company{},
		&ledgerdomain.Creative{},
		&ledgerdomain.LedgerEntry{},
		&ticketdomain.JobType{},
		&ticketdomain.Ticket{},
		&payouttierdomain.PayoutRule{},
		&withdrawaldomain.Withdrawal{},
		&auditdomain.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// MySQL has no partial indexes; there the completion transaction's row
	// lock and payout lookup are the only guard.
	if db.Dialector.Name() == "mysql" {
		return nil
	}
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_ledger_entries_ticket_payout
		 ON ledger_entries (ticket_id) WHERE reason = 'ticket_payout'`,
	).Error
}

// Migrate picks the migration path for the connected dialect.
func Migrate(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}
	return AutoMigrate(db)
}
