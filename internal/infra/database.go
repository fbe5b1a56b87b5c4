package infra

import (
	"fmt"
	"strings"

	"github.com/Nilsonfts/Skvoznaya-analitika/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx, runs AutoMigrate to
// create / update all tables, then applies the idempotent SQL patches that GORM
// cannot express (CHECK constraints, partial indexes).
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Open connects without migrating. Sessions run in UTC so date columns round-trip
// unchanged; unique violations surface as gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(withUTC(dsn)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	return db, nil
}

func withUTC(dsn string) string {
	if strings.Contains(strings.ToLower(dsn), "timezone") {
		return dsn
	}
	if strings.Contains(dsn, "://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&timezone=UTC"
		}
		return dsn + "?timezone=UTC"
	}
	return dsn + " TimeZone=UTC"
}

// RunMigrations creates / updates the schema and applies the SQL patches.
// It is idempotent and is also used by integration tests.
func RunMigrations(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
		return fmt.Errorf("pgcrypto: %w", err)
	}
	if err := db.AutoMigrate(
		&model.Channel{},
		&model.Lead{},
		&model.Client{},
		&model.Visit{},
		&model.Reserve{},
		&model.ChannelMetric{},
	); err != nil {
		return fmt.Errorf("AutoMigrate: %w", err)
	}
	if err := applySchemaPatches(db); err != nil {
		return fmt.Errorf("schema patches: %w", err)
	}
	return nil
}

// applySchemaPatches runs idempotent DDL statements that GORM AutoMigrate cannot
// express. Each statement is guarded so re-running on a patched DB is a no-op.
func applySchemaPatches(db *gorm.DB) error {
	patches := []struct{ descr, sql string }{
		{"channels cost non-negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_channels_cost_non_negative') THEN
    ALTER TABLE channels ADD CONSTRAINT chk_channels_cost_non_negative CHECK (cost_per_month >= 0);
  END IF;
END $$`},
		{"visits amount sign by kind", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_visits_amount_kind') THEN
    ALTER TABLE visits ADD CONSTRAINT chk_visits_amount_kind
      CHECK (kind IN ('visit', 'adjustment') AND (kind = 'adjustment' OR amount >= 0));
  END IF;
END $$`},
		{"clients counters non-negative", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_clients_total_visits') THEN
    ALTER TABLE clients ADD CONSTRAINT chk_clients_total_visits CHECK (total_visits >= 0);
  END IF;
END $$`},
		{"clients segment enum", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_clients_segment') THEN
    ALTER TABLE clients ADD CONSTRAINT chk_clients_segment
      CHECK (segment IN ('New', 'Returning', 'VIP', 'Lost'));
  END IF;
END $$`},
		{"leads status enum", `
DO $$ BEGIN
  IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_leads_status') THEN
    ALTER TABLE leads ADD CONSTRAINT chk_leads_status
      CHECK (status IN ('new', 'contacted', 'converted', 'lost', 'imported'));
  END IF;
END $$`},
		// Clients are matched by first visit per channel and day during aggregation.
		{"clients channel/first visit index",
			`CREATE INDEX IF NOT EXISTS idx_clients_channel_first_visit ON clients (channel_id, first_visit_date)`},
		{"leads channel/date index",
			`CREATE INDEX IF NOT EXISTS idx_leads_channel_date ON leads (channel_id, lead_date)`},
	}
	for _, p := range patches {
		if err := db.Exec(p.sql).Error; err != nil {
			return fmt.Errorf("patch %q: %w", p.descr, err)
		}
	}
	return nil
}
