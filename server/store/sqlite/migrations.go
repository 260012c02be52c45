package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/gear6io/slate/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Package-specific error codes for migrations
var (
	ErrMigrationFailed = errors.MustNewCode("store.sqlite.migration_failed")
)

// Migration interface that all migration files must implement
type Migration interface {
	Version() int
	Name() string
	Up(ctx context.Context, tx bun.Tx) error
}

// MigrationManager handles schema migrations using bun
type MigrationManager struct {
	db     *bun.DB
	logger zerolog.Logger
}

// NewMigrationManager wraps the store's handle for migration runs
func NewMigrationManager(sqldb *sql.DB, logger zerolog.Logger) *MigrationManager {
	return &MigrationManager{
		db:     bun.NewDB(sqldb, sqlitedialect.New()),
		logger: logger.With().Str("component", "sqlite-migrations").Logger(),
	}
}

// MigrateToLatest runs all pending migrations in one transaction
func (mm *MigrationManager) MigrateToLatest(ctx context.Context) error {
	currentVersion, err := mm.currentVersion(ctx)
	if err != nil {
		return errors.New(ErrMigrationFailed, "failed to determine current schema version", err)
	}

	var pending []Migration
	for _, migration := range availableMigrations() {
		if migration.Version() > currentVersion {
			pending = append(pending, migration)
		}
	}

	if len(pending) == 0 {
		mm.logger.Debug().Int("version", currentVersion).Msg("Schema is up to date")
		return nil
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(ErrMigrationFailed, "failed to begin migration transaction", err)
	}

	for _, migration := range pending {
		mm.logger.Info().
			Int("version", migration.Version()).
			Str("name", migration.Name()).
			Msg("Running migration")

		if err := migration.Up(ctx, tx); err != nil {
			tx.Rollback()
			return errors.New(ErrMigrationFailed, "migration failed", err).
				AddContext("name", migration.Name())
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, migration := range pending {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			migration.Version(), migration.Name(), now); err != nil {
			tx.Rollback()
			return errors.New(ErrMigrationFailed, "failed to record migration", err).
				AddContext("name", migration.Name())
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.New(ErrMigrationFailed, "failed to commit migrations", err)
	}

	mm.logger.Info().Int("migrations", len(pending)).Msg("Schema migrations applied")
	return nil
}

func availableMigrations() []Migration {
	return []Migration{
		&migrationInitialSchema{},
	}
}

// currentVersion returns the newest applied migration version, creating
// the tracking table on first use.
func (mm *MigrationManager) currentVersion(ctx context.Context) (int, error) {
	exists, err := mm.tableExists(ctx, "schema_migrations")
	if err != nil {
		return 0, err
	}

	if !exists {
		if _, err := mm.db.NewCreateTable().
			Model(&schemaMigrationRow{}).
			IfNotExists().
			Exec(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}

	var version int
	err = mm.db.NewSelect().
		Column("version").
		Table("schema_migrations").
		Order("version DESC").
		Limit(1).
		Scan(ctx, &version)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

func (mm *MigrationManager) tableExists(ctx context.Context, tableName string) (bool, error) {
	var exists int
	err := mm.db.NewRaw(`SELECT 1 FROM sqlite_master WHERE type='table' AND name=?`, tableName).Scan(ctx, &exists)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type schemaMigrationRow struct {
	bun.BaseModel `bun:"table:schema_migrations"`
	Version       int    `bun:"version,pk,type:integer"`
	Name          string `bun:"name,type:text,notnull"`
	AppliedAt     string `bun:"applied_at,type:text,notnull"`
}

type tableRow struct {
	bun.BaseModel `bun:"table:tables"`
	Name          string `bun:"name,pk,type:text,notnull"`
}

type cellRow struct {
	bun.BaseModel `bun:"table:cells"`
	Table         string `bun:"tbl,pk,type:text,notnull"`
	Row           string `bun:"row,pk,type:text,notnull"`
	Family        string `bun:"family,pk,type:text,notnull"`
	Qualifier     string `bun:"qualifier,pk,type:text,notnull"`
	Value         []byte `bun:"value,type:blob,notnull"`
}

// migrationInitialSchema creates the logical-table registry and the cells
// table all engine operations run against.
type migrationInitialSchema struct{}

func (m *migrationInitialSchema) Version() int { return 1 }

func (m *migrationInitialSchema) Name() string { return "initial_schema" }

func (m *migrationInitialSchema) Up(ctx context.Context, tx bun.Tx) error {
	if _, err := tx.NewCreateTable().
		Model((*tableRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	if _, err := tx.NewCreateTable().
		Model((*cellRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_cells_family ON cells(tbl, family, row)`,
	}
	for _, index := range indexes {
		if _, err := tx.ExecContext(ctx, index); err != nil {
			return err
		}
	}

	return nil
}
