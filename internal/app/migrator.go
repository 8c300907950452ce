package app

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/migrations"
)

// Migrator обёртка над goose
type Migrator struct {
	db       *sql.DB
	ownsDB   bool
	provider *goose.Provider
	logger   *zap.Logger
}

// NewPostgresMigrator создаёт мигратор поверх пула pgx
func NewPostgresMigrator(pool *pgxpool.Pool, logger *zap.Logger) (*Migrator, error) {
	// Goose работает с *sql.DB, поэтому создаём его из пула
	db := stdlib.OpenDBFromPool(pool)

	m, err := newMigrator(db, goose.DialectPostgres, migrations.Postgres, "postgres", logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	m.ownsDB = true
	return m, nil
}

// NewSQLiteMigrator создаёт мигратор для базы SQLite
func NewSQLiteMigrator(db *sql.DB, logger *zap.Logger) (*Migrator, error) {
	return newMigrator(db, goose.DialectSQLite3, migrations.SQLite, "sqlite", logger)
}

func newMigrator(db *sql.DB, dialect goose.Dialect, fsys fs.FS, dir string, logger *zap.Logger) (*Migrator, error) {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("open migrations dir %s: %w", dir, err)
	}

	provider, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}

	return &Migrator{
		db:       db,
		provider: provider,
		logger:   logger,
	}, nil
}

// Run применяет все pending миграции
func (mg *Migrator) Run(ctx context.Context) error {
	mg.logger.Info("Applying database migrations")

	results, err := mg.provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	mg.logger.Info("Migrations applied", zap.Int("applied", len(results)))
	return nil
}

// Version показывает текущую версию миграций
func (mg *Migrator) Version(ctx context.Context) (int64, error) {
	version, err := mg.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// Close закрывает соединение мигратора
func (mg *Migrator) Close() error {
	// Закрываем только собственный sql.DB: пул и SQLite управляются в main
	if mg.ownsDB && mg.db != nil {
		return mg.db.Close()
	}
	return nil
}
