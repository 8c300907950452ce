package migrations

import "embed"

// Postgres миграции для PostgreSQL, каталог "postgres"
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite миграции для SQLite, каталог "sqlite"
//
//go:embed sqlite/*.sql
var SQLite embed.FS
