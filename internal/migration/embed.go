package migration

import "embed"

const migrationsDir = "sql"

// Migration files live in one directory per supported database type so each
// dialect gets native column types instead of a lowest common denominator.
//
//go:embed sql
var embeddedMigrations embed.FS
