// Package migrations holds the Postgres schema, applied with bun's migrator.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the ordered set of schema migrations. Each file registers itself; the version
// comes from its file name.
var Migrations = migrate.NewMigrations()
