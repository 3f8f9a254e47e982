package database

import "embed"

// EmbeddedMigrations holds database/migrations/*.sql inside the binary.
// Pass fs.Sub(EmbeddedMigrations, "migrations") to New.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
