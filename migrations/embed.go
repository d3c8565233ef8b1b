// Package migrations embeds SQL migration files into the binary.
//
// The sequencer runs migrations without the SQL files present on the
// filesystem: pass FS to database.DB.Migrate.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
