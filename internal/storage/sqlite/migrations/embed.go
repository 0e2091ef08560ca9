package migrations

import "embed"

// FS contains the embedded SQLite schema migrations.
//
//go:embed *.sql
var FS embed.FS
