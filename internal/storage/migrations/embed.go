package migrations

import "embed"

// FS embeds the SQL migrations for the SQLite cache backend.
//
//go:embed *.sql
var FS embed.FS
