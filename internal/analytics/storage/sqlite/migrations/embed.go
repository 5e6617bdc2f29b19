package migrations

import "embed"

// FS contains embedded SQLite migrations for analytics storage.
//
//go:embed *.sql
var FS embed.FS
