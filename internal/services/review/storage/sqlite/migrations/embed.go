package migrations

import "embed"

// FS contains embedded SQLite migrations for review storage.
//
//go:embed *.sql
var FS embed.FS
