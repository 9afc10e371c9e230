package migrations

import "embed"

// FS contains embedded SQLite migrations for verification storage.
//
//go:embed *.sql
var FS embed.FS
