package migrations

import "embed"

// FS embeds the SQLite schema for attempt telemetry.
//
//go:embed *.sql
var FS embed.FS
