// Package migrations embeds SQL migration files into the binary.
//
// docgate runs these at startup against its SQLite file, so the SQL does
// not need to be present on disk next to the executable.
package migrations

import "embed"

// FS holds every *.up.sql file in this directory at the root of the FS.
//
//go:embed *.sql
var FS embed.FS
