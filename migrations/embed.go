// Package migrations holds the stamps schema. The server applies the
// *.up.sql files on startup through database.Migrate.
package migrations

import "embed"

//go:embed *.up.sql *.down.sql
var FS embed.FS
