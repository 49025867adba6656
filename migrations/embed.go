package migrations

import "embed"

// FS exposes the SQL migrations for the iofs source driver.
//
//go:embed *.sql
var FS embed.FS
