// Package migrations exposes the embedded goose migrations, one directory
// per supported dialect.
package migrations

import "embed"

// Migrations holds postgres/*.sql and mysql/*.sql.
//
//go:embed postgres/*.sql mysql/*.sql
var Migrations embed.FS
