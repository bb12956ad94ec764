// Package migrations embeds the local SQLite schema applied by goose when the
// CLI opens its database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
