// Package migrations embeds the SQL schema files so the server binary carries them.
package migrations

import "embed"

// FS holds every NNN_name.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
