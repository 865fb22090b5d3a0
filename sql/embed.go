// Package sql embeds the database migrations.
package sql

import "embed"

//go:embed *.sql
var FS embed.FS
