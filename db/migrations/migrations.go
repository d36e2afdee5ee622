// Package migrations embeds the SQL migrations executed by the db migrate
// command. Files follow the sql-migrate Up/Down format and are applied in
// lexical order.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
