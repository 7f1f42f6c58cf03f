// Package migrations embeds the ledger schema as ordered SQL files named
// {version}_{name}.up.sql / {version}_{name}.down.sql.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
