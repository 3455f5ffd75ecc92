package migrations

import "embed"

// UpFiles embeds the key-value schema migrations applied by the postgres backend.
//
//go:embed *.up.sql
var UpFiles embed.FS
