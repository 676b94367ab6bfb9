package migrations

import "embed"

// FS holds the position-history schema migrations, embedded so the relay
// can migrate on startup without shipping SQL files next to the binary.
//
//go:embed *.sql
var FS embed.FS
