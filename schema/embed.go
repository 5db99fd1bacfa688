package schema

import _ "embed"

// SQL holds the Postgres schema applied at startup when DB_MIGRATE is on.
// Every statement is idempotent.
//
//go:embed schema.sql
var SQL string
