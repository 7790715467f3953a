// Package schema embeds the PostgreSQL schema.
package schema

import _ "embed"

//go:embed schema.sql
var SQL string
