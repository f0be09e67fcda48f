package database

import _ "embed"

// Schema is the full database schema derived from the migrations. Tests
// apply it to in-memory databases instead of running the migrations.
//
//go:embed schema.sql
var Schema string
