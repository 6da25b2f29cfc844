// Package db embeds the PostgreSQL schema of the point-of-sale service.
package db

import _ "embed"

// Schema creates the catalog and order tables. Every statement is
// idempotent, so it runs on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
