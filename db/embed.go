// Package db embeds the SQL schema applied on server startup.
package db

import _ "embed"

// Schema holds the idempotent DDL for the catalog, sales and session tables.
//
//go:embed migrations/001_schema.sql
var Schema string
