// Package db provides the embedded database schema and the default pricing
// grid.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// DefaultGrid is the storefront's default pricing grid as a JSON array of
// tiers.
//
//go:embed seed/pricing_tiers.json
var DefaultGrid []byte
