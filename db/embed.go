// Package db provides embedded database migration files.
package db

import "embed"

// Migrations holds the versioned schema migrations in golang-migrate format.
//
//go:embed migrations/*.sql
var Migrations embed.FS
