// Package schemas provides the embedded SQLite schema migrations of the content store.
package schemas

import "embed"

// Migrations contains all SQL migration files. They are applied in file name order
// and every statement must be idempotent.
//
//go:embed migrations/*.sql
var Migrations embed.FS
