// Package repository defines the durable-store interfaces consumed by the
// account security core. Implementations live in subpackages; the core only
// depends on these interfaces and their sentinel errors.
package repository

import "database/sql"

// BaseRepository provides shared database access for SQL-backed repositories
type BaseRepository struct {
	db *sql.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sql.DB) BaseRepository {
	return BaseRepository{db: db}
}

// DB returns the underlying database handle
func (r BaseRepository) DB() *sql.DB {
	return r.db
}
