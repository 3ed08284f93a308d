// Package store provides typed persistence accessors for ossgard's
// entities over the generic database.DB interface. It is the single
// source of truth the pipeline resumes from after a restart.
package store

import (
	"errors"

	"github.com/dhruvparmar372/ossgard-sub002/internal/database"
)

// ErrActiveScan is returned when scan creation finds a non-terminal
// scan already running for the repo.
var ErrActiveScan = errors.New("repo already has an active scan")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store bundles all entity accessors over one database handle.
type Store struct {
	db database.DB
}

// New creates a Store over db.
func New(db database.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need raw queries
// (the job queue shares the same database).
func (s *Store) DB() database.DB { return s.db }

type countRow struct {
	N int `db:"n"`
}
