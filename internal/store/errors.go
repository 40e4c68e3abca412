package store

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned by update/delete queries that match zero rows,
// and by single-row Get* lookups that match no row at all.
var ErrNotFound = errors.New("store: record not found")

// ErrTerminalBuild is returned when a status transition is attempted on a
// build already in a terminal state (spec §8 invariant 3).
var ErrTerminalBuild = errors.New("store: build is already in a terminal state")

// wrapNotFound normalizes sql.ErrNoRows into ErrNotFound so callers (the
// API layer's respondStoreError in particular) only ever need to check for
// one sentinel, regardless of which query shape produced the miss.
func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
