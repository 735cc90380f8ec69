package repositories

import (
	"database/sql"
	"errors"
)

var (
	// ErrNotFound is returned when a lookup by key matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrRunFinalized is returned when a terminal sync run is written again.
	ErrRunFinalized = errors.New("sync run already finalized")
	// ErrStaleStatus is returned when a guarded status update loses a race.
	ErrStaleStatus = errors.New("status changed concurrently")
)

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
