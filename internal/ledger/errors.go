package ledger

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when no actor identity is available at
// mapping or commit time.
var ErrUnauthenticated = errors.New("no authenticated user")

// ErrNotFound is returned for lookups of records that don't exist or belong
// to a different owner.
var ErrNotFound = errors.New("not found")

// PersistenceError reports a store write that was rejected. Callers must
// assume nothing from the batch was committed and re-attempt the whole
// batch; there is no partial-success state to patch.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting entries: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
