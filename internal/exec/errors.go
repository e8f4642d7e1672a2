package exec

import (
	"errors"
	"fmt"
)

// ErrWriteConflict is the sentinel every *ExecError wraps when a DML
// operator detects that it cannot safely overwrite another transaction's
// write, per spec §7. It is recoverable only by aborting the offending
// transaction; the transaction is tainted before this error is returned.
var ErrWriteConflict = errors.New("exec: write-write conflict")

// ExecError is the typed error DML operators raise for a write conflict,
// distinguished from the panics §7 reserves for true contract violations
// (buffer-pool pin accounting, latch discipline) which this package never
// recovers from.
type ExecError struct {
	Err error
}

func (e *ExecError) Error() string { return e.Err.Error() }
func (e *ExecError) Unwrap() error { return e.Err }

func writeConflictErr(table string) error {
	return &ExecError{Err: fmt.Errorf("%w: table %q", ErrWriteConflict, table)}
}
