package reconcile

import (
	"errors"
	"fmt"
)

// External calls named in SyncError.Op.
const (
	OpRunCopy           = "runCopy"
	OpTableExists       = "tableExists"
	OpInferSourceSchema = "inferSourceSchema"
	OpCreateEmptyTable  = "createEmptyTable"
)

var ErrMissingResource = errors.New("missing resource handle")

// SyncError reports which external call failed for which table. It is a
// per-unit runtime failure and is never retried here.
type SyncError struct {
	Table string
	Op    string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s: %s: %v", e.Table, e.Op, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sync errors.
func (e *SyncError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsSyncError checks if an error came out of Sync.
func IsSyncError(err error) bool {
	var syncErr *SyncError

	return errors.As(err, &syncErr)
}
