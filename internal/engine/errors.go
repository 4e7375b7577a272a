package engine

import (
	"fmt"

	"github.com/daryltucker/cache-bench/internal/model"
)

// ProvisionError means the database, container or initial ingest for a
// descriptor could not be set up. Nothing created so far is rolled back.
type ProvisionError struct {
	Descriptor string
	Step       string
	Err        error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provisioning %q failed at %s: %v", e.Descriptor, e.Step, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// OperationError aborts a sequential run. No summary is produced.
type OperationError struct {
	Descriptor string
	Kind       model.Kind
	Phase      string
	// Index is the 1-based position of the failing operation within Phase.
	Index int
	Err   error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s benchmark %q aborted during %s at operation %d: %v",
		e.Kind, e.Descriptor, e.Phase, e.Index, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// RecoverableOperationError is a failed custom-mode request; the session
// continues with the next request.
type RecoverableOperationError struct {
	Descriptor string
	Kind       model.Kind
	Input      string
	Err        error
}

func (e *RecoverableOperationError) Error() string {
	return fmt.Sprintf("%s on %q with %q failed: %v", e.Kind, e.Descriptor, e.Input, e.Err)
}

func (e *RecoverableOperationError) Unwrap() error { return e.Err }

// CleanupFailure records a database that could not be deleted. It is
// reported and logged, never returned as an error.
type CleanupFailure struct {
	Descriptor string
	DatabaseID string
	Account    string
	Err        error
}

func (f CleanupFailure) Error() string {
	return fmt.Sprintf("cleanup of database %q for %q (%s) failed: %v", f.DatabaseID, f.Descriptor, f.Account, f.Err)
}

func (f CleanupFailure) Unwrap() error { return f.Err }
