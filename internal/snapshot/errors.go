package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidReference marks a malformed or non-root repository URL. The
	// caller supplied it, so the HTTP layer maps it to a 4xx.
	ErrInvalidReference = errors.New("invalid repository reference")

	// ErrSnapshotBusy is returned when another acquisition already holds the
	// repository's exclusive lock. Callers retry later instead of queueing.
	ErrSnapshotBusy = errors.New("snapshot busy: concurrent update in progress")

	// ErrNoBranchFound is returned when the remote advertises zero branches,
	// typically an empty repository.
	ErrNoBranchFound = errors.New("no branch found on remote")
)

// AcquisitionError wraps a remote-operation failure (network, auth, missing
// refs) with the git stage that produced it. The previous snapshot, if any,
// stays untouched and queryable.
type AcquisitionError struct {
	Stage string
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition failed during %s: %v", e.Stage, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func acquisitionFailed(stage string, err error) error {
	return &AcquisitionError{Stage: stage, Err: err}
}

// IsAcquisitionFailed reports whether err is an acquisition-layer failure.
func IsAcquisitionFailed(err error) bool {
	var acq *AcquisitionError
	return errors.As(err, &acq)
}
