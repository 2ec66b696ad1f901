package jobqueue

import "errors"

var (
	// ErrJobNotFound is returned when the referenced job row does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotOwner is returned when complete/fail is called by a worker that no
	// longer holds the lease, typically because the job was reaped and
	// reclaimed while the caller was still running.
	ErrNotOwner = errors.New("job lease not held by caller")

	// ErrIllegalTransition is returned when an administrative operation would
	// move a job to a status its state machine forbids.
	ErrIllegalTransition = errors.New("illegal job status transition")
)
