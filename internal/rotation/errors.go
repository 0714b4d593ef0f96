package rotation

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession indicates no session exists for the requested scope.
	ErrNoSession = errors.New("rotation: no active session")

	// ErrAlreadyRunning indicates a start was attempted while a live
	// session of the same scope exists.
	ErrAlreadyRunning = errors.New("rotation: automation already running")

	// ErrInvalidDuration indicates a non-positive session duration.
	ErrInvalidDuration = errors.New("rotation: duration must be positive")

	// ErrNoCourts indicates a multi-court start with an empty court list.
	ErrNoCourts = errors.New("rotation: no courts specified")

	// ErrStorage indicates a session write could not be completed.
	// Reads degrade silently; writes fail loudly.
	ErrStorage = errors.New("rotation: session storage failed")
)

// PartialProvisioningError reports that user provisioning fell short of
// the pool size a session needs.
type PartialProvisioningError struct {
	Produced int
	Required int
}

func (e *PartialProvisioningError) Error() string {
	return fmt.Sprintf("rotation: provisioned %d of %d required users", e.Produced, e.Required)
}
