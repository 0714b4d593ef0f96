package courtapi

import "errors"

// Domain errors for the courtapi package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, courtapi.ErrRequestFailed) {
//	    // transient external failure; retry next window
//	}
var (
	// ErrRequestFailed is returned when the reservation service answers
	// with a non-2xx status or cannot be reached.
	ErrRequestFailed = errors.New("courtapi: request failed")

	// ErrRejected is returned when the service answers 2xx but reports
	// success=false in the body.
	ErrRejected = errors.New("courtapi: rejected")

	// ErrCourtNotFound is returned when a court ID is not present in the
	// service's court listing.
	ErrCourtNotFound = errors.New("courtapi: court not found")
)
