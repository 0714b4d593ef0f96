// Package courtapi is the client for the external court reservation
// service (the queue system that owns courts, users, and waitlists).
//
// The client covers four operations:
//
//   - Register: create a synthetic user from a phone-number-like ID
//   - Approve: admin-approve a registered user by animal name
//   - Reserve: place a group of four users on a court's queue
//   - ListCourts/GetCourt: fetch court metadata
//
// # Failure model
//
// Every call is bounded by the configured timeout. The client performs no
// retries; a failed call returns an error wrapping ErrRequestFailed (or
// ErrRejected for a 2xx-but-unsuccessful body) and the caller decides.
// The rotation engine deliberately treats the next rotation window as its
// retry, so calls here must stay at-most-once.
//
// # Collaborator contract
//
// Reserve relies on the service's own queue semantics: reserving with a
// waitlisted group seats that group and pushes the sitting group back
// onto the waitlist in a single call. This is assumed behaviour of the
// service, not enforced by this client.
package courtapi
