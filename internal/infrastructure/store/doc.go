// Package store provides durable key-value persistence for automation
// session state.
//
// The package exposes a single capability interface, KV, with three
// interchangeable backends:
//
//   - Redis (direct connection, production default)
//   - A managed key-value service spoken to over HTTPS (Upstash-compatible
//     REST protocol)
//   - An in-process map for tests and local development
//
// Consumers depend only on the KV interface; the backend is selected once
// at construction time from configuration. Values are opaque serialized
// records and every write carries a TTL, so an abandoned session cannot
// outlive its store entries.
//
// # Failure model
//
// Reads of an absent key return ErrNotFound; transport failures return
// errors wrapping ErrUnavailable. Callers holding session state treat a
// failed read as "no session" (fail-open) but must propagate failed
// writes (fail-closed), since a lost write corrupts rotation state.
//
// # Readiness
//
// WaitReady probes the backend with bounded, cancellable retries and
// exponential backoff. It replaces blocking connection setup in the
// caller's goroutine with an explicit readiness result.
package store
