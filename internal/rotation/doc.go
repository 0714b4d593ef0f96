// Package rotation implements court reservation automation.
//
// A session runs a pool of twelve users on a court, split into three
// ordered groups of four. One group occupies the court while the other
// two wait in the reservation queue; every rotation window the next
// group is reserved onto the court, which simultaneously demotes the
// sitting group to the back of the waitlist.
//
// Architecture:
//
//	Manager  - session lifecycle: start, stop, status, conflict checks,
//	           the initial three-group queue fill, lazy expiry
//	Engine   - the periodic tick: window checks, group advancement,
//	           expiry teardown, per-court failure isolation
//	PoolManager  - user provisioning with pool recycling
//	SessionStore - session persistence over a pluggable key-value store
//
// Two session scopes exist, single-court and multi-court, and at most
// one session per scope may be active. They rotate independently.
//
// Persistence follows a pointer-plus-body layout: a small pointer record
// names the current session, the body holds its state, and the body is
// always written first. All records carry a TTL so abandoned sessions
// self-destruct. Reads fail open (an unreachable store looks like no
// session), writes fail closed.
//
// The tick is idempotent. Rotation decisions are made under a per-court
// lock with the state re-read after the lock is acquired, so overlapping
// schedulers or a manual trigger racing the timer cause at most one
// rotation per window.
package rotation
