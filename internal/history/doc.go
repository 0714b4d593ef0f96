// Package history is the durable audit log for rotation activity.
//
// Every session start, stop, rotation, and failure is appended to a
// SQLite table keyed by session. Recording is best-effort from the
// caller's point of view; the rotation engine logs and continues if an
// insert fails.
package history
