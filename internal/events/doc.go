// Package events broadcasts automation lifecycle events over MQTT.
//
// Topics follow courtrotation/event/<name>, where name is one of
// started, stopped, rotated, or failed. Payloads are JSON. The notifier
// is optional; when MQTT is disabled the rest of the system runs with a
// nil notifier and nothing is published.
package events
