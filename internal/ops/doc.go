// Package ops composes the fleet registry, the persisted device cache, and
// the discovery, polling, dispatch, and monitoring engines behind a single
// service used by both the CLI commands and the embedded API server.
package ops
