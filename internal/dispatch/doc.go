// Package dispatch applies one command across many miners with bounded
// concurrency. Commands are validated before any device is contacted, and
// destructive commands (restarts, pool changes, firmware flashes) require
// explicit confirmation; without it the dispatcher returns a dry-run
// outcome listing the would-be targets.
package dispatch
