// Package fleet holds the device model, the in-memory registry, and the
// persisted device cache. The registry is the single source of truth for
// fleet membership; discovery writes into it and the poller, dispatcher and
// monitor read immutable snapshots from it.
package fleet
