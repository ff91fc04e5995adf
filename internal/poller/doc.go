// Package poller fetches live stats from registered miners with bounded
// concurrency. A poll returns one sample per requested device in input
// order, whether or not the device answered, and can fold the results into
// fleet-wide summaries.
package poller
