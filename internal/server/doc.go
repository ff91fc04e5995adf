// Package server implements the embedded HTTP API for axectl.
//
// The server exposes the fleet over a loopback-bound REST surface: device
// listing, discovery runs, stats polls, and bulk commands, plus a websocket
// stream of live stats frames and a Prometheus /metrics endpoint. It shares
// the same ops.Service the CLI commands use, so API and CLI always agree on
// the registry and cache.
//
// The API carries no authentication. The default bind address is
// 127.0.0.1; exposing it beyond the local machine is the operator's
// explicit choice.
package server
