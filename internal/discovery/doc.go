// Package discovery locates AxeOS miners on the local network.
//
// Two producers feed a shared probe pool: a multicast DNS browse across the
// service types miners advertise, and a bounded-concurrency sweep of an
// IPv4 subnet. Either path alone is unreliable (mDNS is often filtered,
// sweeps miss devices outside the range), so both run on every pass and an
// HTTP probe of the device info endpoint makes the final identification.
//
// Discovered devices are merged into a fleet.Registry; the engine keeps no
// state of its own between runs.
package discovery
