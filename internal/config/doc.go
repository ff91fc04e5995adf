// Package config manages the persisted user preferences for axectl.
//
// Preferences live in a YAML file under the platform config directory
// (for example $XDG_CONFIG_HOME/axectl/config.yaml on Linux) and cover the
// default discovery network, probe tuning, monitor thresholds, pool
// defaults, and the embedded server listen address. A missing file is not
// an error; every field has a working default. Writes are atomic.
package config
