// Package output renders fleet data for the terminal: unit formatting for
// hashrate, uptime, and power, aligned tables for device listings and stats
// polls, and a JSON mode for scripting.
package output
