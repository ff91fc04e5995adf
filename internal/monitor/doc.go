// Package monitor runs the continuous fleet health loop. Each tick polls
// every registered miner, evaluates temperature and hashrate conditions
// against recent history, and hands the result to the caller. Alerts are
// level-triggered rather than edge-triggered, so a condition that persists
// keeps firing until it clears.
package monitor
