// Package axeapi implements the HTTP client for the AxeOS device API as
// exposed by Bitaxe and NerdQAxe miners. It normalizes the two firmware
// dialects into a single SystemInfo model and classifies failures into a
// small error taxonomy that callers can branch on.
package axeapi
