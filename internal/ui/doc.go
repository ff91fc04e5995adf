// Package ui provides the terminal UI components for the axectl CLI.
//
// It covers three concerns: the shared Lipgloss color palette and styles,
// the confirmation prompt shown before destructive bulk operations, and the
// Bubble Tea dashboard that renders live monitor ticks. Plain table output
// lives in the output package; ui owns everything interactive.
package ui
