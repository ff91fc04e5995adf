package ui

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"axectl/internal/fleet"
)

// ConfirmBulkOperation displays a warning box listing the devices a
// destructive bulk command would touch and prompts the user to type "yes"
// to proceed. Returns true only on explicit confirmation.
func ConfirmBulkOperation(description string, targets []fleet.Device) bool {
	width := GetTerminalWidth()

	var lines []string
	titleLine := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true).
		Render(fmt.Sprintf("   %s  This will %s on %d device(s)", AlertMarker, description, len(targets)))
	lines = append(lines, "", titleLine, "")

	bulletStyle := lipgloss.NewStyle().Foreground(TextColor)
	for _, d := range targets {
		lines = append(lines, bulletStyle.Render(fmt.Sprintf("   • %s (%s)", d.ID, d.IP)))
	}
	lines = append(lines, "")

	noteStyle := lipgloss.NewStyle().
		Foreground(MutedColor).
		Italic(true).
		PaddingLeft(3)
	lines = append(lines, noteStyle.Render("Mining is interrupted while devices restart or flash."), "")

	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))

	fmt.Println(box)
	fmt.Println()

	promptStyle := lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true)
	fmt.Print(promptStyle.Render(`Type "yes" to proceed: `))

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return false
	}

	if strings.TrimSpace(strings.ToLower(input)) == "yes" {
		fmt.Println()
		return true
	}

	fmt.Println()
	fmt.Println(MutedStyle.Render("  Operation cancelled."))
	fmt.Println()
	return false
}
