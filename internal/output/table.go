package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"axectl/internal/fleet"
	"axectl/internal/poller"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#43BF6D"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// renderTable lays out rows under a styled header with per-column padding.
// Column widths follow the widest cell.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); i < len(widths) && w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for i, h := range headers {
		b.WriteString(headerStyle.Render(pad(h, widths[i])))
		if i < len(headers)-1 {
			b.WriteString("  ")
		}
	}
	b.WriteString("\n")
	for _, row := range rows {
		for i, cell := range row {
			b.WriteString(pad(cell, widths[i]))
			if i < len(row)-1 {
				b.WriteString("  ")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// pad right-fills to the display width, ignoring ANSI escapes in styled
// cells.
func pad(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

// DeviceTable renders the registry listing.
func DeviceTable(devices []fleet.Device, now time.Time) string {
	if len(devices) == 0 {
		return mutedStyle.Render("no devices known; run a discover first") + "\n"
	}
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		mac := d.MAC
		if mac == "" {
			mac = "-"
		}
		rows = append(rows, []string{
			d.ID,
			d.IP,
			mac,
			string(d.Type),
			string(d.Source),
			FormatAge(d.LastSeen, now),
		})
	}
	return renderTable([]string{"ID", "IP", "MAC", "TYPE", "SOURCE", "LAST SEEN"}, rows)
}

// StatsTable renders one poll across the fleet, one row per device in the
// order polled.
func StatsTable(samples []poller.Sample) string {
	if len(samples) == 0 {
		return mutedStyle.Render("no devices to poll") + "\n"
	}
	rows := make([][]string, 0, len(samples))
	for _, s := range samples {
		if s.Err != nil {
			rows = append(rows, []string{
				s.Device.ID,
				offlineStyle.Render("offline"),
				"-", "-", "-", "-", "-",
			})
			continue
		}
		rows = append(rows, []string{
			s.Device.ID,
			onlineStyle.Render("online"),
			FormatHashrate(s.Snapshot.HashrateMHS),
			FormatTemp(s.Snapshot.TempC),
			FormatPower(s.Snapshot.PowerW),
			fmt.Sprintf("%d/%d", s.Snapshot.SharesAccepted, s.Snapshot.SharesRejected),
			FormatUptime(s.Snapshot.UptimeSeconds),
		})
	}
	return renderTable([]string{"ID", "STATUS", "HASHRATE", "TEMP", "POWER", "SHARES A/R", "UPTIME"}, rows)
}

// SummaryBlock renders swarm totals beneath a stats table.
func SummaryBlock(s poller.SwarmSummary) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("SWARM"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  devices: %d online, %d unreachable\n", s.Online, s.Unreachable)
	fmt.Fprintf(&b, "  hashrate: %s\n", FormatHashrate(s.TotalHashrateMHS))
	fmt.Fprintf(&b, "  power: %s (%s)\n", FormatPower(s.TotalPowerW), FormatEfficiency(s.EfficiencyJTH))
	if s.Online > 0 {
		fmt.Fprintf(&b, "  avg temp: %s\n", FormatTemp(s.AvgTempC))
	}
	if len(s.PerType) > 0 {
		for _, typ := range fleet.AllTypes {
			ts, ok := s.PerType[typ]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "  %s: %d × %s\n", typ, ts.Count, FormatHashrate(ts.TotalHashrateMHS))
		}
	}
	return b.String()
}

// RenderJSON marshals any result for --format json.
func RenderJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding output: %w", err)
	}
	return string(data) + "\n", nil
}
