package output

import (
	"fmt"
	"time"
)

// FormatHashrate renders a hashrate in MH/s with an auto-selected unit.
func FormatHashrate(mhs float64) string {
	switch {
	case mhs >= 1e6:
		return fmt.Sprintf("%.2f TH/s", mhs/1e6)
	case mhs >= 1e3:
		return fmt.Sprintf("%.1f GH/s", mhs/1e3)
	case mhs > 0:
		return fmt.Sprintf("%.0f MH/s", mhs)
	}
	return "0 H/s"
}

// FormatUptime renders device uptime compactly, e.g. "3d 4h" or "12m".
func FormatUptime(seconds uint64) string {
	d := time.Duration(seconds) * time.Second
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%ds", seconds)
}

// FormatTemp renders a chip temperature.
func FormatTemp(c float64) string {
	return fmt.Sprintf("%.1f°C", c)
}

// FormatPower renders a power draw.
func FormatPower(w float64) string {
	return fmt.Sprintf("%.1f W", w)
}

// FormatEfficiency renders joules per terahash.
func FormatEfficiency(jth float64) string {
	if jth <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f J/TH", jth)
}

// FormatAge renders how long ago a timestamp was, e.g. "2m ago".
func FormatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours())/24)
}
