package render

import (
	"fmt"
	"strconv"
	"strings"
)

//nolint:gochecknoglobals // constant table
var magnitudes = []struct {
	scale  float64
	suffix string
}{
	{1e3, "k"},
	{1e6, "m"},
	{1e9, "b"},
}

// FormatLargeNumber abbreviates n with k, m or b. One decimal is shown unless the scaled value is
// at least 100, and a trailing ".0" is dropped. A value that rounds up to 1000 of one unit is
// written in the next unit, so 999999 is "1m". Counts are never negative, so n < 0 reads as 0.
func FormatLargeNumber(n int64) string {
	n = max(n, 0)
	if n < 1000 {
		return strconv.FormatInt(n, 10)
	}

	unit := 0
	for unit+1 < len(magnitudes) && float64(n) >= magnitudes[unit+1].scale {
		unit++
	}
	for {
		scaled := float64(n) / magnitudes[unit].scale
		var s string
		if scaled >= 100 {
			s = strconv.FormatFloat(scaled, 'f', 0, 64)
		} else {
			s = strconv.FormatFloat(scaled, 'f', 1, 64)
		}
		s = strings.TrimSuffix(s, ".0")
		if unit+1 < len(magnitudes) {
			if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 1000 {
				unit++
				continue
			}
		}
		return s + magnitudes[unit].suffix
	}
}

func formatTPS(tps float64) string {
	return fmt.Sprintf("%.2f", tps)
}

func formatMSPT(mspt float64) string {
	return fmt.Sprintf("%.1f", mspt)
}

// performanceMarkup colors the 1m tick rate by health.
func performanceMarkup(tps float64) string {
	var color string
	switch {
	case tps >= 19.5:
		color = "green"
	case tps >= 18:
		color = "yellow"
	case tps >= 15:
		color = "gold"
	default:
		color = "red"
	}
	return "<" + color + ">" + formatTPS(min(tps, 20)) + " TPS"
}

func deathsFormatted(deaths int64) string {
	return "<dark_gray>[</dark_gray><red>☠</red> <red>" + strconv.FormatInt(deaths, 10) +
		"</red><dark_gray>]</dark_gray>"
}
