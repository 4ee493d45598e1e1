package feed

import (
	"fmt"
	"strconv"
	"strings"
)

// CleanName shortens a stop name for display.
// Replacements are literal substrings and also apply inside other words,
// so "Plate" becomes "Pl@e". Feeds already depend on this output for matching.
func CleanName(name string) string {
	name = strings.ReplaceAll(name, "at", "@")
	name = strings.ReplaceAll(name, "avenue", "Ave")
	name = strings.ReplaceAll(name, "Avenue", "Ave")
	name = strings.ReplaceAll(name, "bound", "")
	name = strings.ReplaceAll(name, "street", "St")
	name = strings.ReplaceAll(name, "Street", "St")
	return name
}

// ParseTimeToSeconds converts HH:MM:SS to seconds since service-day midnight
// Handles times >= 24:00:00 (next day service)
func ParseTimeToSeconds(timeStr string) (int, error) {
	if timeStr == "" {
		return 0, fmt.Errorf("empty time string")
	}

	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time format: %s", timeStr)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("invalid time format: %s", timeStr)
	}

	return fields[0]*3600 + fields[1]*60 + fields[2], nil
}

// FormatSeconds is the inverse of ParseTimeToSeconds
func FormatSeconds(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
