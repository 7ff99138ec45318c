package main

import (
	"fmt"
	"strings"
)

var dayNames = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// parseDays turns "all", "weekdays", "weekends" or a comma separated list
// of day abbreviations into a Monday-first schedule.
func parseDays(s string) ([7]bool, error) {
	var days [7]bool

	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "daily":
		return [7]bool{true, true, true, true, true, true, true}, nil
	case "weekdays":
		return [7]bool{true, true, true, true, true}, nil
	case "weekends":
		return [7]bool{false, false, false, false, false, true, true}, nil
	}

	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if len(name) > 3 {
			name = name[:3]
		}
		found := false
		for i, d := range dayNames {
			if d == name {
				days[i] = true
				found = true
				break
			}
		}
		if !found {
			return days, fmt.Errorf("unknown day %q", part)
		}
	}
	return days, nil
}

func formatDays(days [7]bool) string {
	var names []string
	for i, on := range days {
		if on {
			names = append(names, dayNames[i])
		}
	}
	switch len(names) {
	case 0:
		return "none"
	case 7:
		return "all"
	}
	return strings.Join(names, ",")
}
