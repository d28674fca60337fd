package controller

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// lastSeen resolves a RouterOS last-seen value, either RFC3339 or an age
// such as "1w2d3h4m5s" or "01:02:03", to an absolute time.
func lastSeen(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" || value == "never" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), true
	}
	if d, err := parseDuration(value); err == nil {
		return now.UTC().Add(-d), true
	}
	return time.Time{}, false
}

func parseDuration(value string) (time.Duration, error) {
	if strings.Contains(value, ":") {
		parts := strings.Split(value, ":")
		if len(parts) != 3 {
			return 0, fmt.Errorf("invalid hh:mm:ss: %s", value)
		}
		var dur time.Duration
		for i, unit := range []time.Duration{time.Hour, time.Minute, time.Second} {
			n, err := strconv.Atoi(parts[i])
			if err != nil {
				return 0, err
			}
			dur += time.Duration(n) * unit
		}
		return dur, nil
	}

	mult := map[string]time.Duration{
		"w":  7 * 24 * time.Hour,
		"d":  24 * time.Hour,
		"h":  time.Hour,
		"m":  time.Minute,
		"s":  time.Second,
		"ms": time.Millisecond,
	}

	var dur time.Duration
	number := ""
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch >= '0' && ch <= '9' {
			number += string(ch)
			continue
		}
		suffix := string(ch)
		if ch == 'm' && i+1 < len(value) && value[i+1] == 's' {
			suffix = "ms"
			i++
		}
		unit, ok := mult[suffix]
		if !ok || number == "" {
			return 0, fmt.Errorf("invalid duration segment: %s", value)
		}
		n, err := strconv.Atoi(number)
		if err != nil {
			return 0, err
		}
		dur += time.Duration(n) * unit
		number = ""
	}
	if number != "" {
		n, err := strconv.Atoi(number)
		if err != nil {
			return 0, err
		}
		dur += time.Duration(n) * time.Second
	}
	if dur == 0 {
		return 0, fmt.Errorf("zero duration")
	}
	return dur, nil
}
