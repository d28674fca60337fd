package controller

import "math"

const defaultUnit = "bps"

var unitDivisors = map[string]float64{
	"bps":  1,
	"Kbps": 0.001,
	"Mbps": 0.000001,
	"B/s":  0.125,
	"KB/s": 0.000125,
	"MB/s": 0.000000125,
}

// UnitLabel returns unit when it is a known display unit and "bps"
// otherwise.
func UnitLabel(unit string) string {
	if _, ok := unitDivisors[unit]; ok {
		return unit
	}
	return defaultUnit
}

// Convert turns a bits-per-second value into unit. Unknown units leave
// the value unchanged.
func Convert(bps float64, unit string) float64 {
	divisor, ok := unitDivisors[unit]
	if !ok {
		return bps
	}
	return bps * divisor
}

// Usage returns the used share of total as a rounded percentage, or
// "unknown" when total is not positive.
func Usage(total, free int64) any {
	if total <= 0 {
		return "unknown"
	}
	return int64(math.Round(float64(total-free) / float64(total) * 100))
}
