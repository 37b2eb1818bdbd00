package kubetable

import (
	"fmt"
	"time"
)

// FormatAge renders a duration as a compact relative age:
//
//   - under a minute: "42s"
//   - under an hour: "17m"
//   - under a day: "5h" or "5h12m"
//   - otherwise: "3d"
//
// Each unit is truncated, not rounded. Negative durations render as "0s".
func FormatAge(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}

	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 60*60:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 24*60*60:
		hours := secs / 3600
		mins := (secs % 3600) / 60
		if mins == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		return fmt.Sprintf("%dh%dm", hours, mins)
	default:
		return fmt.Sprintf("%dd", secs/86400)
	}
}

// AgeOf returns the age of a resource created at created, evaluated at now.
// It returns nil when created is the zero time.
func AgeOf(created, now time.Time) *Age {
	if created.IsZero() {
		return nil
	}
	return &Age{
		Sort: created.UnixMilli(),
		Text: FormatAge(now.Sub(created)),
	}
}
