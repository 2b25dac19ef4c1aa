// Package countdown renders time-until-open durations for people.
package countdown

import (
	"fmt"
	"time"
)

const day = 24 * time.Hour

// Humanize floors d to the largest whole unit among days, hours and minutes.
// Durations under a minute render as "less than a minute", non-positive ones as "now".
func Humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return "now"
	case d >= day:
		return plural(int64(d/day), "day")
	case d >= time.Hour:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int64(d/time.Minute), "minute")
	default:
		return "less than a minute"
	}
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
