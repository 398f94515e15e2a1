package nav

import (
	"fmt"
	"math"
	"time"
)

// FormatDuration renders seconds as "N min" or "H hr M min"
func FormatDuration(seconds float64) string {
	mins := int(math.Round(seconds / 60))
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	hrs := mins / 60
	rem := mins % 60
	if rem > 0 {
		return fmt.Sprintf("%d hr %d min", hrs, rem)
	}
	return fmt.Sprintf("%d hr", hrs)
}

// FormatDistance renders meters as "N m" below a kilometer and "X.Y km" above
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(math.Round(meters)))
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// ArrivalTime returns the wall-clock arrival as "15:04"
func ArrivalTime(now time.Time, durationSeconds float64) string {
	return now.Add(time.Duration(durationSeconds * float64(time.Second))).Format("15:04")
}
