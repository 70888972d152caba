// Package scheduler runs the periodic per-pod refresh jobs. The update
// period grammar is parsed once at configuration load; the runtime operates
// only on the normalized Interval.
package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Interval is a normalized update period: either a fixed duration between
// runs, or a daily time of day.
type Interval struct {
	Every  time.Duration
	Daily  bool
	Hour   int
	Minute int
}

var (
	durationRe = regexp.MustCompile(`^(?:(\d{1,2})d)?(?:(\d{1,2})h)?(?:(\d{1,2})m)?$`)
	clockRe    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseInterval parses the update period grammar: "2d", "1d12h", "1d2h30m",
// "4h", "2h45m", "30m" for durations, "12:00" for a daily time of day.
func ParseInterval(s string) (Interval, error) {
	if m := clockRe.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return Interval{}, fmt.Errorf("invalid time of day %q", s)
		}
		return Interval{Daily: true, Hour: hour, Minute: minute}, nil
	}

	m := durationRe.FindStringSubmatch(s)
	if m == nil || s == "" {
		return Interval{}, fmt.Errorf("invalid update interval %q", s)
	}
	days, _ := strconv.Atoi(m[1])
	hours, _ := strconv.Atoi(m[2])
	minutes, _ := strconv.Atoi(m[3])

	every := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute
	if every <= 0 {
		return Interval{}, fmt.Errorf("invalid update interval %q", s)
	}
	return Interval{Every: every}, nil
}
