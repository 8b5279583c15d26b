package widget

import (
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

var (
	dayAgeMagnitudes = []humanize.RelTimeMagnitude{
		{D: math.MaxInt64, Format: "%dd", DivBy: 24 * time.Hour},
	}
	hourAgeMagnitudes = []humanize.RelTimeMagnitude{
		{D: math.MaxInt64, Format: "%dh", DivBy: time.Hour},
	}
)

// DayAgeLabel renders the whole days between timestamp and now, e.g. "3d".
func DayAgeLabel(timestamp time.Time, now time.Time) string {
	if timestamp.IsZero() {
		return ""
	}
	return humanize.CustomRelTime(timestamp, now, "", "", dayAgeMagnitudes)
}

// HourAgeLabel renders the whole hours between timestamp and now, e.g. "18h".
func HourAgeLabel(timestamp time.Time, now time.Time) string {
	if timestamp.IsZero() {
		return ""
	}
	return humanize.CustomRelTime(timestamp, now, "", "", hourAgeMagnitudes)
}
