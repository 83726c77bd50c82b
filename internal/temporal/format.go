package temporal

import (
	"fmt"
	"time"
)

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// FormatRelative renders t for human display relative to now:
// "in 5 min", "tomorrow", "3 days ago", falling back to "Mar 02" beyond a
// week. The zero time renders as the empty string.
func FormatRelative(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	diff := t.Sub(now)

	if diff < 0 {
		diff = -diff
		switch {
		case diff < time.Minute:
			return "just now"
		case diff < time.Hour:
			return fmt.Sprintf("%d min ago", int(diff.Minutes()))
		case diff < 24*time.Hour && sameDay(t, now):
			return "today"
		case diff < 48*time.Hour:
			return "yesterday"
		case diff < 7*24*time.Hour:
			return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
		default:
			return t.Format("Jan 02")
		}
	}

	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("in %d min", int(diff.Minutes()))
	case diff < 24*time.Hour && sameDay(t, now):
		return "today"
	case sameDay(t, now.AddDate(0, 0, 1)):
		return "tomorrow"
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("in %d days", int(diff.Hours()/24))
	default:
		return t.Format("Jan 02")
	}
}

// FormatAbsolute renders t compactly, omitting the year when it matches
// the current one.
func FormatAbsolute(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02 15:04")
	}
	return t.Format("2006-01-02 15:04")
}
