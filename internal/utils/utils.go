package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatFileSize converts bytes to human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// FormatDate renders t the way list output shows creation and expiry dates
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Local().Format("Jan 2, 2006 at 3:04 PM")
}

// FormatDaysRemaining renders a day count for humans
func FormatDaysRemaining(days int) string {
	if days <= 0 {
		return "expired"
	} else if days == 1 {
		return "1 day"
	} else if days < 7 {
		return fmt.Sprintf("%d days", days)
	}
	weeks := days / 7
	if weeks == 1 {
		return "1 week"
	}
	return fmt.Sprintf("%d weeks", weeks)
}

// ProgressBar draws a fixed width bar for fraction, clamped to [0, 1]
func ProgressBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(float64(width) * fraction)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
