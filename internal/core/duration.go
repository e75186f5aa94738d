package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var muteUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseMuteDuration parses "<integer><unit>" where unit is one of s, m, h, d.
// "10m" is ten minutes. Zero, negative or unit-less values are rejected.
func ParseMuteDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, invalidDuration(s)
	}

	unit, ok := muteUnits[s[len(s)-1]]
	if !ok {
		return 0, invalidDuration(s)
	}

	magnitude := s[:len(s)-1]
	for _, r := range magnitude {
		if r < '0' || r > '9' {
			return 0, invalidDuration(s)
		}
	}
	n, err := strconv.ParseInt(magnitude, 10, 64)
	if err != nil || n <= 0 {
		return 0, invalidDuration(s)
	}
	if n > int64(maxMuteDuration/unit) {
		return 0, invalidDuration(s)
	}

	return time.Duration(n) * unit, nil
}

// maxMuteDuration bounds mutes to roughly a century so the expiry cannot overflow.
const maxMuteDuration = 100 * 365 * 24 * time.Hour

func invalidDuration(s string) error {
	return NewError(ErrCodeBadRequest, fmt.Sprintf("'%s' is not a valid duration (expected e.g. 45s, 10m, 2h, 3d)", s))
}

// FormatDuration renders d as days, hours, minutes and seconds, e.g. "1d2h0m5s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	if days > 0 {
		return fmt.Sprintf("%dd%dh%dm%ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
