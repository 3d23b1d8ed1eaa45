// Package timefmt formats and parses playhead positions.
package timefmt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrSyntax is returned for input that is not "HH:MM:SS".
	ErrSyntax = errors.New("timefmt: expected HH:MM:SS")
	// ErrRange is returned when a field is out of range.
	ErrRange = errors.New("timefmt: field out of range")
)

func split(seconds float64) (h, m, s int) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	return total / 3600, total % 3600 / 60, total % 60
}

// Format renders seconds as "M:SS", or "H:MM:SS" once an hour is reached.
func Format(seconds float64) string {
	h, m, s := split(seconds)
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatFull renders seconds as "HH:MM:SS". Negative and non-finite input
// renders as "00:00:00".
func FormatFull(seconds float64) string {
	h, m, s := split(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Convert rescales a position recorded at oldSpeed to newSpeed, rounded to
// milliseconds.
func Convert(seconds, oldSpeed, newSpeed float64) float64 {
	if newSpeed == 0 {
		return seconds
	}
	return math.Round(seconds*oldSpeed/newSpeed*1000) / 1000
}

// Parse reads "HH:MM:SS" into a duration. Hours must be below 24, minutes
// and seconds below 60.
func Parse(v string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, v)
	}
	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || p == "" || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrSyntax, v)
		}
		fields[i] = n
	}
	if fields[0] >= 24 || fields[1] >= 60 || fields[2] >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrRange, v)
	}
	return time.Duration(fields[0])*time.Hour +
		time.Duration(fields[1])*time.Minute +
		time.Duration(fields[2])*time.Second, nil
}

// FormatDuration renders d as "HH:MM:SS".
func FormatDuration(d time.Duration) string {
	return FormatFull(d.Seconds())
}
