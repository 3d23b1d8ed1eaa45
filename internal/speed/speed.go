// Package speed normalises playback rates to the string form the player
// stores and sends.
package speed

import (
	"fmt"
	"strconv"
	"strings"
)

// Default is the rate used when nothing better is known.
const Default = "1.0"

// fallback maps a rate the current source does not offer to the nearest one
// a YouTube or HTML5 source usually does.
var fallback = map[string]string{
	"0.25": "0.75",
	"0.50": "0.75",
	"0.75": "0.50",
	"1.25": "1.50",
	"2.0":  "1.50",
}

// ToString formats a rate with two decimals, collapsing "N.00" to "N.0".
func ToString(rate float64) string {
	s := fmt.Sprintf("%.2f", rate)
	if strings.HasSuffix(s, ".00") {
		s = strings.TrimSuffix(s, "0")
	}
	return s
}

// Parse reads a rate from its string form.
func Parse(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return 0, false
	}
	return f, true
}

// Canonical re-renders s through ToString, so "1.5" becomes "1.50".
func Canonical(s string) string {
	f, ok := Parse(s)
	if !ok {
		return s
	}
	return ToString(f)
}

// Normalize returns requested when available offers it. Otherwise the
// fallback rate is used when available offers that, and Default when not.
func Normalize(requested string, available []string) string {
	req := Canonical(requested)
	has := func(v string) bool {
		for _, a := range available {
			if Canonical(a) == v {
				return true
			}
		}
		return false
	}
	if has(req) {
		return req
	}
	if alt, ok := fallback[req]; ok && has(alt) {
		return alt
	}
	return Default
}
