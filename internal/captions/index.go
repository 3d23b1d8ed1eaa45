// Package captions indexes a transcript by start time and picks the
// transcript language.
package captions

import (
	"errors"
	"io"

	"github.com/goccy/go-json"
)

// ErrLengthMismatch is reported by Decode when start and text differ in
// length. The index is still usable; extra entries are ignored.
var ErrLengthMismatch = errors.New("captions: start and text lengths differ")

// Index is a transcript in sjson form: parallel start times (ms) and text.
type Index struct {
	Start []int    `json:"start"`
	Text  []string `json:"text"`
}

// Decode reads an sjson document.
func Decode(r io.Reader) (Index, error) {
	var idx Index
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return Index{}, err
	}
	if len(idx.Start) != len(idx.Text) {
		return idx.trim(), ErrLengthMismatch
	}
	return idx, nil
}

func (x Index) trim() Index {
	n := min(len(x.Start), len(x.Text))
	return Index{Start: x.Start[:n], Text: x.Text[:n]}
}

// Size returns the number of captions.
func (x Index) Size() int { return len(x.Text) }

// Filter keeps captions whose start lies in [start, end]. A nil end means
// the last start time.
func (x Index) Filter(start int, end *int) Index {
	x = x.trim()
	out := Index{Start: []int{}, Text: []string{}}
	if len(x.Start) == 0 {
		return out
	}
	hi := x.Start[len(x.Start)-1]
	if end != nil {
		hi = *end
	}
	for i, s := range x.Start {
		if s >= start && s <= hi {
			out.Start = append(out.Start, s)
			out.Text = append(out.Text, x.Text[i])
		}
	}
	return out
}

// Search returns the position of the caption showing at ms: the last one
// whose start is at or before ms, or 0 when ms precedes every caption. It
// reports false for an empty index.
func (x Index) Search(ms int) (int, bool) {
	return search(x.trim().Start, ms)
}

// SearchWithin searches only the captions kept by Filter(start, end). The
// returned position is relative to that filtered list.
func (x Index) SearchWithin(ms, start int, end *int) (int, bool) {
	return search(x.Filter(start, end).Start, ms)
}

func search(starts []int, ms int) (int, bool) {
	if len(starts) == 0 {
		return 0, false
	}
	lo, hi := 0, len(starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ms < starts[mid] {
			hi = mid - 1
		} else {
			lo = mid
		}
	}
	return lo, true
}

// CurrentLanguage keeps current when available offers it, else falls back
// to "en", else to the last available code. It returns "" when nothing is
// available.
func CurrentLanguage(current string, available []string) string {
	if len(available) == 0 {
		return ""
	}
	has := func(code string) bool {
		for _, a := range available {
			if a == code {
				return true
			}
		}
		return false
	}
	switch {
	case current != "" && has(current):
		return current
	case has("en"):
		return "en"
	default:
		return available[len(available)-1]
	}
}
