package userstate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/openedx/edx-platform-sub027/internal/timefmt"
)

// ErrInvalidValue is matched by every ValidationError.
var ErrInvalidValue = errors.New("userstate: invalid value")

// ValidationError reports a posted field that could not be accepted.
// Error returns the message shown to the client.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidValue }

// Update is a parsed save_user_state request. Nil fields are untouched.
type Update struct {
	Speed                *float64
	SavedVideoPosition   *time.Duration
	TranscriptLanguage   *string
	AutoAdvance          *bool
	YoutubeIsAvailable   *bool
	BumperDoNotShowAgain *bool
	// BumperViewed stamps BumperLastViewDate with the save time.
	BumperViewed bool
	// Ignored lists posted keys that are not part of the saved state.
	Ignored []string
}

// ParseUpdate interprets posted form values. Unknown keys are collected in
// Ignored; the first invalid value aborts with a *ValidationError.
func ParseUpdate(values map[string]string) (Update, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	// Sorted so the first reported error is the same for identical requests.
	sort.Strings(keys)

	var u Update
	for _, key := range keys {
		raw := strings.TrimSpace(values[key])
		switch key {
		case "speed":
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
				return Update{}, &ValidationError{
					Field:   key,
					Message: fmt.Sprintf("Invalid speed value %s, must be a float.", floatRepr(raw, f, err)),
				}
			}
			u.Speed = &f
		case "saved_video_position":
			d, err := timefmt.Parse(raw)
			if err != nil {
				return Update{}, &ValidationError{
					Field:   key,
					Message: fmt.Sprintf("Invalid saved_video_position value %s, must be HH:MM:SS.", raw),
				}
			}
			u.SavedVideoPosition = &d
		case "transcript_language":
			lang := strings.Trim(raw, `"`)
			u.TranscriptLanguage = &lang
		case "auto_advance":
			b, err := parseBool(key, raw)
			if err != nil {
				return Update{}, err
			}
			u.AutoAdvance = &b
		case "youtube_is_available":
			b, err := parseBool(key, raw)
			if err != nil {
				return Update{}, err
			}
			u.YoutubeIsAvailable = &b
		case "bumper_do_not_show_again":
			b, err := parseBool(key, raw)
			if err != nil {
				return Update{}, err
			}
			u.BumperDoNotShowAgain = &b
		case "bumper_last_view_date":
			b, err := parseBool(key, raw)
			if err != nil {
				return Update{}, err
			}
			u.BumperViewed = b
		default:
			u.Ignored = append(u.Ignored, key)
		}
	}
	return u, nil
}

// ValuesFromJSON flattens a JSON object body into form-style values.
// Strings are kept as-is; other values keep their JSON text.
func ValuesFromJSON(body []byte) (map[string]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("userstate: decode body: %w", err)
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.Speed == nil && u.SavedVideoPosition == nil && u.TranscriptLanguage == nil &&
		u.AutoAdvance == nil && u.YoutubeIsAvailable == nil && u.BumperDoNotShowAgain == nil &&
		!u.BumperViewed
}

// PositionOnly reports whether the playhead is the only field changed.
func (u Update) PositionOnly() bool {
	if u.SavedVideoPosition == nil {
		return false
	}
	rest := u
	rest.SavedVideoPosition = nil
	return rest.Empty()
}

// Apply writes the update into rec. A speed also becomes the global speed,
// which callers persist separately under PreferencesBlock.
func (u Update) Apply(rec *Record, now time.Time) {
	if u.Speed != nil {
		s := *u.Speed
		rec.Speed = &s
		rec.GlobalSpeed = &s
	}
	if u.SavedVideoPosition != nil {
		rec.SavedVideoPosition = *u.SavedVideoPosition
	}
	if u.TranscriptLanguage != nil {
		rec.TranscriptLanguage = *u.TranscriptLanguage
	}
	if u.AutoAdvance != nil {
		v := *u.AutoAdvance
		rec.AutoAdvance = &v
	}
	if u.YoutubeIsAvailable != nil {
		v := *u.YoutubeIsAvailable
		rec.YoutubeIsAvailable = &v
	}
	if u.BumperDoNotShowAgain != nil {
		rec.BumperDoNotShowAgain = *u.BumperDoNotShowAgain
	}
	if u.BumperViewed {
		t := now
		rec.BumperLastViewDate = &t
	}
	rec.UpdatedAt = now
}

func parseBool(key, raw string) (bool, error) {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ValidationError{
			Field:   key,
			Message: fmt.Sprintf("Invalid %s value %s, must be a boolean.", key, raw),
		}
	}
	return b, nil
}

func floatRepr(raw string, f float64, err error) string {
	switch {
	case err != nil:
		return raw
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return raw
}
