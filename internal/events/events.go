// Package events is the in-process publish/subscribe bus the player and its
// plugins communicate through. Every player element (the root, the window,
// individual controls) owns one Bus.
package events

// Name identifies an event on a Bus.
type Name string

// Events fired by the host player.
const (
	Ready               Name = "ready"
	Play                Name = "play"
	Pause               Name = "pause"
	Ended               Name = "ended"
	Stop                Name = "stop"
	Destroy             Name = "destroy"
	Skip                Name = "skip"
	SpeedChange         Name = "speedchange"
	LanguageMenuChange  Name = "language_menu:change"
	LanguageMenuShow    Name = "language_menu:show"
	LanguageMenuHide    Name = "language_menu:hide"
	YoutubeAvailability Name = "youtube_availability"
	CaptionsShow        Name = "captions:show"
	CaptionsHide        Name = "captions:hide"
	TranscriptShow      Name = "transcript:show"
	TranscriptHide      Name = "transcript:hide"
	ControlsShow        Name = "controls:show"
	ControlsHide        Name = "controls:hide"
)

// Events produced by plugins.
const (
	AutoAdvanceChange Name = "autoadvancechange"
	MouseMove         Name = "mousemove"
)

// Element events.
const (
	Focus  Name = "focus"
	Blur   Name = "blur"
	Click  Name = "click"
	Unload Name = "unload"
)

// Event is a single dispatch.
type Event struct {
	Name    Name
	Payload any
}

// SpeedChangePayload accompanies SpeedChange. Speed is the normalised
// string form, e.g. "1.50".
type SpeedChangePayload struct {
	Speed string
}

// AutoAdvanceChangePayload accompanies AutoAdvanceChange.
type AutoAdvanceChangePayload struct {
	Enabled bool
}

// LanguageChangePayload accompanies LanguageMenuChange.
type LanguageChangePayload struct {
	Code string
}

// YoutubeAvailabilityPayload accompanies YoutubeAvailability.
type YoutubeAvailabilityPayload struct {
	Available bool
}

// ClickPayload accompanies Click on share buttons; Source is the element's
// data-source attribute.
type ClickPayload struct {
	Source string
}

// PayloadAs returns e.Payload as a T.
func PayloadAs[T any](e Event) (T, bool) {
	v, ok := e.Payload.(T)
	if ok {
		return v, true
	}
	if p, isPtr := e.Payload.(*T); isPtr && p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Typed adapts fn to a Handler. Dispatches whose payload is not a T are
// ignored.
func Typed[T any](fn func(T)) Handler {
	return func(e Event) {
		if v, ok := PayloadAs[T](e); ok {
			fn(v)
		}
	}
}

// Simple adapts a payload-less callback to a Handler.
func Simple(fn func()) Handler {
	return func(Event) { fn() }
}
