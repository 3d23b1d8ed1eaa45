// Package plugin defines the shared player state every plugin is attached to
// and the lifecycle all plugins follow: bind a set of handlers on the
// player's element bus, and unbind exactly that set on destroy.
package plugin

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/dom"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/openedx/edx-platform-sub027/internal/metrics"
)

// Config is the server-provided player metadata plugins read.
type Config struct {
	SaveStateURL               string
	SaveStateEnabled           bool
	RecordedYoutubeIsAvailable bool
	SavedVideoPosition         float64
	Speed                      string
	GeneralSpeed               string
	TranscriptLanguage         string
	TranscriptLanguages        []string
	AvailableSpeeds            []string
	ShowCaptions               bool
	StartTime                  float64 // seconds; 0 means unset
	EndTime                    float64 // seconds; 0 means unset

	// Sharing metadata.
	CourseID       string
	BlockID        string
	PublicVideoURL string
}

// PreferenceStore is the slice of the cookie store plugins write to.
type PreferenceStore interface {
	SetItem(name string, value any, session bool) error
	GetItem(name string) (cookiestore.Value, bool)
	RemoveItem(name string) error
}

// TimeSource reports the playhead in seconds.
type TimeSource interface {
	CurrentTime() float64
}

// PlaybackController starts playback.
type PlaybackController interface {
	Play()
}

// VideoPlayer is the host player surface plugins depend on.
type VideoPlayer interface {
	TimeSource
	PlaybackController
}

// State is the context shared by the host player and its plugins.
type State struct {
	ID      string
	El      *events.Bus  // player root element events
	Window  *events.Bus  // page-level events such as unload
	Element *dom.Element // player root element; may be nil
	Config  Config
	Storage PreferenceStore
	Player  VideoPlayer
	Logger  logging.Logger
	Metrics metrics.MetricsRecorder

	mu          sync.Mutex
	speed       string
	autoAdvance bool
	plugins     map[string]Plugin
}

// NewState returns a State with fresh buses. Zero-valued fields of the
// returned struct may be filled in by the caller before plugins attach.
func NewState(cfg Config, storage PreferenceStore, player VideoPlayer) *State {
	id := uuid.NewString()
	return &State{
		ID:      id,
		El:      events.NewBus(events.WithName("player-" + id)),
		Window:  events.NewBus(events.WithName("window")),
		Config:  cfg,
		Storage: storage,
		Player:  player,
		Logger:  logging.Nop{},
		Metrics: metrics.Noop{},
		speed:   cfg.Speed,
		plugins: make(map[string]Plugin),
	}
}

// Speed returns the current playback rate.
func (s *State) Speed() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// SetSpeed records the current playback rate.
func (s *State) SetSpeed(v string) {
	s.mu.Lock()
	s.speed = v
	s.mu.Unlock()
}

// AutoAdvance reports whether auto-advance is on.
func (s *State) AutoAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoAdvance
}

// SetAutoAdvance turns auto-advance on or off.
func (s *State) SetAutoAdvance(v bool) {
	s.mu.Lock()
	s.autoAdvance = v
	s.mu.Unlock()
}

// Attach registers p under p.Name(). An existing registration is replaced.
func (s *State) Attach(p Plugin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plugins == nil {
		s.plugins = make(map[string]Plugin)
	}
	s.plugins[p.Name()] = p
}

// Detach removes the registration for name if it is p.
func (s *State) Detach(name string, p Plugin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.plugins[name]; ok && cur == p {
		delete(s.plugins, name)
	}
}

// Plugin returns the plugin registered under name.
func (s *State) Plugin(name string) (Plugin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plugins[name]
	return p, ok
}

// Plugins returns the registered names, sorted.
func (s *State) Plugins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.plugins))
	for n := range s.plugins {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Log returns the state logger, never nil.
func (s *State) Log() logging.Logger { return logging.OrNop(s.Logger) }
