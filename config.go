// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// config.go -- Config and Deps for constructing a Player, with defaults
// applied for every zero-valued option.

package videoplayer

import (
	"fmt"
	"time"

	"github.com/openedx/edx-platform-sub027/internal/clock"
	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/dom"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/openedx/edx-platform-sub027/internal/metrics"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
	"github.com/openedx/edx-platform-sub027/internal/transport"
	"github.com/openedx/edx-platform-sub027/internal/userstate"
)

// DefaultNamespace is the cookie namespace player preferences live in.
const DefaultNamespace = "video_player"

// Config holds the player's settings.
type Config struct {
	// Namespace is the preference cookie name.
	// Default: DefaultNamespace
	Namespace string

	// Metadata is the server's saved state for this learner and video.
	Metadata userstate.Metadata

	// Player carries the static player settings: available speeds and
	// languages, start/end times and sharing metadata. Fields derived from
	// Metadata and stored preferences are overwritten by ResolveConfig.
	Player plugin.Config

	// AttachTimeout bounds the wait for plugins to finish binding.
	// Default: 5s
	AttachTimeout time.Duration

	// Events restricts plugins to a subset of their handlers.
	Events []events.Name

	I18n    plugin.I18n
	Clock   clock.Clock
	Logger  Logger
	Metrics metrics.MetricsRecorder
}

func (c *Config) defaults() {
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	if c.AttachTimeout <= 0 {
		c.AttachTimeout = 5 * time.Second
	}
	if c.I18n == nil {
		c.I18n = plugin.NoI18n{}
	}
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	c.Logger = logging.OrNop(c.Logger)
	if c.Metrics == nil {
		c.Metrics = metrics.Noop{}
	}
}

// Deps are the host surfaces a Player runs against.
type Deps struct {
	// Jar backs the preference store. Required.
	Jar cookiestore.Jar
	// Video is the playback surface. Required.
	Video plugin.VideoPlayer
	// Saver delivers save-state requests; nil leaves the save-state
	// plugin out.
	Saver transport.Saver
	// Element is the player's root element, used by DOM-facing plugins.
	Element *dom.Element
	// Plugins are attached after save-state, in order.
	Plugins []plugin.Factory
}

func (d Deps) validate() error {
	if d.Jar == nil {
		return fmt.Errorf("%w: cookie jar is required", ErrInvalidConfig)
	}
	if d.Video == nil {
		return fmt.Errorf("%w: video player is required", ErrInvalidConfig)
	}
	return nil
}
