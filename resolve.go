package videoplayer

import (
	"math"

	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
	"github.com/openedx/edx-platform-sub027/internal/speed"
	"github.com/openedx/edx-platform-sub027/internal/userstate"
)

// Resolved is the configuration a player starts with.
type Resolved struct {
	Config      plugin.Config
	AutoAdvance bool
	// Speed is the initial playback rate in its canonical string form.
	Speed string
}

// ResolveConfig merges the static settings in base with the server's saved
// state in meta, letting preferences found in storage win. storage may be
// nil.
func ResolveConfig(meta userstate.Metadata, base plugin.Config, storage plugin.PreferenceStore) Resolved {
	get := func(name string) (cookiestore.Value, bool) {
		if storage == nil {
			return cookiestore.Value{}, false
		}
		return storage.GetItem(name)
	}

	cfg := base
	if meta.SaveStateURL != "" {
		cfg.SaveStateURL = meta.SaveStateURL
	}
	cfg.SaveStateEnabled = meta.SaveStateEnabled
	cfg.RecordedYoutubeIsAvailable = meta.RecordedYoutubeIsAvailable

	autoAdvance := meta.AutoAdvance
	if v, ok := get("auto_advance"); ok {
		if b, ok := v.Bool(); ok {
			autoAdvance = b
		}
	}

	cfg.SavedVideoPosition = 0
	if v, ok := get("savedVideoPosition"); ok {
		if f, ok := v.Float64(); ok && f > 0 {
			cfg.SavedVideoPosition = f
		}
	}
	if cfg.SavedVideoPosition == 0 && meta.SavedVideoPosition > 0 {
		cfg.SavedVideoPosition = meta.SavedVideoPosition
	}

	cfg.Speed = ""
	if meta.Speed != nil {
		cfg.Speed = speed.ToString(*meta.Speed)
	}
	if v, ok := get("speed"); ok && v.String() != "" {
		cfg.Speed = v.String()
	}

	cfg.GeneralSpeed = speed.Default
	if meta.GeneralSpeed > 0 {
		cfg.GeneralSpeed = speed.ToString(meta.GeneralSpeed)
	}
	if v, ok := get("general_speed"); ok && v.String() != "" {
		cfg.GeneralSpeed = v.String()
	}

	cfg.TranscriptLanguage = "en"
	if meta.TranscriptLanguage != "" {
		cfg.TranscriptLanguage = meta.TranscriptLanguage
	}
	if v, ok := get("language"); ok && v.String() != "" {
		cfg.TranscriptLanguage = v.String()
	}

	if cfg.StartTime < 0 || math.IsNaN(cfg.StartTime) {
		cfg.StartTime = 0
	}
	if cfg.EndTime <= 0 || math.IsNaN(cfg.EndTime) || cfg.EndTime < cfg.StartTime {
		cfg.EndTime = 0
	}

	rate := cfg.Speed
	if rate == "" {
		rate = cfg.GeneralSpeed
	}
	if len(cfg.AvailableSpeeds) > 0 {
		rate = speed.Normalize(rate, cfg.AvailableSpeeds)
	} else {
		rate = speed.Canonical(rate)
	}

	return Resolved{Config: cfg, AutoAdvance: autoAdvance, Speed: rate}
}
