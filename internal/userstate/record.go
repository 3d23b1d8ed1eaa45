// Package userstate implements the server side of save_user_state: parsing
// updates posted by the save-state plugin, applying them to per-user,
// per-block records, and persisting those records through the memory,
// Redis and Postgres tiers.
package userstate

import (
	"strings"
	"time"
)

// PreferencesBlock is the block ID under which cross-video preferences
// (the global speed) are stored.
const PreferencesBlock = "_preferences"

// Record is the state saved for one user watching one video block.
type Record struct {
	UserID               string        `json:"user_id" msgpack:"user_id"`
	BlockID              string        `json:"block_id" msgpack:"block_id"`
	SavedVideoPosition   time.Duration `json:"saved_video_position" msgpack:"saved_video_position"`
	Speed                *float64      `json:"speed,omitempty" msgpack:"speed,omitempty"`
	GlobalSpeed          *float64      `json:"global_speed,omitempty" msgpack:"global_speed,omitempty"`
	TranscriptLanguage   string        `json:"transcript_language,omitempty" msgpack:"transcript_language,omitempty"`
	AutoAdvance          *bool         `json:"auto_advance,omitempty" msgpack:"auto_advance,omitempty"`
	YoutubeIsAvailable   *bool         `json:"youtube_is_available,omitempty" msgpack:"youtube_is_available,omitempty"`
	BumperDoNotShowAgain bool          `json:"bumper_do_not_show_again" msgpack:"bumper_do_not_show_again"`
	BumperLastViewDate   *time.Time    `json:"bumper_last_view_date,omitempty" msgpack:"bumper_last_view_date,omitempty"`
	UpdatedAt            time.Time     `json:"updated_at" msgpack:"updated_at"`
}

var keyEscaper = strings.NewReplacer("%", "%25", "|", "%7C")

// Key identifies a record across tiers. Both parts are escaped so that
// Key(user, "") is a prefix of that user's keys only.
func Key(userID, blockID string) string {
	return keyEscaper.Replace(userID) + "|" + keyEscaper.Replace(blockID)
}

// Metadata is the subset of player configuration derived from saved state.
type Metadata struct {
	SavedVideoPosition         float64  `json:"savedVideoPosition"`
	Speed                      *float64 `json:"speed"`
	GeneralSpeed               float64  `json:"generalSpeed"`
	AutoAdvance                bool     `json:"autoAdvance"`
	RecordedYoutubeIsAvailable bool     `json:"recordedYoutubeIsAvailable"`
	TranscriptLanguage         string   `json:"transcriptLanguage"`
	SaveStateURL               string   `json:"saveStateUrl"`
	SaveStateEnabled           bool     `json:"saveStateEnabled"`
}

// MetadataDefaults supplies values for fields the user never saved.
type MetadataDefaults struct {
	SaveStateURL       string
	TranscriptLanguage string // defaults to "en"
	AutoAdvance        bool
	PublicView         bool
}

// BuildMetadata combines a block record and the user's preference record.
// Either may be the zero Record.
func BuildMetadata(rec, prefs Record, d MetadataDefaults) Metadata {
	m := Metadata{
		SavedVideoPosition:         rec.SavedVideoPosition.Seconds(),
		Speed:                      rec.Speed,
		GeneralSpeed:               1.0,
		AutoAdvance:                d.AutoAdvance,
		RecordedYoutubeIsAvailable: true,
		TranscriptLanguage:         rec.TranscriptLanguage,
		SaveStateURL:               d.SaveStateURL,
		SaveStateEnabled:           !d.PublicView,
	}
	if prefs.GlobalSpeed != nil {
		m.GeneralSpeed = *prefs.GlobalSpeed
	}
	if rec.AutoAdvance != nil {
		m.AutoAdvance = *rec.AutoAdvance
	}
	if rec.YoutubeIsAvailable != nil {
		m.RecordedYoutubeIsAvailable = *rec.YoutubeIsAvailable
	}
	if m.TranscriptLanguage == "" {
		m.TranscriptLanguage = d.TranscriptLanguage
	}
	if m.TranscriptLanguage == "" {
		m.TranscriptLanguage = "en"
	}
	return m
}
