// Package savestate mirrors player preferences into the cookie store and to
// the server's save_user_state endpoint.
package savestate

import (
	"context"

	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
	"github.com/openedx/edx-platform-sub027/internal/timefmt"
	"github.com/openedx/edx-platform-sub027/internal/transport"
)

// Name is the plugin's registration name on the player state.
const Name = "videoSaveStatePlugin"

// Storage keys.
const (
	KeySpeed         = "speed"
	KeyGeneralSpeed  = "general_speed"
	KeyAutoAdvance   = "auto_advance"
	KeyLanguage      = "language"
	KeySavedPosition = "savedVideoPosition"
)

// Plugin is the save-state plugin.
type Plugin struct {
	*plugin.Base
	saver transport.Saver

	unloadBound bool
}

// New returns a factory that sends through saver.
func New(saver transport.Saver) plugin.Factory {
	return func(st *plugin.State, _ plugin.I18n, opts plugin.Options) (plugin.Plugin, <-chan struct{}) {
		return plugin.Construct(st, Name, func() *Plugin {
			p := &Plugin{Base: plugin.NewBase(Name, st), saver: saver}
			p.Initialize(p, events.Handlers{
				events.SpeedChange:         events.Typed(p.onSpeedChange),
				events.AutoAdvanceChange:   events.Typed(p.onAutoAdvanceChange),
				events.Play:                events.Simple(p.bindUnloadHandler),
				events.Pause:               events.Simple(p.saveStateHandler),
				events.Destroy:             events.Simple(p.saveStateHandler),
				events.LanguageMenuChange:  events.Typed(p.onLanguageChange),
				events.YoutubeAvailability: events.Typed(p.onYoutubeAvailability),
			}, opts)
			return p
		})
	}
}

// bindUnloadHandler subscribes to the window's unload event the first time
// playback starts.
func (p *Plugin) bindUnloadHandler() {
	if p.unloadBound {
		return
	}
	p.unloadBound = true
	p.Listen(p.State().Window, events.Handlers{events.Unload: events.Simple(p.onUnload)})
}

func (p *Plugin) onUnload() {
	p.SaveState(false, nil)
}

func (p *Plugin) saveStateHandler() {
	p.SaveState(false, nil)
}

func (p *Plugin) onSpeedChange(e events.SpeedChangePayload) {
	p.SaveState(true, map[string]any{"speed": e.Speed})
	p.setItem(KeySpeed, e.Speed, true)
	p.setItem(KeyGeneralSpeed, e.Speed, false)
}

func (p *Plugin) onAutoAdvanceChange(e events.AutoAdvanceChangePayload) {
	p.SaveState(true, map[string]any{"auto_advance": e.Enabled})
	p.setItem(KeyAutoAdvance, e.Enabled, false)
}

func (p *Plugin) onLanguageChange(e events.LanguageChangePayload) {
	p.setItem(KeyLanguage, e.Code, false)
}

func (p *Plugin) onYoutubeAvailability(e events.YoutubeAvailabilityPayload) {
	if e.Available != p.State().Config.RecordedYoutubeIsAvailable {
		p.SaveState(true, map[string]any{"youtube_is_available": e.Available})
	}
}

// SaveState sends data to the save-state URL. Nil data saves the current
// playhead. The raw position is cached in session storage while the request
// carries it formatted as HH:MM:SS. Delivery errors are logged and dropped.
func (p *Plugin) SaveState(async bool, data map[string]any) {
	st := p.State()
	if data == nil {
		var pos float64
		if st.Player != nil {
			pos = st.Player.CurrentTime()
		}
		data = map[string]any{"saved_video_position": pos}
	}
	if pos, ok := data["saved_video_position"].(float64); ok {
		p.setItem(KeySavedPosition, pos, true)
		data["saved_video_position"] = timefmt.FormatFull(pos)
	}
	if !st.Config.SaveStateEnabled || p.saver == nil {
		return
	}

	req := transport.Request{URL: st.Config.SaveStateURL, Data: data, Async: async}
	if err := p.saver.Save(context.Background(), req); err != nil {
		st.Log().Debug("savestate: save failed", "player", st.ID, "policy", req.Policy(), "err", err)
	}
}

func (p *Plugin) setItem(name string, value any, session bool) {
	st := p.State()
	if st.Storage == nil {
		return
	}
	if err := st.Storage.SetItem(name, value, session); err != nil {
		st.Log().Warn("savestate: storage write failed", "player", st.ID, "key", name, "err", err)
	}
}
