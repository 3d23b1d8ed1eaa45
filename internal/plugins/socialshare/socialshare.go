// Package socialshare sends a shared video to a social site, tagged with
// UTM parameters, and records the share.
package socialshare

import (
	"context"
	"strings"

	"github.com/openedx/edx-platform-sub027/internal/analytics"
	"github.com/openedx/edx-platform-sub027/internal/dom"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
)

// Name is the plugin's registration name on the player state.
const Name = "videoSocialSharingHandler"

const (
	PopupName     = "share-popup"
	PopupFeatures = "width=640,height=480"
	UTMMedium     = "social"
	UTMCampaign   = "social-share-exp"
	SourceAttr    = "data-source"
)

// PopupOpener opens a named browser window.
type PopupOpener interface {
	Open(url, name, features string)
}

// Deps are the plugin's collaborators.
type Deps struct {
	Buttons   []*dom.Element
	Sites     Registry // defaults to DefaultRegistry("")
	Popup     PopupOpener
	Analytics analytics.Emitter
}

// Plugin is the share-button click dispatcher.
type Plugin struct {
	*plugin.Base
	deps Deps
}

// New returns a factory bound to deps.
func New(deps Deps) plugin.Factory {
	if deps.Sites == nil {
		deps.Sites = DefaultRegistry("")
	}
	return func(st *plugin.State, _ plugin.I18n, opts plugin.Options) (plugin.Plugin, <-chan struct{}) {
		return plugin.Construct(st, Name, func() *Plugin {
			p := &Plugin{Base: plugin.NewBase(Name, st), deps: deps}
			p.Initialize(p, events.Handlers{}, opts)
			for _, b := range deps.Buttons {
				btn := b
				p.Listen(btn.Events(), events.Handlers{events.Click: func(e events.Event) {
					p.OnClick(sourceOf(btn, e))
				}})
			}
			return p
		})
	}
}

func sourceOf(btn *dom.Element, e events.Event) string {
	if c, ok := events.PayloadAs[events.ClickPayload](e); ok && c.Source != "" {
		return c.Source
	}
	v, _ := btn.Attr(SourceAttr)
	return v
}

// ShareableURL appends the UTM parameters for source to the public video
// URL.
func ShareableURL(videoURL, source string) string {
	sep := "?"
	if strings.Contains(videoURL, "?") {
		sep = "&"
	}
	return videoURL + sep +
		"utm_source=" + escape(source) +
		"&utm_medium=" + UTMMedium +
		"&utm_campaign=" + UTMCampaign
}

// OnClick shares the video on source's site. Unknown sources are logged and
// ignored.
func (p *Plugin) OnClick(source string) {
	st := p.State()
	site, ok := p.deps.Sites[source]
	if !ok {
		st.Log().Warn("socialshare: unknown source", "player", st.ID, "source", source)
		return
	}
	link := site.GenerateShareURL(ShareableURL(st.Config.PublicVideoURL, source))
	if p.deps.Popup != nil {
		p.deps.Popup.Open(link, PopupName, PopupFeatures)
	}
	if p.deps.Analytics == nil {
		return
	}
	err := p.deps.Analytics.Emit(context.Background(), analytics.ShareButtonClicked, map[string]any{
		"source":         source,
		"video_block_id": st.Config.BlockID,
		"course_id":      st.Config.CourseID,
	})
	if err != nil {
		st.Log().Debug("socialshare: analytics emit failed", "player", st.ID, "err", err)
	}
}
