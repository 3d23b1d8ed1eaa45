// Package captions persists the learner's closed-caption and transcript
// visibility in their own cookies and tracks the transcript language.
package captions

import (
	"math"
	"net/http"
	"sync"
	"time"

	idx "github.com/openedx/edx-platform-sub027/internal/captions"
	"github.com/openedx/edx-platform-sub027/internal/clock"
	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
)

// Name is the plugin's registration name on the player state.
const Name = "videoCaption"

// Cookie names.
const (
	CookieClosedCaptions = "show_closed_captions"
	CookieTranscript     = "show_transcript"
)

// Deps are the plugin's collaborators.
type Deps struct {
	Jar   cookiestore.Jar
	Clock clock.Clock
	Index idx.Index
}

// Plugin tracks caption preferences.
type Plugin struct {
	*plugin.Base
	jar   cookiestore.Jar
	clock clock.Clock

	mu                 sync.Mutex
	index              idx.Index
	closedCaptions     bool
	hideTranscriptLoad bool
	language           string
}

// New returns a factory bound to deps.
func New(deps Deps) plugin.Factory {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return func(st *plugin.State, _ plugin.I18n, opts plugin.Options) (plugin.Plugin, <-chan struct{}) {
		return plugin.Construct(st, Name, func() *Plugin {
			p := &Plugin{Base: plugin.NewBase(Name, st), jar: deps.Jar, clock: deps.Clock, index: deps.Index}
			p.language = idx.CurrentLanguage(st.Config.TranscriptLanguage, st.Config.TranscriptLanguages)
			p.handleCaptioningCookie()
			p.setTranscriptVisibility()
			p.Initialize(p, events.Handlers{
				events.CaptionsShow:       events.Simple(func() { p.setClosedCaptions(true) }),
				events.CaptionsHide:       events.Simple(func() { p.setClosedCaptions(false) }),
				events.TranscriptShow:     events.Simple(func() { p.updateTranscriptCookie(true) }),
				events.TranscriptHide:     events.Simple(func() { p.updateTranscriptCookie(false) }),
				events.LanguageMenuChange: events.Typed(p.onLanguageChange),
			}, opts)
			return p
		})
	}
}

// ClosedCaptionsVisible reports whether closed captions are on.
func (p *Plugin) ClosedCaptionsVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closedCaptions
}

// TranscriptHiddenOnLoad reports whether the transcript panel starts closed.
func (p *Plugin) TranscriptHiddenOnLoad() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hideTranscriptLoad
}

// Language returns the transcript language in use.
func (p *Plugin) Language() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.language
}

// SetIndex replaces the loaded transcript.
func (p *Plugin) SetIndex(x idx.Index) {
	p.mu.Lock()
	p.index = x
	p.mu.Unlock()
}

// CaptionAt returns the caption shown at the given playhead, honouring the
// configured start and end times.
func (p *Plugin) CaptionAt(seconds float64) (string, bool) {
	p.mu.Lock()
	x := p.index
	p.mu.Unlock()

	cfg := p.State().Config
	ms := int(math.Round(seconds*1000 + 100))
	start := int(cfg.StartTime * 1000)
	var end *int
	if cfg.EndTime > 0 {
		e := int(cfg.EndTime * 1000)
		end = &e
	}
	bounded := x.Filter(start, end)
	i, ok := bounded.Search(ms)
	if !ok {
		return "", false
	}
	return bounded.Text[i], true
}

func (p *Plugin) handleCaptioningCookie() {
	if v, ok := p.get(CookieClosedCaptions); ok && v == "true" {
		p.closedCaptions = true
		p.write(CookieClosedCaptions, "true", true)
	}
}

func (p *Plugin) setTranscriptVisibility() {
	v, _ := p.get(CookieTranscript)
	switch v {
	case "true":
		p.hideTranscriptLoad = false
		p.updateTranscriptCookie(true)
	case "false":
		p.hideTranscriptLoad = true
	default:
		p.hideTranscriptLoad = !p.State().Config.ShowCaptions
	}
}

func (p *Plugin) setClosedCaptions(on bool) {
	p.mu.Lock()
	p.closedCaptions = on
	p.mu.Unlock()
	if on {
		p.write(CookieClosedCaptions, "true", true)
		return
	}
	p.delete(CookieClosedCaptions)
}

func (p *Plugin) updateTranscriptCookie(show bool) {
	if show {
		p.write(CookieTranscript, "true", true)
		return
	}
	p.write(CookieTranscript, "false", false)
}

func (p *Plugin) onLanguageChange(e events.LanguageChangePayload) {
	p.mu.Lock()
	p.language = e.Code
	p.mu.Unlock()
}

func (p *Plugin) get(name string) (string, bool) {
	if p.jar == nil {
		return "", false
	}
	return p.jar.Get(name)
}

// write stores a cookie; persistent ones live ExpiryDays, the rest end
// with the browser session.
func (p *Plugin) write(name, value string, persistent bool) {
	if p.jar == nil {
		return
	}
	c := &http.Cookie{Name: name, Value: value, Path: "/"}
	if persistent {
		c.Expires = p.clock.Now().AddDate(0, 0, cookiestore.ExpiryDays).UTC()
		c.MaxAge = cookiestore.ExpiryDays * 24 * 60 * 60
	}
	if err := p.jar.Set(c); err != nil {
		p.State().Log().Warn("captions: cookie write failed", "cookie", name, "err", err)
	}
}

func (p *Plugin) delete(name string) {
	if p.jar == nil {
		return
	}
	err := p.jar.Set(&http.Cookie{Name: name, Path: "/", Expires: time.Unix(0, 0), MaxAge: -1})
	if err != nil {
		p.State().Log().Warn("captions: cookie delete failed", "cookie", name, "err", err)
	}
}
