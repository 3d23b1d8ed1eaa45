// Package autoadvance toggles the auto-advance preference and acts on it:
// autoplaying the first video on the page and moving to the next unit when
// a video ends.
package autoadvance

import (
	"github.com/openedx/edx-platform-sub027/internal/dom"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
)

// Name is the plugin's registration name on the player state.
const Name = "videoAutoAdvanceControl"

// ActiveClass marks the button while auto-advance is on.
const ActiveClass = "active"

// SequenceNavigator moves the learner to the next unit.
type SequenceNavigator interface {
	Advance()
}

// Placement tells whether the player is the first video on its page.
type Placement interface {
	IsFirstComponent() bool
}

// Deps are the collaborators outside the player's own subtree.
type Deps struct {
	Button    *dom.Element // may be nil when the control is hidden
	Navigator SequenceNavigator
	Placement Placement
}

// DocumentPlacement finds the player by class in document order.
type DocumentPlacement struct {
	Doc     *dom.Document
	Element *dom.Element
	Class   string // defaults to "video"
}

func (d DocumentPlacement) IsFirstComponent() bool {
	class := d.Class
	if class == "" {
		class = "video"
	}
	all := d.Doc.ByClass(class)
	return len(all) > 0 && all[0] == d.Element
}

// Plugin is the auto-advance control.
type Plugin struct {
	*plugin.Base
	deps Deps
}

// New returns a factory bound to deps.
func New(deps Deps) plugin.Factory {
	return func(st *plugin.State, i18n plugin.I18n, opts plugin.Options) (plugin.Plugin, <-chan struct{}) {
		return plugin.Construct(st, Name, func() *Plugin {
			p := &Plugin{Base: plugin.NewBase(Name, st), deps: deps}
			p.render(i18n)
			p.Initialize(p, events.Handlers{
				events.Ready: events.Simple(p.AutoPlay),
				events.Ended: events.Simple(p.AutoAdvance),
			}, opts)
			if deps.Button != nil {
				p.Listen(deps.Button.Events(), events.Handlers{events.Click: events.Simple(p.OnClick)})
			}
			return p
		})
	}
}

func (p *Plugin) render(i18n plugin.I18n) {
	b := p.deps.Button
	if b == nil {
		return
	}
	if i18n == nil {
		i18n = plugin.NoI18n{}
	}
	b.SetAttr("aria-label", i18n.Gettext("Auto-advance"))
	p.setButtonState(p.State().AutoAdvance())
}

// OnClick flips the preference, updates the button, and announces the new
// value with autoadvancechange.
func (p *Plugin) OnClick() {
	st := p.State()
	enabled := !st.AutoAdvance()
	st.SetAutoAdvance(enabled)
	p.setButtonState(enabled)
	st.El.Trigger(events.AutoAdvanceChange, events.AutoAdvanceChangePayload{Enabled: enabled})
}

// AutoPlay starts playback when auto-advance is on and this is the first
// video on the page.
func (p *Plugin) AutoPlay() {
	st := p.State()
	if !st.AutoAdvance() || st.Player == nil {
		return
	}
	if p.deps.Placement != nil && !p.deps.Placement.IsFirstComponent() {
		return
	}
	st.Player.Play()
}

// AutoAdvance moves to the next unit when auto-advance is on.
func (p *Plugin) AutoAdvance() {
	if !p.State().AutoAdvance() || p.deps.Navigator == nil {
		return
	}
	p.deps.Navigator.Advance()
}

func (p *Plugin) setButtonState(enabled bool) {
	b := p.deps.Button
	if b == nil {
		return
	}
	if enabled {
		b.AddClass(ActiveClass)
		b.SetAttr("aria-pressed", "true")
	} else {
		b.RemoveClass(ActiveClass)
		b.SetAttr("aria-pressed", "false")
	}
}
