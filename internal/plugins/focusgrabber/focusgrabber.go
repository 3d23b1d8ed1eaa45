// Package focusgrabber keeps a player with auto-hidden controls reachable
// from the keyboard. Two invisible anchors bracket the player; while the
// controls are hidden they are tabbable, and focusing one reveals the
// controls again.
package focusgrabber

import (
	"github.com/openedx/edx-platform-sub027/internal/dom"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
)

// Name is the plugin's registration name on the player state.
const Name = "videoFocusGrabber"

// AnchorClass is carried by both anchors.
const AnchorClass = "focus_grabber"

// Plugin is the focus grabber.
type Plugin struct {
	*plugin.Base
	root  *dom.Element
	first *dom.Element
	last  *dom.Element
}

// New returns the focus grabber factory. The state's Element must be set.
func New(st *plugin.State, _ plugin.I18n, opts plugin.Options) (plugin.Plugin, <-chan struct{}) {
	return plugin.Construct(st, Name, func() *Plugin {
		p := &Plugin{Base: plugin.NewBase(Name, st), root: st.Element}
		p.render()
		p.Initialize(p, events.Handlers{
			events.ControlsHide: events.Simple(p.EnableFocusGrabber),
			events.ControlsShow: events.Simple(p.DisableFocusGrabber),
		}, opts)
		if p.root != nil {
			p.Listen(p.first.Events(), events.Handlers{events.Focus: events.Simple(p.OnFocus)})
			p.Listen(p.last.Events(), events.Handlers{events.Focus: events.Simple(p.OnFocus)})
			p.Listen(p.root.Events(), events.Handlers{events.Blur: events.Simple(p.onRootBlur)})
			p.OnDestroy(func() {
				p.first.Remove()
				p.last.Remove()
			})
		}
		return p
	})
}

func (p *Plugin) render() {
	if p.root == nil {
		return
	}
	doc := p.root.Document()
	p.first = doc.CreateElement(p.root.ID()+"-focus-first", AnchorClass, "first")
	p.last = doc.CreateElement(p.root.ID()+"-focus-last", AnchorClass, "last")
	p.root.Prepend(p.first)
	p.root.Append(p.last)
	p.DisableFocusGrabber()
}

// Anchors returns the first and last anchor elements.
func (p *Plugin) Anchors() (first, last *dom.Element) { return p.first, p.last }

// DisableFocusGrabber takes both anchors out of the tab order.
func (p *Plugin) DisableFocusGrabber() {
	if p.root == nil {
		return
	}
	p.first.SetTabIndex(-1)
	p.last.SetTabIndex(-1)
}

// EnableFocusGrabber runs when the controls hide. With focus inside the
// player the anchors stay inert and focus moves to the player root, whose
// later blur reveals the controls. With focus elsewhere the anchors become
// tabbable so a keyboard user entering the player lands on one.
func (p *Plugin) EnableFocusGrabber() {
	if p.root == nil {
		return
	}
	active := p.root.Document().ActiveElement()
	if active != nil && p.root.Contains(active) {
		p.first.SetTabIndex(-1)
		p.last.SetTabIndex(-1)
		p.root.Focus()
		return
	}
	p.first.SetTabIndex(0)
	p.last.SetTabIndex(0)
}

// OnFocus pings the player with one mousemove and disables the anchors.
func (p *Plugin) OnFocus() {
	p.State().El.Trigger(events.MouseMove, nil)
	p.DisableFocusGrabber()
}

// onRootBlur reveals the controls when focus leaves the player root. Moving
// onto an anchor is skipped since the anchor pings on its own.
func (p *Plugin) onRootBlur() {
	active := p.root.Document().ActiveElement()
	if active == p.first || active == p.last {
		return
	}
	p.State().El.Trigger(events.MouseMove, nil)
}
