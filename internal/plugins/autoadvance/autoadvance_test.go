package autoadvance_test

import (
	"testing"

	"github.com/openedx/edx-platform-sub027/internal/dom"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
	"github.com/openedx/edx-platform-sub027/internal/plugins/autoadvance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct{ plays int }

func (f *fakePlayer) CurrentTime() float64 { return 0 }
func (f *fakePlayer) Play()                { f.plays++ }

type navigator struct{ advanced int }

func (n *navigator) Advance() { n.advanced++ }

type fixture struct {
	st     *plugin.State
	player *fakePlayer
	nav    *navigator
	button *dom.Element
	p      plugin.Plugin
}

func setup(t *testing.T, enabled, first bool) *fixture {
	t.Helper()
	doc := dom.NewDocument()
	other := doc.CreateElement("other", "video")
	mine := doc.CreateElement("mine", "video")
	if first {
		doc.Body().Append(mine)
		doc.Body().Append(other)
	} else {
		doc.Body().Append(other)
		doc.Body().Append(mine)
	}
	button := doc.CreateElement("auto-advance")
	mine.Append(button)

	player := &fakePlayer{}
	st := plugin.NewState(plugin.Config{}, nil, player)
	st.Element = mine
	st.SetAutoAdvance(enabled)
	nav := &navigator{}
	p, ready := autoadvance.New(autoadvance.Deps{
		Button:    button,
		Navigator: nav,
		Placement: autoadvance.DocumentPlacement{Doc: doc, Element: mine},
	})(st, plugin.NoI18n{}, plugin.Options{})
	<-ready
	return &fixture{st: st, player: player, nav: nav, button: button, p: p}
}

func TestAutoPlayGating(t *testing.T) {
	cases := []struct {
		name    string
		enabled bool
		first   bool
		plays   int
	}{
		{"enabled and first", true, true, 1},
		{"enabled but not first", true, false, 0},
		{"disabled and first", false, true, 0},
		{"disabled and not first", false, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t, tc.enabled, tc.first)
			f.st.El.Trigger(events.Ready, nil)
			assert.Equal(t, tc.plays, f.player.plays)
		})
	}
}

func TestEndedAdvancesOnlyWhenEnabled(t *testing.T) {
	f := setup(t, false, true)
	f.st.El.Trigger(events.Ended, nil)
	assert.Zero(t, f.nav.advanced)

	f.st.SetAutoAdvance(true)
	f.st.El.Trigger(events.Ended, nil)
	assert.Equal(t, 1, f.nav.advanced)
}

func TestClickTogglesAndAnnounces(t *testing.T) {
	f := setup(t, false, true)
	assert.False(t, f.button.HasClass(autoadvance.ActiveClass))
	label, _ := f.button.Attr("aria-label")
	assert.Equal(t, "Auto-advance", label)

	var announced []bool
	f.st.El.On(events.Handlers{events.AutoAdvanceChange: events.Typed(func(p events.AutoAdvanceChangePayload) {
		announced = append(announced, p.Enabled)
	})})

	f.button.Click(nil)
	assert.True(t, f.st.AutoAdvance())
	assert.True(t, f.button.HasClass(autoadvance.ActiveClass))
	pressed, _ := f.button.Attr("aria-pressed")
	assert.Equal(t, "true", pressed)

	f.button.Click(nil)
	assert.False(t, f.st.AutoAdvance())
	assert.False(t, f.button.HasClass(autoadvance.ActiveClass))
	assert.Equal(t, []bool{true, false}, announced)
}

func TestInitialButtonStateFollowsPreference(t *testing.T) {
	f := setup(t, true, true)
	assert.True(t, f.button.HasClass(autoadvance.ActiveClass))
}

func TestDestroyUnbindsButton(t *testing.T) {
	f := setup(t, false, true)
	require.Equal(t, 1, f.button.Events().Count(events.Click))

	f.st.El.Trigger(events.Destroy, nil)
	assert.Zero(t, f.button.Events().Len())
	assert.Zero(t, f.st.El.Len())
	f.button.Click(nil)
	assert.False(t, f.st.AutoAdvance())

	f.p.Destroy()
}
