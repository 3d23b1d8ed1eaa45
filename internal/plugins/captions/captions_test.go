package captions_test

import (
	"net/http"
	"testing"
	"time"

	idx "github.com/openedx/edx-platform-sub027/internal/captions"
	"github.com/openedx/edx-platform-sub027/internal/clock"
	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
	"github.com/openedx/edx-platform-sub027/internal/plugins/captions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, cfg plugin.Config, jar *cookiestore.MemoryJar, mc *clock.Mock) (*plugin.State, *captions.Plugin) {
	t.Helper()
	st := plugin.NewState(cfg, nil, nil)
	var c clock.Clock = clock.Real{}
	if mc != nil {
		c = mc
	}
	p, ready := captions.New(captions.Deps{
		Jar:   jar,
		Clock: c,
		Index: idx.Index{Start: []int{0, 2000, 5000, 9000}, Text: []string{"intro", "one", "two", "outro"}},
	})(st, plugin.NoI18n{}, plugin.Options{})
	<-ready
	return st, p.(*captions.Plugin)
}

func TestClosedCaptionCookie(t *testing.T) {
	mc := clock.NewMock(time.Time{})
	jar := cookiestore.NewMemoryJar(mc)
	st, p := setup(t, plugin.Config{}, jar, mc)
	assert.False(t, p.ClosedCaptionsVisible())

	st.El.Trigger(events.CaptionsShow, nil)
	c, ok := jar.Cookie(captions.CookieClosedCaptions)
	require.True(t, ok)
	assert.Equal(t, "true", c.Value)
	assert.Equal(t, mc.Now().AddDate(0, 0, 3650).UTC(), c.Expires)
	assert.True(t, p.ClosedCaptionsVisible())

	st.El.Trigger(events.CaptionsHide, nil)
	_, ok = jar.Get(captions.CookieClosedCaptions)
	assert.False(t, ok)
	assert.False(t, p.ClosedCaptionsVisible())
}

func TestClosedCaptionCookieRestoredAndRefreshed(t *testing.T) {
	mc := clock.NewMock(time.Time{})
	jar := cookiestore.NewMemoryJar(mc)
	require.NoError(t, jar.Set(&http.Cookie{Name: captions.CookieClosedCaptions, Value: "true", Expires: mc.Now().Add(time.Hour)}))

	_, p := setup(t, plugin.Config{}, jar, mc)
	assert.True(t, p.ClosedCaptionsVisible())
	c, _ := jar.Cookie(captions.CookieClosedCaptions)
	assert.Equal(t, mc.Now().AddDate(0, 0, 3650).UTC(), c.Expires)
}

func TestTranscriptVisibility(t *testing.T) {
	cases := []struct {
		name         string
		cookie       string
		showCaptions bool
		hidden       bool
	}{
		{"no cookie, shown by block", "", true, false},
		{"no cookie, hidden by block", "", false, true},
		{"cookie true wins", "true", false, false},
		{"cookie false wins", "false", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jar := cookiestore.NewMemoryJar(nil)
			if tc.cookie != "" {
				require.NoError(t, jar.Set(&http.Cookie{Name: captions.CookieTranscript, Value: tc.cookie}))
			}
			_, p := setup(t, plugin.Config{ShowCaptions: tc.showCaptions}, jar, nil)
			assert.Equal(t, tc.hidden, p.TranscriptHiddenOnLoad())
		})
	}
}

func TestTranscriptCookieLifetimes(t *testing.T) {
	jar := cookiestore.NewMemoryJar(nil)
	st, _ := setup(t, plugin.Config{}, jar, nil)

	st.El.Trigger(events.TranscriptShow, nil)
	c, _ := jar.Cookie(captions.CookieTranscript)
	assert.Equal(t, "true", c.Value)
	assert.False(t, c.Expires.IsZero())

	st.El.Trigger(events.TranscriptHide, nil)
	c, _ = jar.Cookie(captions.CookieTranscript)
	assert.Equal(t, "false", c.Value)
	assert.True(t, c.Expires.IsZero(), "hidden preference only lasts the session")
	jar.EndSession()
	_, ok := jar.Get(captions.CookieTranscript)
	assert.False(t, ok)
}

func TestLanguage(t *testing.T) {
	st, p := setup(t, plugin.Config{TranscriptLanguage: "fr", TranscriptLanguages: []string{"de", "en"}}, cookiestore.NewMemoryJar(nil), nil)
	assert.Equal(t, "en", p.Language())
	st.El.Trigger(events.LanguageMenuChange, events.LanguageChangePayload{Code: "de"})
	assert.Equal(t, "de", p.Language())
}

func TestCaptionAt(t *testing.T) {
	_, p := setup(t, plugin.Config{}, cookiestore.NewMemoryJar(nil), nil)
	text, ok := p.CaptionAt(1.95)
	require.True(t, ok)
	assert.Equal(t, "one", text, "lookup leads the playhead by 100ms")
	text, _ = p.CaptionAt(6)
	assert.Equal(t, "two", text)

	_, b := setup(t, plugin.Config{StartTime: 2, EndTime: 5}, cookiestore.NewMemoryJar(nil), nil)
	text, _ = b.CaptionAt(30)
	assert.Equal(t, "two", text)

	b.SetIndex(idx.Index{})
	_, ok = b.CaptionAt(1)
	assert.False(t, ok)
}
