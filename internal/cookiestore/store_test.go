package cookiestore_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/openedx/edx-platform-sub027/internal/clock"
	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, jar cookiestore.Jar, ns string) (*cookiestore.Store, *cookiestore.Hub) {
	t.Helper()
	hub := cookiestore.NewHub(nil)
	s := cookiestore.Open(jar, ns, cookiestore.Options{Hub: hub, Clock: clock.NewMock(time.Time{})})
	t.Cleanup(s.Close)
	return s, hub
}

func TestStore_EndToEndSessionScenario(t *testing.T) {
	jar := cookiestore.NewMemoryJar(clock.NewMock(time.Time{}))
	s, hub := newStore(t, jar, "test_storage")

	_, ok := s.GetItem("speed")
	assert.False(t, ok)

	require.NoError(t, s.SetItem("speed", "1.5", true))
	v, ok := s.GetItem("speed")
	require.True(t, ok)
	assert.Equal(t, "1.5", v.String())

	require.NoError(t, hub.Unload())
	_, ok = s.GetItem("speed")
	assert.False(t, ok)
}

func TestStore_RoundTripAcrossReopen(t *testing.T) {
	mc := clock.NewMock(time.Time{})
	jar := cookiestore.NewMemoryJar(mc)
	hub := cookiestore.NewHub(nil)
	opts := cookiestore.Options{Hub: hub, Clock: mc}

	s := cookiestore.Open(jar, "video_player", opts)
	require.NoError(t, s.SetItem("general_speed", "1.50", false))
	require.NoError(t, s.SetItem("auto_advance", true, false))
	require.NoError(t, s.SetItem("savedVideoPosition", 12.345, true))
	require.NoError(t, s.SetItem("language", "de", false))
	s.Close()

	reopened := cookiestore.Open(jar, "video_player", opts)
	defer reopened.Close()
	assert.Equal(t, []string{"general_speed", "auto_advance", "savedVideoPosition", "language"}, reopened.Keys())

	v, _ := reopened.GetItem("general_speed")
	assert.Equal(t, "1.50", v.String())
	b, ok := mustGet(t, reopened, "auto_advance").Bool()
	assert.True(t, ok)
	assert.True(t, b)
	f, ok := mustGet(t, reopened, "savedVideoPosition").Float64()
	assert.True(t, ok)
	assert.InDelta(t, 12.345, f, 1e-9)
	assert.True(t, reopened.IsSession("savedVideoPosition"))

	require.NoError(t, hub.Unload())
	_, ok = reopened.GetItem("savedVideoPosition")
	assert.False(t, ok)
	assert.Equal(t, 3, reopened.Len())
}

func TestStore_OverwriteKeepsPosition(t *testing.T) {
	s, _ := newStore(t, cookiestore.NewMemoryJar(nil), "")
	require.NoError(t, s.SetItem("a", 1, false))
	require.NoError(t, s.SetItem("b", 2, false))
	require.NoError(t, s.SetItem("a", 3, true))

	assert.Equal(t, []string{"a", "b"}, s.Keys())
	f, ok := mustGet(t, s, "a").Float64()
	require.True(t, ok)
	assert.Equal(t, 3.0, f)
	assert.True(t, s.IsSession("a"), "overwrite replaces the session flag")
	assert.Equal(t, cookiestore.DefaultNamespace, s.Namespace())
}

func TestStore_RemoveMissingIsIdempotent(t *testing.T) {
	jar := cookiestore.NewMemoryJar(nil)
	s, _ := newStore(t, jar, "ns")

	require.NoError(t, s.RemoveItem("missing"))
	assert.Zero(t, s.Len())
	_, written := jar.Get("ns")
	assert.True(t, written, "the namespace is written back even when nothing changed")

	require.NoError(t, s.SetItem("x", "y", false))
	require.NoError(t, s.RemoveItem("x"))
	require.NoError(t, s.RemoveItem("x"))
	assert.Empty(t, s.Keys())
}

func TestStore_PurgeKeepsPersistentEntries(t *testing.T) {
	s, hub := newStore(t, cookiestore.NewMemoryJar(nil), "ns")
	require.NoError(t, s.SetItem("p", 1, false))
	require.NoError(t, s.SetItem("s", 2, true))

	require.NoError(t, hub.Unload())
	f, ok := mustGet(t, s, "p").Float64()
	require.True(t, ok)
	assert.Equal(t, 1.0, f)
	_, ok = s.GetItem("s")
	assert.False(t, ok)
	assert.Equal(t, []string{"p"}, s.Keys())
}

func TestStore_KeyBounds(t *testing.T) {
	s, _ := newStore(t, cookiestore.NewMemoryJar(nil), "ns")
	for _, k := range []string{"x", "y", "z"} {
		require.NoError(t, s.SetItem(k, k, false))
	}
	for i, want := range []string{"x", "y", "z"} {
		got, ok := s.Key(i)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	for _, n := range []int{3, 4, 100, -1} {
		_, ok := s.Key(n)
		assert.False(t, ok, "key(%d)", n)
	}
}

func TestStore_EmptyNameIsIgnored(t *testing.T) {
	jar := cookiestore.NewMemoryJar(nil)
	s, _ := newStore(t, jar, "ns")
	require.NoError(t, s.SetItem("", "boom", false))
	assert.Zero(t, s.Len())
	_, written := jar.Get("ns")
	assert.False(t, written)
}

func TestStore_MalformedCookieYieldsEmptyStore(t *testing.T) {
	cases := map[string]string{
		"not json":      url.QueryEscape("{oops"),
		"bad escape":    "%zz",
		"missing keys":  url.QueryEscape(`{"storage":{}}`),
		"wrong shape":   url.QueryEscape(`[1,2,3]`),
		"storage array": url.QueryEscape(`{"storage":[],"keys":[]}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			jar := cookiestore.NewMemoryJar(nil)
			require.NoError(t, jar.Set(&http.Cookie{Name: "ns", Value: raw, Path: "/"}))
			s, _ := newStore(t, jar, "ns")
			assert.Zero(t, s.Len())
			require.NoError(t, s.SetItem("k", "v", false))
			assert.Equal(t, []string{"k"}, s.Keys())
		})
	}
}

func TestStore_ReconcilesKeysWithStorage(t *testing.T) {
	raw := `{"storage":{"b":{"value":2,"session":false},"a":{"value":1,"session":false},"c":{"value":3,"session":true}},"keys":["b","ghost","b","a"]}`
	jar := cookiestore.NewMemoryJar(nil)
	require.NoError(t, jar.Set(&http.Cookie{Name: "ns", Value: url.QueryEscape(raw), Path: "/"}))

	s, _ := newStore(t, jar, "ns")
	assert.Equal(t, []string{"b", "a", "c"}, s.Keys())
}

func TestStore_WireFormat(t *testing.T) {
	mc := clock.NewMock(time.Time{})
	jar := cookiestore.NewMemoryJar(mc)
	s := cookiestore.Open(jar, "ns", cookiestore.Options{Hub: cookiestore.NewHub(nil), Clock: mc})
	defer s.Close()
	require.NoError(t, s.SetItem("speed", "1.5", true))

	c, ok := jar.Cookie("ns")
	require.True(t, ok)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, mc.Now().AddDate(0, 0, cookiestore.ExpiryDays).UTC(), c.Expires)
	decoded, err := url.QueryUnescape(c.Value)
	require.NoError(t, err)
	assert.JSONEq(t, `{"storage":{"speed":{"value":"1.5","session":true}},"keys":["speed"]}`, decoded)
}

func TestStore_Clear(t *testing.T) {
	jar := cookiestore.NewMemoryJar(nil)
	s, _ := newStore(t, jar, "ns")
	require.NoError(t, s.SetItem("a", 1, false))
	require.NoError(t, s.Clear())

	assert.Zero(t, s.Len())
	_, ok := jar.Get("ns")
	assert.False(t, ok, "clear deletes the cookie")
}

func TestStore_CapacityExceededRollsBack(t *testing.T) {
	jar := cookiestore.NewMemoryJar(nil)
	s, _ := newStore(t, jar, "ns")
	require.NoError(t, s.SetItem("small", "v", false))

	err := s.SetItem("huge", strings.Repeat("x", cookiestore.MaxCookieBytes), false)
	require.ErrorIs(t, err, cookiestore.ErrCapacityExceeded)
	assert.Equal(t, []string{"small"}, s.Keys())
	_, ok := s.GetItem("huge")
	assert.False(t, ok)
}

type failingJar struct {
	*cookiestore.MemoryJar
	fail bool
}

func (j *failingJar) Set(c *http.Cookie) error {
	if j.fail {
		return errors.New("quota")
	}
	return j.MemoryJar.Set(c)
}

func TestStore_WriteFailureIsReturnedAndRolledBack(t *testing.T) {
	jar := &failingJar{MemoryJar: cookiestore.NewMemoryJar(nil)}
	s, hub := newStore(t, jar, "ns")
	require.NoError(t, s.SetItem("keep", 1, true))

	jar.fail = true
	require.Error(t, s.SetItem("lost", 2, false))
	require.Error(t, s.RemoveItem("keep"))
	require.Error(t, hub.Unload())

	assert.Equal(t, []string{"keep"}, s.Keys())
	assert.True(t, s.IsSession("keep"))
}

func TestStore_ClosedRejectsWrites(t *testing.T) {
	hub := cookiestore.NewHub(nil)
	s := cookiestore.Open(cookiestore.NewMemoryJar(nil), "ns", cookiestore.Options{Hub: hub})
	assert.Equal(t, 1, hub.Stores())
	s.Close()
	s.Close()
	assert.Zero(t, hub.Stores())
	assert.ErrorIs(t, s.SetItem("a", 1, false), cookiestore.ErrClosed)
}

func TestHub_BindsWindowOnce(t *testing.T) {
	window := events.NewBus()
	hub := cookiestore.NewHub(window)
	jar := cookiestore.NewMemoryJar(nil)
	assert.False(t, hub.Bound())

	a := cookiestore.Open(jar, "a", cookiestore.Options{Hub: hub})
	b := cookiestore.Open(jar, "b", cookiestore.Options{Hub: hub})
	defer a.Close()
	defer b.Close()
	assert.True(t, hub.Bound())
	assert.Equal(t, 1, window.Count(events.Unload))

	require.NoError(t, a.SetItem("s", 1, true))
	require.NoError(t, b.SetItem("s", 1, true))
	window.Trigger(events.Unload, nil)
	assert.Zero(t, a.Len())
	assert.Zero(t, b.Len())
}

func TestMemoryJar_ExpiryAndSession(t *testing.T) {
	mc := clock.NewMock(time.Time{})
	jar := cookiestore.NewMemoryJar(mc)
	require.NoError(t, jar.Set(&http.Cookie{Name: "persist", Value: "1", Expires: mc.Now().Add(time.Hour)}))
	require.NoError(t, jar.Set(&http.Cookie{Name: "session", Value: "1"}))

	jar.EndSession()
	_, ok := jar.Get("session")
	assert.False(t, ok)
	_, ok = jar.Get("persist")
	assert.True(t, ok)

	mc.Advance(2 * time.Hour)
	_, ok = jar.Get("persist")
	assert.False(t, ok)
}

func TestRequestJar(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "ns", Value: url.QueryEscape(`{"storage":{"a":{"value":"x","session":false}},"keys":["a"]}`)})
	rec := httptest.NewRecorder()
	jar := cookiestore.NewRequestJar(rec, req)

	s, _ := newStore(t, jar, "ns")
	assert.Equal(t, "x", mustGet(t, s, "a").String())
	require.NoError(t, s.SetItem("b", "y", false))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "ns", cookies[0].Name)
	raw, ok := jar.Get("ns")
	require.True(t, ok)
	assert.Equal(t, cookies[0].Value, raw)
}

func mustGet(t *testing.T, s *cookiestore.Store, name string) cookiestore.Value {
	t.Helper()
	v, ok := s.GetItem(name)
	require.True(t, ok, "missing %q", name)
	return v
}
