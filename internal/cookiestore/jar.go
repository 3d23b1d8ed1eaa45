package cookiestore

import (
	"net/http"
	"sync"
	"time"

	"github.com/openedx/edx-platform-sub027/internal/clock"
)

// Jar is the cookie backend a Store reads from and writes to.
type Jar interface {
	// Get returns the raw value of the named cookie.
	Get(name string) (string, bool)
	// Set writes c. A negative MaxAge deletes the cookie.
	Set(c *http.Cookie) error
}

// MemoryJar is an in-memory browser cookie jar. Cookies with an expiry are
// persistent and are dropped once the clock passes it; cookies without one
// live until EndSession.
type MemoryJar struct {
	mu      sync.Mutex
	clock   clock.Clock
	cookies map[string]*http.Cookie
}

// NewMemoryJar returns an empty jar. A nil clock uses the wall clock.
func NewMemoryJar(c clock.Clock) *MemoryJar {
	if c == nil {
		c = clock.Real{}
	}
	return &MemoryJar{clock: c, cookies: make(map[string]*http.Cookie)}
}

func (j *MemoryJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.cookies[name]
	if !ok {
		return "", false
	}
	if clock.Expired(j.clock, c.Expires) {
		delete(j.cookies, name)
		return "", false
	}
	return c.Value, true
}

func (j *MemoryJar) Set(c *http.Cookie) error {
	if err := c.Valid(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if c.MaxAge < 0 || (!c.Expires.IsZero() && !c.Expires.After(j.clock.Now())) {
		delete(j.cookies, c.Name)
		return nil
	}
	cp := *c
	j.cookies[c.Name] = &cp
	return nil
}

// Cookie returns a copy of the stored cookie, for inspection.
func (j *MemoryJar) Cookie(name string) (http.Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.cookies[name]
	if !ok {
		return http.Cookie{}, false
	}
	return *c, true
}

// EndSession drops every cookie that has no expiry, as a browser does when
// it is closed.
func (j *MemoryJar) EndSession() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for name, c := range j.cookies {
		if c.Expires.IsZero() && c.MaxAge == 0 {
			delete(j.cookies, name)
		}
	}
}

// RequestJar reads cookies from an incoming request and writes Set-Cookie
// headers to the response. Values written during the request shadow the
// request's own cookies.
type RequestJar struct {
	r *http.Request
	w http.ResponseWriter

	mu      sync.Mutex
	written map[string]*http.Cookie
}

// NewRequestJar binds a jar to one request/response pair.
func NewRequestJar(w http.ResponseWriter, r *http.Request) *RequestJar {
	return &RequestJar{r: r, w: w, written: make(map[string]*http.Cookie)}
}

func (j *RequestJar) Get(name string) (string, bool) {
	j.mu.Lock()
	c, ok := j.written[name]
	j.mu.Unlock()
	if ok {
		if c.MaxAge < 0 {
			return "", false
		}
		return c.Value, true
	}
	rc, err := j.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return rc.Value, true
}

func (j *RequestJar) Set(c *http.Cookie) error {
	if err := c.Valid(); err != nil {
		return err
	}
	http.SetCookie(j.w, c)
	cp := *c
	j.mu.Lock()
	j.written[c.Name] = &cp
	j.mu.Unlock()
	return nil
}

func expiryIn(c clock.Clock, days int) time.Time {
	return c.Now().AddDate(0, 0, days).UTC()
}
