// Package cookiestore implements a namespaced key/value store multiplexed
// into a single cookie. Entries are either persistent or session scoped;
// session entries are purged when the page unloads.
package cookiestore

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/openedx/edx-platform-sub027/internal/clock"
	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/openedx/edx-platform-sub027/internal/metrics"
)

const (
	// DefaultNamespace is the cookie name used when Open is given none.
	DefaultNamespace = "cookieStorage"
	// MaxCookieBytes bounds the serialized "name=value" pair of a namespace.
	MaxCookieBytes = 4096
	// ExpiryDays is the lifetime of a persisted namespace cookie.
	ExpiryDays = 3650
)

var (
	// ErrCapacityExceeded is returned by a write that would grow the cookie
	// past MaxCookieBytes. The store is left as it was before the write.
	ErrCapacityExceeded = errors.New("cookiestore: namespace exceeds cookie capacity")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("cookiestore: store closed")
)

// Options configures Open. The zero value is usable.
type Options struct {
	Hub     *Hub // defaults to DefaultHub
	Clock   clock.Clock
	Logger  logging.Logger
	Metrics metrics.MetricsRecorder
}

// Store is one open namespace. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	jar       Jar
	namespace string
	data      data
	closed    bool

	hub     *Hub
	clock   clock.Clock
	logger  logging.Logger
	metrics metrics.MetricsRecorder
}

// Open reads the namespace cookie from jar and returns a store over it. A
// missing or unreadable cookie yields an empty store. The store is
// registered with the unload hub until Close.
func Open(jar Jar, namespace string, opts Options) *Store {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	s := &Store{
		jar:       jar,
		namespace: namespace,
		hub:       opts.Hub,
		clock:     opts.Clock,
		logger:    logging.OrNop(opts.Logger),
		metrics:   opts.Metrics,
	}
	if s.hub == nil {
		s.hub = DefaultHub
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}

	s.data = emptyData()
	if raw, ok := jar.Get(namespace); ok {
		d, err := parse(raw)
		if err != nil {
			s.logger.Debug("cookiestore: discarding unreadable namespace", "namespace", namespace, "err", err)
		} else {
			s.data = d
		}
	}
	s.hub.register(s)
	return s
}

// Namespace returns the cookie name backing the store.
func (s *Store) Namespace() string { return s.namespace }

// SetItem stores value under name and persists the namespace. An empty name
// is ignored. Overwriting keeps the key's position.
func (s *Store) SetItem(name string, value any, session bool) error {
	if name == "" {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cookiestore: encode %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev := s.data.clone()
	if _, ok := s.data.Storage[name]; !ok {
		s.data.Keys = append(s.data.Keys, name)
	}
	s.data.Storage[name] = entry{Value: raw, Session: session}
	if err := s.persistLocked(); err != nil {
		s.data = prev
		return err
	}
	return nil
}

// GetItem returns the value stored under name.
func (s *Store) GetItem(name string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data.Storage[name]
	if !ok {
		return Value{}, false
	}
	return Value{raw: e.Value}, true
}

// IsSession reports whether name is stored session scoped.
func (s *Store) IsSession(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Storage[name].Session
}

// RemoveItem deletes name and persists the namespace, whether or not name
// was present.
func (s *Store) RemoveItem(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev := s.data.clone()
	if _, ok := s.data.Storage[name]; ok {
		delete(s.data.Storage, name)
		s.data.Keys = without(s.data.Keys, name)
	}
	if err := s.persistLocked(); err != nil {
		s.data = prev
		return err
	}
	return nil
}

// Clear empties the store and deletes the cookie.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = emptyData()
	err := s.jar.Set(&http.Cookie{
		Name:    s.namespace,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	})
	s.metrics.RecordStorageWrite(s.namespace, err == nil)
	if err != nil {
		return fmt.Errorf("cookiestore: clear %s: %w", s.namespace, err)
	}
	return nil
}

// Key returns the name at position n in insertion order.
func (s *Store) Key(n int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n >= len(s.data.Keys) {
		return "", false
	}
	return s.data.Keys[n], true
}

// Keys returns a copy of the key list in insertion order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.data.Keys...)
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.Keys)
}

// Close unregisters the store from its hub. Further writes fail with
// ErrClosed. Close is idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.hub.unregister(s)
}

// purgeSession drops every session-scoped entry and persists what remains.
func (s *Store) purgeSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	prev := s.data.clone()
	kept := s.data.Keys[:0:0]
	for _, k := range s.data.Keys {
		if s.data.Storage[k].Session {
			delete(s.data.Storage, k)
			continue
		}
		kept = append(kept, k)
	}
	s.data.Keys = kept
	if err := s.persistLocked(); err != nil {
		s.data = prev
		return err
	}
	return nil
}

func (s *Store) persistLocked() error {
	value, err := encode(s.data)
	if err != nil {
		s.metrics.RecordStorageWrite(s.namespace, false)
		return fmt.Errorf("cookiestore: encode %s: %w", s.namespace, err)
	}
	if size := len(s.namespace) + 1 + len(value); size > MaxCookieBytes {
		s.metrics.RecordStorageWrite(s.namespace, false)
		return fmt.Errorf("%w: %s is %d bytes", ErrCapacityExceeded, s.namespace, size)
	}
	err = s.jar.Set(&http.Cookie{
		Name:    s.namespace,
		Value:   value,
		Path:    "/",
		Expires: expiryIn(s.clock, ExpiryDays),
		MaxAge:  ExpiryDays * 24 * 60 * 60,
	})
	s.metrics.RecordStorageWrite(s.namespace, err == nil)
	if err != nil {
		return fmt.Errorf("cookiestore: write %s: %w", s.namespace, err)
	}
	return nil
}

func without(keys []string, name string) []string {
	out := keys[:0:0]
	for _, k := range keys {
		if k != name {
			out = append(out, k)
		}
	}
	return out
}
