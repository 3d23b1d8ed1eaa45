package cookiestore

import (
	"errors"
	"sync"

	"github.com/openedx/edx-platform-sub027/internal/events"
)

// Hub delivers the page-unload signal to every open store. When given a
// window bus it binds its unload handler there the first time a store
// registers, and never again.
type Hub struct {
	window *events.Bus
	bind   sync.Once

	mu      sync.Mutex
	stores  []*Store
	binding *events.Binding
}

// DefaultHub is used by stores opened without an explicit hub. It has no
// window; call DefaultHub.Unload directly.
var DefaultHub = NewHub(nil)

// NewHub returns a hub listening for events.Unload on window, which may be
// nil.
func NewHub(window *events.Bus) *Hub {
	return &Hub{window: window}
}

// Unload purges session-scoped entries from every registered store and
// re-persists each namespace. Errors from individual stores are joined.
func (h *Hub) Unload() error {
	h.mu.Lock()
	stores := append([]*Store(nil), h.stores...)
	h.mu.Unlock()

	var errs []error
	for _, s := range stores {
		if err := s.purgeSession(); err != nil {
			s.logger.Warn("cookiestore: unload purge failed", "namespace", s.namespace, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bound reports whether the hub has subscribed to its window.
func (h *Hub) Bound() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.binding != nil
}

// Stores returns the number of registered stores.
func (h *Hub) Stores() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.stores)
}

func (h *Hub) register(s *Store) {
	h.bind.Do(func() {
		if h.window == nil {
			return
		}
		bd := h.window.On(events.Handlers{events.Unload: events.Simple(func() { _ = h.Unload() })})
		h.mu.Lock()
		h.binding = bd
		h.mu.Unlock()
	})
	h.mu.Lock()
	h.stores = append(h.stores, s)
	h.mu.Unlock()
}

func (h *Hub) unregister(s *Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, cur := range h.stores {
		if cur == s {
			h.stores = append(h.stores[:i], h.stores[i+1:]...)
			return
		}
	}
}
