package events

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/openedx/edx-platform-sub027/internal/metrics"
)

// Handler reacts to one dispatch.
type Handler func(Event)

// Handlers maps event names to the handler bound for each.
type Handlers map[Name]Handler

// Binding is the receipt returned by On. Passing it to Off removes exactly the
// handlers that were added.
type Binding struct {
	id     uint64
	names  []Name
	active atomic.Bool
}

// Names returns the bound event names in sorted order.
func (b *Binding) Names() []Name {
	out := make([]Name, len(b.names))
	copy(out, b.names)
	return out
}

// Active reports whether the binding is still subscribed.
func (b *Binding) Active() bool { return b.active.Load() }

type subscription struct {
	binding *Binding
	handler Handler
}

// Bus dispatches events synchronously to subscribers in registration order.
// It is safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Name][]subscription
	nextID  uint64
	name    string
	logger  logging.Logger
	metrics metrics.MetricsRecorder
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report recovered handler panics.
func WithLogger(l logging.Logger) Option {
	return func(b *Bus) { b.logger = logging.OrNop(l) }
}

// WithMetrics records one event per Trigger.
func WithMetrics(m metrics.MetricsRecorder) Option {
	return func(b *Bus) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithName labels the bus in log output.
func WithName(name string) Option {
	return func(b *Bus) { b.name = name }
}

// NewBus returns an empty Bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:    make(map[Name][]subscription),
		logger:  logging.Nop{},
		metrics: metrics.Noop{},
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// On subscribes every handler in hs and returns the binding. Nil handlers are
// skipped.
func (b *Bus) On(hs Handlers) *Binding {
	bd := &Binding{}
	names := make([]Name, 0, len(hs))
	for n, h := range hs {
		if h != nil {
			names = append(names, n)
		}
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	bd.names = names

	b.mu.Lock()
	b.nextID++
	bd.id = b.nextID
	for _, n := range names {
		b.subs[n] = append(b.subs[n], subscription{binding: bd, handler: hs[n]})
	}
	bd.active.Store(true)
	b.mu.Unlock()
	return bd
}

// Off removes every handler added by bd. It reports whether anything was
// removed; a second call with the same binding is a no-op.
func (b *Bus) Off(bd *Binding) bool {
	if bd == nil || !bd.active.CompareAndSwap(true, false) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range bd.names {
		lst := b.subs[n]
		out := lst[:0:0]
		for _, s := range lst {
			if s.binding != bd {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			delete(b.subs, n)
		} else {
			b.subs[n] = out
		}
	}
	return true
}

// Trigger dispatches name to its current subscribers. Handlers unbound by an
// earlier handler in the same dispatch are skipped. A panicking handler is
// logged and does not stop the remaining handlers.
func (b *Bus) Trigger(name Name, payload any) {
	b.mu.RLock()
	snapshot := append([]subscription(nil), b.subs[name]...)
	b.mu.RUnlock()

	b.metrics.RecordEvent(string(name))
	ev := Event{Name: name, Payload: payload}
	for _, s := range snapshot {
		if !s.binding.active.Load() {
			continue
		}
		b.dispatch(s, ev)
	}
}

func (b *Bus) dispatch(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("events: handler panicked",
				"bus", b.name, "event", string(ev.Name), "panic", fmt.Sprint(r))
		}
	}()
	s.handler(ev)
}

// Count returns the number of handlers bound to name.
func (b *Bus) Count(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// Len returns the total number of bound handlers across all names.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, lst := range b.subs {
		n += len(lst)
	}
	return n
}
