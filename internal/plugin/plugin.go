package plugin

import (
	"context"
	"sync"

	"github.com/openedx/edx-platform-sub027/internal/events"
)

// Plugin is the lifecycle surface every plugin exposes.
type Plugin interface {
	Name() string
	// Destroy unbinds every handler the plugin added and detaches it from
	// the state. It is safe to call more than once.
	Destroy()
	// Bound reports whether the plugin is still subscribed.
	Bound() bool
}

// I18n translates user-visible strings.
type I18n interface {
	Gettext(msgid string) string
}

// NoI18n returns every message untranslated.
type NoI18n struct{}

func (NoI18n) Gettext(msgid string) string { return msgid }

// Options tunes how a plugin binds.
type Options struct {
	// Events restricts the plugin to the named subset of its handlers. Nil
	// binds them all; names the plugin does not handle are ignored. The
	// destroy teardown is bound regardless.
	Events []events.Name
}

// Factory constructs and binds a plugin. The returned channel is closed
// once binding has completed.
type Factory func(st *State, i18n I18n, opts Options) (Plugin, <-chan struct{})

// Construct returns the plugin already registered under name, or builds,
// registers and returns a new one. The returned channel is already closed:
// binding happens synchronously inside build.
func Construct[P Plugin](st *State, name string, build func() P) (P, <-chan struct{}) {
	if cur, ok := st.Plugin(name); ok {
		if p, ok := cur.(P); ok && p.Bound() {
			return p, closed()
		}
	}
	p := build()
	return p, closed()
}

func closed() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Attach runs each factory against st and waits until all of them have
// finished binding or ctx is done.
func Attach(ctx context.Context, st *State, i18n I18n, opts Options, factories ...Factory) ([]Plugin, error) {
	if i18n == nil {
		i18n = NoI18n{}
	}
	plugins := make([]Plugin, 0, len(factories))
	ready := make([]<-chan struct{}, 0, len(factories))
	for _, f := range factories {
		p, ch := f(st, i18n, opts)
		plugins = append(plugins, p)
		ready = append(ready, ch)
	}
	for _, ch := range ready {
		select {
		case <-ch:
		case <-ctx.Done():
			return plugins, ctx.Err()
		}
	}
	return plugins, nil
}

// Base implements the shared bind/unbind bookkeeping. Plugins embed it.
type Base struct {
	name  string
	state *State
	self  Plugin

	mu        sync.Mutex
	bindings  []listen
	cleanups  []func()
	bound     bool
	destroyed bool
}

type listen struct {
	bus     *events.Bus
	binding *events.Binding
}

// NewBase prepares the bookkeeping for a plugin called name.
func NewBase(name string, st *State) *Base {
	return &Base{name: name, state: st}
}

// Name returns the plugin name.
func (b *Base) Name() string { return b.name }

// State returns the state the plugin is attached to.
func (b *Base) State() *State { return b.state }

// Bound reports whether the plugin is still subscribed.
func (b *Base) Bound() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bound
}

// Initialize binds handlers on the state's element bus, filtered by
// opts.Events, registers self on the state and wires the destroy event to
// Destroy. A handler supplied for events.Destroy runs before teardown.
func (b *Base) Initialize(self Plugin, handlers events.Handlers, opts Options) {
	b.mu.Lock()
	b.self = self
	b.bound = true
	b.mu.Unlock()

	selected := filter(handlers, opts.Events)
	onDestroy := selected[events.Destroy]
	selected[events.Destroy] = func(e events.Event) {
		if onDestroy != nil {
			onDestroy(e)
		}
		b.Destroy()
	}
	b.Listen(b.state.El, selected)
	b.state.Attach(self)
}

func filter(handlers events.Handlers, only []events.Name) events.Handlers {
	out := make(events.Handlers, len(handlers)+1)
	if only == nil {
		for n, h := range handlers {
			out[n] = h
		}
		return out
	}
	for _, n := range only {
		if h, ok := handlers[n]; ok {
			out[n] = h
		}
	}
	return out
}

// Listen binds hs on bus and remembers the binding for teardown. Listening
// after Destroy does nothing and returns nil.
func (b *Base) Listen(bus *events.Bus, hs events.Handlers) *events.Binding {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed || bus == nil {
		return nil
	}
	bd := bus.On(hs)
	b.bindings = append(b.bindings, listen{bus: bus, binding: bd})
	return bd
}

// Unlisten removes a binding returned by Listen before teardown.
func (b *Base) Unlisten(bd *events.Binding) {
	if bd == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.bindings {
		if l.binding == bd {
			l.bus.Off(bd)
			b.bindings = append(b.bindings[:i], b.bindings[i+1:]...)
			return
		}
	}
}

// OnDestroy registers fn to run during teardown, after handlers are
// unbound.
func (b *Base) OnDestroy(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanups = append(b.cleanups, fn)
}

// Destroy unbinds everything Listen bound, runs cleanups, and detaches the
// plugin from the state. Only the first call has any effect.
func (b *Base) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	b.bound = false
	bindings := b.bindings
	cleanups := b.cleanups
	b.bindings = nil
	b.cleanups = nil
	self := b.self
	b.mu.Unlock()

	for _, l := range bindings {
		l.bus.Off(l.binding)
	}
	for _, fn := range cleanups {
		fn()
	}
	if self != nil {
		b.state.Detach(b.name, self)
	}
	b.state.Log().Debug("plugin: destroyed", "plugin", b.name, "player", b.state.ID)
}
