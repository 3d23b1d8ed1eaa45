// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// player.go -- Player: builds the shared plugin state, opens the preference
// store, resolves the starting configuration, attaches plugins, and drives
// the unload and destroy lifecycle.

package videoplayer

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/events"
	"github.com/openedx/edx-platform-sub027/internal/plugin"
	"github.com/openedx/edx-platform-sub027/internal/plugins/savestate"
)

// Player is one video player instance and its plugins.
type Player struct {
	cfg       Config
	state     *plugin.State
	storage   *cookiestore.Store
	hub       *cookiestore.Hub
	plugins   []plugin.Plugin
	destroyed atomic.Bool
}

// New builds a Player and attaches its plugins. On an attach timeout the
// player is destroyed and ErrAttachTimeout is returned.
func New(ctx context.Context, cfg Config, deps Deps) (*Player, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg.defaults()

	st := plugin.NewState(cfg.Player, nil, deps.Video)
	st.Element = deps.Element
	st.Logger = cfg.Logger
	st.Metrics = cfg.Metrics

	hub := cookiestore.NewHub(nil)
	store := cookiestore.Open(deps.Jar, cfg.Namespace, cookiestore.Options{
		Hub:     hub,
		Clock:   cfg.Clock,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	st.Storage = store

	r := ResolveConfig(cfg.Metadata, cfg.Player, store)
	st.Config = r.Config
	st.SetSpeed(r.Speed)
	st.SetAutoAdvance(r.AutoAdvance)

	p := &Player{cfg: cfg, state: st, storage: store, hub: hub}

	factories := make([]plugin.Factory, 0, len(deps.Plugins)+1)
	if deps.Saver != nil {
		factories = append(factories, savestate.New(deps.Saver))
	}
	factories = append(factories, deps.Plugins...)

	actx, cancel := context.WithTimeout(ctx, cfg.AttachTimeout)
	defer cancel()
	plugins, err := plugin.Attach(actx, st, cfg.I18n, plugin.Options{Events: cfg.Events}, factories...)
	p.plugins = plugins
	if err != nil {
		p.Destroy()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrAttachTimeout
		}
		return nil, err
	}

	cfg.Logger.Info("videoplayer: initialized",
		"id", st.ID,
		"plugins", st.Plugins(),
		"speed", r.Speed,
		"language", r.Config.TranscriptLanguage,
	)
	return p, nil
}

// ID returns the player instance ID.
func (p *Player) ID() string { return p.state.ID }

// State returns the state shared with plugins.
func (p *Player) State() *plugin.State { return p.state }

// Storage returns the player's preference store.
func (p *Player) Storage() *cookiestore.Store { return p.storage }

// Plugin returns the attached plugin registered under name.
func (p *Player) Plugin(name string) (plugin.Plugin, bool) {
	return p.state.Plugin(name)
}

// Trigger dispatches a player event to the plugins.
func (p *Player) Trigger(name events.Name, payload any) error {
	if p.destroyed.Load() {
		return ErrDestroyed
	}
	p.state.El.Trigger(name, payload)
	return nil
}

// Unload signals page unload: plugins see the window event first, then
// session-scoped preferences are purged from the store.
func (p *Player) Unload() error {
	p.state.Window.Trigger(events.Unload, nil)
	return p.hub.Unload()
}

// Destroy tears down every plugin and closes the store. Safe to call more
// than once.
func (p *Player) Destroy() {
	if p.destroyed.Swap(true) {
		return
	}
	p.state.El.Trigger(events.Destroy, nil)
	for _, pl := range p.plugins {
		if pl.Bound() {
			pl.Destroy()
		}
	}
	p.storage.Close()
	p.cfg.Logger.Debug("videoplayer: destroyed", "id", p.state.ID)
}
