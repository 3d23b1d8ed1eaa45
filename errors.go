// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// errors.go -- sentinel error variables returned by the public player API,
// covering preference storage, save-state delivery, player lifecycle and
// server-side state records.

// Package videoplayer assembles the video player core: a cookie-backed
// preference store, a plugin event kernel, and the save-state, auto-advance,
// focus-grabber, social-sharing and caption plugins that share one player
// state.
package videoplayer

import (
	"errors"

	"github.com/openedx/edx-platform-sub027/internal/cookiestore"
	"github.com/openedx/edx-platform-sub027/internal/transport"
	"github.com/openedx/edx-platform-sub027/internal/userstate"
)

// Storage errors
var (
	ErrCapacityExceeded = cookiestore.ErrCapacityExceeded
	ErrStorageClosed    = cookiestore.ErrClosed
)

// Transport errors
var (
	ErrTransportClosed = transport.ErrClosed
	ErrSaveStatus      = transport.ErrStatus
)

// Lifecycle errors
var (
	ErrDestroyed     = errors.New("videoplayer: player destroyed")
	ErrAttachTimeout = errors.New("videoplayer: plugins did not finish binding")
)

// Config errors
var (
	ErrInvalidConfig = errors.New("videoplayer: invalid configuration")
)

// State record errors
var (
	ErrNotFound     = userstate.ErrNotFound
	ErrInvalidValue = userstate.ErrInvalidValue
)
