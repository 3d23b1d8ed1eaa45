// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// logger.go -- Logger interface used by the player and its plugins, and a
// constructor adapting a zerolog.Logger to it.

package videoplayer

import (
	"github.com/openedx/edx-platform-sub027/internal/logging"
	"github.com/rs/zerolog"
)

// Logger is the logging interface used by the player and its plugins.
// Implement this to route logs elsewhere, or use NewZerologLogger.
type Logger = logging.Logger

// NewZerologLogger adapts zl to Logger.
func NewZerologLogger(zl zerolog.Logger) Logger {
	return logging.FromZerolog(zl)
}
