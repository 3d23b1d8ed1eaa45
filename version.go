// Copyright (c) 2026 Nlaak Studios (https://nlaak.com)
// Author: Andrew Donelson (https://www.linkedin.com/in/andrew-donelson/)
//
// version.go -- build-time version, date, and environment metadata injected
// via -ldflags and exposed through the Version() function.

package videoplayer

// Build-time variables injected via -ldflags.
// Defaults represent an unversioned local development build.
//
//	BuildDate format : YYYY.MM.DD-HHMM  (24-hour clock)
//	BuildEnv  values : dev | qa | prod
var (
	// Set by: -ldflags "-X 'github.com/openedx/edx-platform-sub027.BuildDate=2026.10.16-0930'"
	BuildDate = "0000.00.00-0000"

	// Set by: -ldflags "-X 'github.com/openedx/edx-platform-sub027.BuildEnv=prod'"
	BuildEnv = "dev"
)

// Version returns the full version string, e.g. "2026.10.16-0930-prod".
func Version() string {
	return BuildDate + "-" + BuildEnv
}
