// Package sysutil holds process-level helpers shared by cmd/server and the
// services: log levels, context loggers and environment flags.
package sysutil

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Level maps a LOG_LEVEL value to a zerolog level. Matching ignores case
// and surrounding space, "warning" is an alias for warn, and empty or
// unknown values read as info.
func Level(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel || lvl == zerolog.Disabled {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value.
func SetLogLevel(s string) {
	zerolog.SetGlobalLevel(Level(s))
}

// IsTruthy reports whether an environment flag reads as true: anything
// strconv.ParseBool accepts as true, plus yes, y and on.
func IsTruthy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	switch v {
	case "yes", "y", "on":
		return true
	}
	return false
}

// FirstNonEmpty returns the first value that is not blank, unchanged.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
