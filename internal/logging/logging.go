// Package logging hands out leveled loggers that share one configurable level.
package logging

import (
	"strings"
	"sync"

	"github.com/labstack/gommon/log"
)

var (
	mu      sync.Mutex
	level   = log.INFO
	loggers []*log.Logger
)

// New returns a logger with the given prefix at the current global level.
func New(prefix string) *log.Logger {
	l := log.New(prefix)
	l.SetHeader("${time_rfc3339} ${level} ${prefix}")

	mu.Lock()
	defer mu.Unlock()
	l.SetLevel(level)
	loggers = append(loggers, l)
	return l
}

// SetLevel applies levelStr to every logger handed out so far and to future ones.
func SetLevel(levelStr string) {
	lvl := ParseLevel(levelStr)

	mu.Lock()
	defer mu.Unlock()
	level = lvl
	for _, l := range loggers {
		l.SetLevel(lvl)
	}
}

// ParseLevel converts a config string to a log level, defaulting to info.
func ParseLevel(levelStr string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return log.DEBUG
	case "info":
		return log.INFO
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off", "none":
		return log.OFF
	default:
		return log.INFO
	}
}

// ShortID trims an id to the 8-character form used in log prefixes.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
