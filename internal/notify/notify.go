// Package notify delivers user-facing status events produced by tool sessions.
package notify

import (
	"github.com/doctools/backend/internal/logging"
	"github.com/doctools/backend/internal/models"
)

// Sink receives notifications. Implementations must not block for long; they
// are called from request handlers and processing goroutines.
type Sink interface {
	Notify(n models.Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n models.Notification)

// Notify calls f.
func (f SinkFunc) Notify(n models.Notification) { f(n) }

type multi []Sink

// Multi fans every notification out to all sinks, in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Notify(n models.Notification) {
	for _, s := range m {
		s.Notify(n)
	}
}

// Discard drops every notification.
var Discard Sink = SinkFunc(func(models.Notification) {})

var logger = logging.New("notify")

// LogSink writes notifications to the application log.
type LogSink struct{}

// Notify logs n at a level matching its severity.
func (LogSink) Notify(n models.Notification) {
	id := logging.ShortID(n.SessionID)
	switch n.Severity {
	case models.SeverityError:
		logger.Warnf("[Session %s] %s: %s", id, n.Title, n.Detail)
	case models.SeverityWarning:
		logger.Infof("[Session %s] %s: %s", id, n.Title, n.Detail)
	default:
		logger.Debugf("[Session %s] %s: %s", id, n.Title, n.Detail)
	}
}
