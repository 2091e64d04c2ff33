// Package events carries fire-and-forget diagnostics out of a session, such
// as cache misses that external tooling wants to log or assert on.
package events

import (
	"time"

	"go.uber.org/zap"

	"github.com/rsclarke/replaycache/internal/logging"
)

// Kind identifies what happened.
type Kind string

// Event kinds.
const (
	KindCacheMiss     Kind = "cache_miss"
	KindAuthChallenge Kind = "auth_challenge"
	KindRecorded      Kind = "recorded"
	KindFlushed       Kind = "flushed"
)

// Event describes one request the session handled.
type Event struct {
	Kind       Kind
	URL        string
	Query      string
	Method     string
	Body       []byte
	Hash       string
	Occurrence int
	At         time.Time
}

// Sink receives events. Emit must not block.
type Sink interface {
	Emit(Event)
}

// Channel is a buffered Sink. Events that do not fit are dropped.
type Channel struct {
	C       chan Event
	dropped int64
}

// NewChannel returns a Channel holding up to size pending events.
func NewChannel(size int) *Channel {
	return &Channel{C: make(chan Event, size)}
}

func (c *Channel) Emit(e Event) {
	select {
	case c.C <- e:
	default:
		c.dropped++
	}
}

// Dropped returns how many events did not fit. Only meaningful when Emit
// calls are serialized, which a session guarantees.
func (c *Channel) Dropped() int64 { return c.dropped }

// LogSink writes events to a zap logger. Cache misses log at warn level,
// everything else at debug.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Emit(e Event) {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		logging.Method(e.Method),
		logging.URL(e.URL),
		logging.Hash(e.Hash),
		logging.Occurrence(e.Occurrence),
	}
	if e.Query != "" {
		fields = append(fields, zap.String("query", e.Query))
	}
	if len(e.Body) > 0 {
		fields = append(fields, zap.ByteString("body", e.Body))
	}
	if e.Kind == KindCacheMiss {
		s.Logger.Warn("no recorded response for request", fields...)
		return
	}
	s.Logger.Debug("session event", fields...)
}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(Event) {}
