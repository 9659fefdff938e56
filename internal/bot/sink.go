// internal/bot/sink.go
package bot

import (
	"context"

	"go.uber.org/zap"

	"github.com/sagecry/sagebot/internal/events"
)

// LogSink forwards every bus event to the zap logger, which fans out
// to the console and the rotating session log file. Together with the
// bus's single dispatcher this gives the append-only, emission-ordered
// stream the presentation side consumes.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink writing to the given logger.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("session")}
}

// Attach subscribes the sink to every event type on the bus.
func (s *LogSink) Attach(bus *events.Bus) []events.Subscription {
	return bus.SubscribeAll(s)
}

// Handle writes one event as one log entry at the event's severity.
func (s *LogSink) Handle(_ context.Context, event events.Event) error {
	fields := []zap.Field{
		zap.String("event_type", string(event.Type())),
		zap.Time("event_time", event.Timestamp()),
	}

	switch event.Severity() {
	case events.LevelError:
		s.logger.Error(event.Message(), fields...)
	case events.LevelWarn:
		s.logger.Warn(event.Message(), fields...)
	default:
		s.logger.Info(event.Message(), fields...)
	}
	return nil
}
