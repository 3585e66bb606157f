package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes notifications to a zap logger.
type LogSink struct {
	Log *zap.Logger
}

func NewLogSink(l *zap.Logger) *LogSink { return &LogSink{Log: l} }

func (s *LogSink) Notify(_ context.Context, n Notification) {
	fields := []zap.Field{zap.String("op", n.Op), zap.String("notification_id", n.ID)}
	switch n.Level {
	case LevelError:
		if n.Err != "" {
			fields = append(fields, zap.String("error", n.Err))
		}
		s.Log.Error(n.Message, fields...)
	default:
		s.Log.Info(n.Message, fields...)
	}
}
