package events

import (
	"context"
	"log/slog"

	"ProofChain/pkg/logger"
)

// LogSink 将事件写入审计日志。
type LogSink struct {
	log *slog.Logger
}

// NewLogSink 创建日志 sink，l 为空时使用全局审计日志。
func NewLogSink(l *slog.Logger) *LogSink {
	return &LogSink{log: l}
}

// Emit 实现 Sink。
func (s *LogSink) Emit(ctx context.Context, evt Event) error {
	l := s.log
	if l == nil {
		l = logger.Audit()
	}
	attrs := []any{
		slog.String("event_id", evt.ID),
		slog.Uint64("timestamp", evt.Timestamp),
	}
	for _, k := range evt.Keys() {
		attrs = append(attrs, slog.String(k, evt.Indexed[k]))
	}
	l.InfoContext(ctx, evt.Name, attrs...)
	return nil
}

var _ Sink = (*LogSink)(nil)
