package audit

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapSink writes audit events as structured log lines. Successful events are
// logged at Info, denials and failures at Warn.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	if s == nil {
		return
	}
	level := zapcore.InfoLevel
	if !event.Success {
		level = zapcore.WarnLevel
	}
	ce := s.logger.Check(level, event.EventType)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, 10+len(event.Metadata))
	fields = append(fields,
		zap.Time("ts_event", event.Timestamp),
		zap.Bool("success", event.Success),
	)
	fields = appendNonEmpty(fields, "user_id", event.UserID)
	fields = appendNonEmpty(fields, "tenant_id", event.TenantID)
	fields = appendNonEmpty(fields, "session_id", event.SessionID)
	fields = appendNonEmpty(fields, "key_id", event.KeyID)
	fields = appendNonEmpty(fields, "ip", event.IP)
	fields = appendNonEmpty(fields, "path", event.Path)
	fields = appendNonEmpty(fields, "error", event.Error)
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta."+k, v))
	}
	ce.Write(fields...)
}

func appendNonEmpty(fields []zap.Field, key, value string) []zap.Field {
	if value == "" {
		return fields
	}
	return append(fields, zap.String(key, value))
}
