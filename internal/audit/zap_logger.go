package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ZapLogger writes audit entries as structured log lines.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger constructs a ZapLogger. Entries go to the "audit" child logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// Log writes an audit entry.
func (l *ZapLogger) Log(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	l.logger.Info(entry.Action,
		zap.String("audit_id", entry.ID),
		zap.String("actor", entry.Actor),
		zap.String("reference", entry.Reference),
		zap.ByteString("metadata", entry.Metadata),
		zap.String("payload_digest", entry.PayloadDigest),
		zap.String("ip", entry.IP),
		zap.String("user_agent", entry.UserAgent),
		zap.Time("created_at", entry.CreatedAt))
	return nil
}
