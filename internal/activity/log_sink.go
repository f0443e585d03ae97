package activity

import "go.uber.org/zap"

// LogSink writes entries to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink that logs each entry at info level.
func NewLogSink(logger *zap.Logger) LogSink {
	return LogSink{logger: logger}
}

// Consume writes the entry summary with its type, subject and amount as fields.
func (s LogSink) Consume(entry Entry) error {
	s.logger.Info(entry.Summary,
		zap.String("type", entry.Type), zap.String("subject", entry.Subject), zap.String("amount", entry.Amount))
	return nil
}
