package observers

import "log/slog"

// NewDefaultLoggingObserver creates a logging observer at LogInfo level
func NewDefaultLoggingObserver(logger *slog.Logger) *LoggingObserver {
	return NewLoggingObserver(logger, LogInfo, "fsmtester")
}
