package stripe

import (
	"fmt"
	"log/slog"
)

// slogLeveledLogger routes SDK logging through slog.
type slogLeveledLogger struct {
	logger *slog.Logger
}

func (l *slogLeveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *slogLeveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

func (l *slogLeveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...))
}

func (l *slogLeveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...))
}
