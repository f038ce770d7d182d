package wsnotify

import "go.uber.org/zap"

// Logger is the logging surface the client writes to.
type Logger interface {
	WithField(key string, value any) Logger
	Debug(args ...any)
	Debugf(format string, args ...any)
	Debugln(args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Infoln(args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Warnln(args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Errorln(args ...any)
}

type zapLogger struct {
	*zap.SugaredLogger
}

// NewZapLogger adapts a zap logger. A nil logger yields a no-op one.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return zapLogger{SugaredLogger: l.Sugar()}
}

func (l zapLogger) WithField(key string, value any) Logger {
	return zapLogger{SugaredLogger: l.SugaredLogger.With(key, value)}
}
