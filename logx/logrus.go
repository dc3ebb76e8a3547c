package logx

import "github.com/sirupsen/logrus"

// LogrusSink adapts Logger onto a *logrus.Logger. Critical has no direct
// logrus counterpart, so it logs at Error with an extra "level":"critical"
// field rather than dropping the distinction.
type LogrusSink struct {
	l *logrus.Logger
}

// NewLogrusSink wraps l as a Logger. A nil l is replaced with
// logrus.StandardLogger().
func NewLogrusSink(l *logrus.Logger) *LogrusSink {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &LogrusSink{l: l}
}

var _ Logger = (*LogrusSink)(nil)

func (s *LogrusSink) Trace(format string, args ...any)       { s.l.Trace(sprintf(format, args...)) }
func (s *LogrusSink) Debug(format string, args ...any)       { s.l.Debug(sprintf(format, args...)) }
func (s *LogrusSink) Information(format string, args ...any) { s.l.Info(sprintf(format, args...)) }
func (s *LogrusSink) Warning(format string, args ...any)     { s.l.Warn(sprintf(format, args...)) }
func (s *LogrusSink) Error(format string, args ...any)       { s.l.Error(sprintf(format, args...)) }

func (s *LogrusSink) Critical(format string, args ...any) {
	s.l.WithField("level", "critical").Error(sprintf(format, args...))
}
