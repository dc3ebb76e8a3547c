// Package logx defines the leveled logging contract shared by the buddy
// arena and the disk B-tree, plus a no-op default and a logrus adapter.
package logx

import "fmt"

// Logger is implemented by anything that can record the six levels the
// allocator and index trace their lifecycle through: construction and
// destruction (Debug/Information), routine operation detail (Trace), notable
// but non-fatal conditions (Warning), operation failures (Error), and
// conditions that leave the caller unable to continue (Critical).
type Logger interface {
	Trace(format string, args ...any)
	Debug(format string, args ...any)
	Information(format string, args ...any)
	Warning(format string, args ...any)
	Error(format string, args ...any)
	Critical(format string, args ...any)
}

// Nop discards everything. It is the zero value for Logger fields left
// unset by WithLogger.
type Nop struct{}

func (Nop) Trace(string, ...any)       {}
func (Nop) Debug(string, ...any)       {}
func (Nop) Information(string, ...any) {}
func (Nop) Warning(string, ...any)     {}
func (Nop) Error(string, ...any)       {}
func (Nop) Critical(string, ...any)    {}

var _ Logger = Nop{}

// sprintf applies fmt.Sprintf only when args are present, so callers that
// pass a literal message with no verbs don't need to double as format
// strings.
func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
