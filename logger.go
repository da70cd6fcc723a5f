package statechart

import "log"

// Logger is the collaborator behind the `log` action kind (spec §6). The
// default implementation writes to the host's standard log sink, matching
// the teacher's stdlib-first ambient plumbing; no logging library appears
// anywhere in the retrieved example pack, so there is nothing to wire here
// beyond the standard library.
type Logger interface {
	Log(v any)
}

// StdLogger adapts *log.Logger to the Logger interface.
type StdLogger struct {
	L *log.Logger
}

// NewStdLogger wraps l, or the standard library's default logger if l is nil.
func NewStdLogger(l *log.Logger) *StdLogger {
	if l == nil {
		l = log.Default()
	}
	return &StdLogger{L: l}
}

func (s *StdLogger) Log(v any) {
	s.L.Printf("%v", v)
}

// NoopLogger discards everything; useful in tests that don't want log
// chatter on stdout.
type NoopLogger struct{}

func (NoopLogger) Log(any) {}
