package logging

import (
	"log"

	"cwc/internal/app"
)

// StdLogger adapts the standard library's log package to app.Logger.
type StdLogger struct{}

func NewStdLogger() app.Logger {
	return &StdLogger{}
}

func (l StdLogger) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// OrDefault returns l if non-nil, otherwise a StdLogger. Constructors use
// this instead of requiring every caller to provide a logger.
func OrDefault(l app.Logger) app.Logger {
	if l == nil {
		return NewStdLogger()
	}
	return l
}
