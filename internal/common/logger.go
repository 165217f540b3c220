package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/golang/glog"
)

// Severity represents log message severity levels
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity converts a level name, in any case, as used on command lines.
func ParseSeverity(s string) (Severity, bool) {
	for sev := SeverityDebug; sev <= SeverityError; sev++ {
		if strings.EqualFold(sev.String(), s) {
			return sev, true
		}
	}
	return SeverityInfo, false
}

// Logger is the logging contract for sessions, servers and simulators.
type Logger interface {
	Log(severity Severity, msg string)
	Logf(severity Severity, format string, args ...interface{})
	Error(err error)
	Debug(msg string)
	Info(msg string)
	Warning(msg string)
}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// StdLogger implements the Logger interface using Go's standard logger
type StdLogger struct {
	debugLog   *log.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	minLevel   Severity
}

// NewStdLogger creates a new standard logger
func NewStdLogger(minLevel Severity) *StdLogger {
	return NewStdLoggerWithWriter(os.Stdout, os.Stderr, minLevel)
}

// NewStdLoggerWithWriter creates a new standard logger with custom writers
func NewStdLoggerWithWriter(stdout, stderr io.Writer, minLevel Severity) *StdLogger {
	return &StdLogger{
		debugLog:   log.New(stdout, "DEBUG: ", log.Ltime|log.Lshortfile),
		infoLog:    log.New(stdout, "INFO: ", log.Ltime),
		warningLog: log.New(stdout, "WARNING: ", log.Ltime),
		errorLog:   log.New(stderr, "ERROR: ", log.Ltime|log.Lshortfile),
		minLevel:   minLevel,
	}
}

func (l *StdLogger) Log(severity Severity, msg string) {
	if severity < l.minLevel {
		return
	}

	switch severity {
	case SeverityDebug:
		l.debugLog.Output(3, msg)
	case SeverityInfo:
		l.infoLog.Output(3, msg)
	case SeverityWarning:
		l.warningLog.Output(3, msg)
	case SeverityError:
		l.errorLog.Output(3, msg)
	}
}

func (l *StdLogger) Logf(severity Severity, format string, args ...interface{}) {
	l.Log(severity, fmt.Sprintf(format, args...))
}

func (l *StdLogger) Error(err error) {
	if err != nil {
		l.Log(SeverityError, err.Error())
	}
}

func (l *StdLogger) Debug(msg string)   { l.Log(SeverityDebug, msg) }
func (l *StdLogger) Info(msg string)    { l.Log(SeverityInfo, msg) }
func (l *StdLogger) Warning(msg string) { l.Log(SeverityWarning, msg) }

// GlogLogger routes messages to glog. Debug messages are emitted at
// verbosity level 2.
type GlogLogger struct {
	minLevel Severity
}

func NewGlogLogger(minLevel Severity) *GlogLogger {
	return &GlogLogger{minLevel: minLevel}
}

func (l *GlogLogger) Log(severity Severity, msg string) {
	if severity < l.minLevel {
		return
	}
	switch severity {
	case SeverityDebug:
		if glog.V(2) {
			glog.InfoDepth(2, msg)
		}
	case SeverityInfo:
		glog.InfoDepth(2, msg)
	case SeverityWarning:
		glog.WarningDepth(2, msg)
	case SeverityError:
		glog.ErrorDepth(2, msg)
	}
}

func (l *GlogLogger) Logf(severity Severity, format string, args ...interface{}) {
	l.Log(severity, fmt.Sprintf(format, args...))
}

func (l *GlogLogger) Error(err error) {
	if err != nil {
		l.Log(SeverityError, err.Error())
	}
}

func (l *GlogLogger) Debug(msg string)   { l.Log(SeverityDebug, msg) }
func (l *GlogLogger) Info(msg string)    { l.Log(SeverityInfo, msg) }
func (l *GlogLogger) Warning(msg string) { l.Log(SeverityWarning, msg) }

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

func (NoOpLogger) Log(severity Severity, msg string)                          {}
func (NoOpLogger) Logf(severity Severity, format string, args ...interface{}) {}
func (NoOpLogger) Error(err error)                                            {}
func (NoOpLogger) Debug(msg string)                                           {}
func (NoOpLogger) Info(msg string)                                            {}
func (NoOpLogger) Warning(msg string)                                         {}

// PrefixLogger prepends a component name to every message.
type PrefixLogger struct {
	Prefix string
	Next   Logger
}

func (l PrefixLogger) Log(severity Severity, msg string) {
	l.Next.Log(severity, l.Prefix+": "+msg)
}

func (l PrefixLogger) Logf(severity Severity, format string, args ...interface{}) {
	l.Log(severity, fmt.Sprintf(format, args...))
}

func (l PrefixLogger) Error(err error) {
	if err != nil {
		l.Log(SeverityError, err.Error())
	}
}

func (l PrefixLogger) Debug(msg string)   { l.Log(SeverityDebug, msg) }
func (l PrefixLogger) Info(msg string)    { l.Log(SeverityInfo, msg) }
func (l PrefixLogger) Warning(msg string) { l.Log(SeverityWarning, msg) }
