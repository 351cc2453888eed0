// Package observers provides observers for suite runs and live machines
package observers

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/anggasct/fsmtester/pkg/machine"
	"github.com/anggasct/fsmtester/pkg/model"
	"github.com/anggasct/fsmtester/pkg/suite"
)

// LogLevel represents the logging level
type LogLevel int

const (
	// LogError logs only errors
	LogError LogLevel = iota
	// LogWarning logs errors and warnings
	LogWarning
	// LogInfo logs errors, warnings, and info
	LogInfo
	// LogDebug logs errors, warnings, info, and debug
	LogDebug
)

// ParseLogLevel maps a level name to a LogLevel. Unknown names map to LogInfo.
func ParseLogLevel(name string) LogLevel {
	switch name {
	case "error":
		return LogError
	case "warn", "warning":
		return LogWarning
	case "debug":
		return LogDebug
	default:
		return LogInfo
	}
}

// SlogLevel returns the slog level matching l
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogError:
		return slog.LevelError
	case LogWarning:
		return slog.LevelWarn
	case LogDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// LoggingObserver logs suite lifecycle and machine events
type LoggingObserver struct {
	level  LogLevel
	prefix string
	logger *slog.Logger
	mutex  sync.RWMutex
}

var (
	_ suite.Observer           = (*LoggingObserver)(nil)
	_ machine.ExtendedObserver = (*LoggingObserver)(nil)
)

// NewLoggingObserver creates a new logging observer. A nil logger discards
// everything.
func NewLoggingObserver(logger *slog.Logger, level LogLevel, prefix string) *LoggingObserver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LoggingObserver{
		level:  level,
		prefix: prefix,
		logger: logger,
	}
}

// SetLevel changes the most verbose level logged
func (o *LoggingObserver) SetLevel(level LogLevel) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.level = level
}

// log logs a message at the specified level
func (o *LoggingObserver) log(level LogLevel, msg string, args ...any) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	if level > o.level {
		return
	}
	if o.prefix != "" {
		args = append(args, "observer", o.prefix)
	}
	o.logger.Log(context.Background(), level.SlogLevel(), msg, args...)
}

// OnSuiteStarted logs the start of a suite
func (o *LoggingObserver) OnSuiteStarted(s *suite.Suite) {
	o.log(LogInfo, "running suite", "suite", s.Name, "cases", s.Len())
}

// OnCaseFinished logs failed cases as warnings and the rest at debug level
func (o *LoggingObserver) OnCaseFinished(s *suite.Suite, result suite.Result) {
	args := []any{"suite", s.Name, "case", result.Case, "status", result.Status.String()}
	if result.Message != "" {
		args = append(args, "message", result.Message)
	}
	if len(result.Trace) > 0 {
		args = append(args, "trace", result.Trace)
	}

	if result.Status == suite.StatusFailed {
		o.log(LogWarning, "case failed", args...)
		return
	}
	o.log(LogDebug, "case finished", args...)
}

// OnSuiteFinished logs the verdict of a suite
func (o *LoggingObserver) OnSuiteFinished(s *suite.Suite, report *suite.Report) {
	switch {
	case report.Aborted:
		o.log(LogError, "suite aborted", "suite", s.Name, "results", len(report.Results))
	case !report.Passed():
		o.log(LogError, "suite failed", "suite", s.Name, "summary", report.Summary())
	default:
		o.log(LogInfo, "suite passed", "suite", s.Name,
			"skipped", report.Count(suite.StatusSkipped),
			"duration", report.Duration)
	}
}

// OnStateEnter logs state entry
func (o *LoggingObserver) OnStateEnter(state string) {
	o.log(LogDebug, "entering state", "state", state)
}

// OnStateExit logs state exit
func (o *LoggingObserver) OnStateExit(state string) {
	o.log(LogDebug, "exiting state", "state", state)
}

// OnTransition logs transitions
func (o *LoggingObserver) OnTransition(from, to, trigger string) {
	o.log(LogDebug, "transition", "from", from, "to", to, "trigger", trigger)
}

// OnGuardEvaluation logs guard outcomes
func (o *LoggingObserver) OnGuardEvaluation(t model.Transition, permitted bool) {
	o.log(LogDebug, "guards evaluated", "transition", t.String(), "permitted", permitted)
}

// OnEventRejected logs rejected triggers
func (o *LoggingObserver) OnEventRejected(trigger, reason string) {
	o.log(LogWarning, "trigger rejected", "trigger", trigger, "reason", reason)
}
