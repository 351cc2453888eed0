package suite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/anggasct/fsmtester/pkg/suite"

// Runner executes suites case by case, in order, on the calling goroutine
type Runner struct {
	sessionID string
	logger    *slog.Logger
	tracer    trace.Tracer
	observers observerManager
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithSessionID stamps every report with id
func WithSessionID(id string) RunnerOption {
	return func(r *Runner) { r.sessionID = id }
}

// WithLogger sets the logger used for run diagnostics
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for suite and case spans
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// WithObservers registers observers notified during runs
func WithObservers(observers ...Observer) RunnerOption {
	return func(r *Runner) {
		for _, o := range observers {
			r.observers.add(o)
		}
	}
}

// NewRunner creates a runner. Without options it logs nothing and uses the
// global OpenTelemetry tracer provider.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "runner")
	r.observers.logger = r.logger
	return r
}

// Run executes every case of s. Failed and skipped cases are recorded and
// the run continues; a fatal error or a cancelled context stops the run
// and is returned together with the partial report.
func (r *Runner) Run(ctx context.Context, s *Suite) (*Report, error) {
	ctx, span := r.tracer.Start(ctx, "suite "+s.Name,
		trace.WithAttributes(
			attribute.String("suite.name", s.Name),
			attribute.Int("suite.cases", len(s.Cases)),
		))
	defer span.End()

	report := &Report{
		SessionID:      r.sessionID,
		Suite:          s.Name,
		FailureMessage: s.FailureMessage,
		Started:        time.Now(),
	}

	r.logger.Debug("suite started", "suite", s.Name, "cases", len(s.Cases))
	r.observers.suiteStarted(s)

	var fatal error
	for _, c := range s.Cases {
		if err := ctx.Err(); err != nil {
			fatal = fmt.Errorf("suite %s interrupted before %s: %w", s.Name, c.Name, err)
			break
		}

		result, err := r.runCase(ctx, c)
		report.Results = append(report.Results, result)
		r.observers.caseFinished(s, result)

		if err != nil {
			fatal = fmt.Errorf("suite %s, case %s: %w", s.Name, c.Name, err)
			break
		}
	}

	report.Duration = time.Since(report.Started)
	if fatal != nil {
		report.Aborted = true
		span.RecordError(fatal)
		span.SetStatus(codes.Error, fatal.Error())
		r.logger.Error("suite aborted", "suite", s.Name, "error", fatal)
	} else if !report.Passed() {
		span.SetStatus(codes.Error, s.FailureMessage)
	}

	span.SetAttributes(
		attribute.Int("suite.failed", report.Count(StatusFailed)),
		attribute.Int("suite.skipped", report.Count(StatusSkipped)),
	)

	r.logger.Debug("suite finished",
		"suite", s.Name,
		"passed", report.Passed(),
		"failures", report.Count(StatusFailed),
		"duration", report.Duration)
	r.observers.suiteFinished(s, report)

	return report, fatal
}

func (r *Runner) runCase(ctx context.Context, c Case) (result Result, fatal error) {
	ctx, span := r.tracer.Start(ctx, c.Name)
	defer span.End()

	start := time.Now()
	result.Case = c.Name

	defer func() {
		if p := recover(); p != nil {
			fatal = fmt.Errorf("case panic: %v", p)
			result.Status = StatusFailed
			result.Message = fatal.Error()
			result.Duration = time.Since(start)
			span.SetStatus(codes.Error, result.Message)
		}
	}()

	err := c.Run(ctx)
	status, message, triggers, ok := classify(err)

	result.Status = status
	result.Message = message
	result.Trace = triggers
	result.Duration = time.Since(start)

	span.SetAttributes(attribute.String("case.status", status.String()))
	if status == StatusFailed {
		span.SetStatus(codes.Error, message)
	}

	if !ok {
		return result, err
	}
	return result, nil
}
