// Command fsmtester verifies state machine definition files.
//
//	fsmtester verify  [-dialect d] [-final s] [-loops n] [-report-dir dir] [-suite name] <file>
//	fsmtester inspect [-final s] [-normalize] <file>
//	fsmtester dot     [-final s] [-highlight] [-svg] [-o file] <file>
//	fsmtester suites
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	envconf "github.com/sethvargo/go-envconfig"

	"github.com/anggasct/fsmtester"
	"github.com/anggasct/fsmtester/pkg/adapters"
	"github.com/anggasct/fsmtester/pkg/analyzer"
	"github.com/anggasct/fsmtester/pkg/graph"
	"github.com/anggasct/fsmtester/pkg/loader"
	"github.com/anggasct/fsmtester/pkg/observers"
	"github.com/anggasct/fsmtester/pkg/suite"
	"github.com/anggasct/fsmtester/pkg/utils"
	"github.com/anggasct/fsmtester/visualization"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitError  = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil))
}

type app struct {
	config AppConfig
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookuper envconf.Lookuper) int {
	if len(args) == 0 {
		usage(stderr)
		return exitError
	}

	c, err := loadConfig(ctx, lookuper)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}
	logger, err := configureLogger(c, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	a := &app{config: c, logger: logger, stdout: stdout, stderr: stderr}

	switch args[0] {
	case "verify":
		return a.verify(ctx, args[1:])
	case "inspect":
		return a.inspect(args[1:])
	case "dot":
		return a.dot(ctx, args[1:])
	case "suites":
		for _, name := range fsmtester.SuiteNames() {
			fmt.Fprintln(stdout, name)
		}
		return exitOK
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return exitError
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: fsmtester <verify|inspect|dot|suites> [flags] <definition file>")
}

// fail prints err and maps it to an exit code
func (a *app) fail(err error) int {
	fmt.Fprintln(a.stderr, "error:", err)
	if utils.IsVerificationError(err) {
		return exitFailed
	}
	return exitError
}

func parseArgs(fs *flag.FlagSet, args []string) (string, map[string]bool, error) {
	if err := fs.Parse(args); err != nil {
		return "", nil, err
	}
	if fs.NArg() != 1 {
		return "", nil, fmt.Errorf("%s: expected exactly one definition file", fs.Name())
	}

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return fs.Arg(0), set, nil
}

func (a *app) newTester(doc *loader.Document, s verifySettings, opts ...fsmtester.Option) (*fsmtester.Tester, error) {
	dialect, err := adapters.ParseDialect(s.Dialect)
	if err != nil {
		return nil, err
	}

	opts = append([]fsmtester.Option{
		fsmtester.WithDialect(dialect),
		fsmtester.WithExpectedLoops(s.ExpectedLoops),
		fsmtester.WithLogger(a.logger),
	}, opts...)
	return fsmtester.New(doc.Definition, s.Final, opts...)
}

func (a *app) verify(ctx context.Context, args []string) int {
	var flags verifySettings
	var only string

	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.StringVar(&flags.Dialect, "dialect", "", "native|looplab|stateless")
	fs.StringVar(&flags.Final, "final", "", "final state (overrides the file)")
	fs.IntVar(&flags.ExpectedLoops, "loops", 0, "loop traversals allowed before escaping")
	fs.StringVar(&flags.ReportDir, "report-dir", "", "write a JSON report per failing suite here")
	fs.StringVar(&only, "suite", "", "run a single suite")

	path, set, err := parseArgs(fs, args)
	if err != nil {
		return exitError
	}

	doc, err := loader.Load(path)
	if err != nil {
		return a.fail(err)
	}
	settings := resolve(a.config, doc, flags, set)

	level := observers.ParseLogLevel(a.config.LogLevel)
	metrics := observers.NewMetricsObserver()
	coverage := observers.NewValidationObserver(doc.Definition)
	tester, err := a.newTester(doc, settings,
		fsmtester.WithObservers(observers.NewLoggingObserver(a.logger, level, "verify"), metrics),
		fsmtester.WithMachineObservers(metrics, coverage))
	if err != nil {
		return a.fail(err)
	}

	var reports []*suite.Report
	if only != "" {
		report, runErr := tester.RunSuite(ctx, only)
		if report != nil {
			reports = append(reports, report)
		}
		err = runErr
	} else {
		reports, err = tester.RunAll(ctx)
	}

	failed := a.printReports(reports)
	if dirErr := a.writeReports(settings.ReportDir, reports); dirErr != nil {
		a.logger.Error("cannot write reports", "dir", settings.ReportDir, "error", dirErr)
	}

	counts := metrics.GetCaseCounts()
	a.logger.Debug("session metrics",
		"session", tester.SessionID(),
		"passed", counts[suite.StatusPassed],
		"failed", counts[suite.StatusFailed],
		"skipped", counts[suite.StatusSkipped],
		"transitions_fired", len(metrics.GetTransitionCounts()),
		"never_entered", coverage.GetUnvisitedStates())
	if coverage.HasViolations() {
		a.logger.Warn("machine left the declared transitions", "violations", coverage.GetViolations())
	}

	if err != nil {
		return a.fail(err)
	}
	if failed > 0 {
		return exitFailed
	}
	return exitOK
}

func (a *app) printReports(reports []*suite.Report) int {
	failed := 0
	for _, r := range reports {
		verdict := "PASS"
		switch {
		case r.Aborted:
			verdict = "ABORT"
			failed++
		case !r.Passed():
			verdict = "FAIL"
			failed++
		}
		fmt.Fprintf(a.stdout, "%-5s %s (%d cases, %d skipped)\n",
			verdict, r.Suite, len(r.Results), r.Count(suite.StatusSkipped))
		for _, f := range r.Failures() {
			line := fmt.Sprintf("      %s: %s", f.Case, f.Message)
			if len(f.Trace) > 0 {
				line += " (trace: " + strings.Join(f.Trace, " -> ") + ")"
			}
			fmt.Fprintln(a.stdout, line)
		}
	}
	return failed
}

// writeReports stores every failing report as <dir>/<session>-<suite>.json
func (a *app) writeReports(dir string, reports []*suite.Report) error {
	if dir == "" {
		return nil
	}

	var failing []*suite.Report
	for _, r := range reports {
		if !r.Passed() {
			failing = append(failing, r)
		}
	}
	if len(failing) == 0 {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, r := range failing {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return err
		}
		name := filepath.Join(dir, fmt.Sprintf("%s-%s.json", r.SessionID, r.Suite))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return err
		}
		a.logger.Info("report written", "file", name)
	}
	return nil
}

func (a *app) inspect(args []string) int {
	var final string
	var normalize bool

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.StringVar(&final, "final", "", "final state (overrides the file)")
	fs.BoolVar(&normalize, "normalize", false, "print the definition in canonical YAML")

	path, set, err := parseArgs(fs, args)
	if err != nil {
		return exitError
	}

	doc, err := loader.Load(path)
	if err != nil {
		return a.fail(err)
	}
	if set["final"] {
		doc.Final = final
	}

	if normalize {
		data, err := loader.Encode(doc)
		if err != nil {
			return a.fail(err)
		}
		_, _ = a.stdout.Write(data)
		return exitOK
	}

	def := doc.Definition
	if err := def.Validate(); err != nil {
		return a.fail(err)
	}
	g, err := graph.Build(def.ExpandWildcards())
	if err != nil {
		return a.fail(err)
	}
	an := analyzer.New(g, def.Initial, doc.Final)

	fmt.Fprintf(a.stdout, "machine:     %s\n", def.Name)
	fmt.Fprintf(a.stdout, "initial:     %s\n", def.Initial)
	fmt.Fprintf(a.stdout, "final:       %s\n", doc.Final)
	fmt.Fprintf(a.stdout, "states:      %d\n", g.NodeCount())
	fmt.Fprintf(a.stdout, "transitions: %d\n", g.EdgeCount())
	fmt.Fprintf(a.stdout, "triggers:    %s\n", strings.Join(def.Triggers(), ", "))
	fmt.Fprintf(a.stdout, "guards:      %s\n", strings.Join(def.GuardNames(), ", "))
	fmt.Fprintf(a.stdout, "unreachable: %s\n", strings.Join(an.Unreachable(), ", "))
	if doc.Final != "" {
		fmt.Fprintf(a.stdout, "sinks:       %s\n", strings.Join(an.Sinks(), ", "))
	}
	for _, loop := range g.SimpleCycles() {
		fmt.Fprintf(a.stdout, "loop:        %s\n", strings.Join(loop, " -> "))
	}
	return exitOK
}

func (a *app) dot(ctx context.Context, args []string) int {
	var (
		final     string
		highlight bool
		svg       bool
		output    string
		rankdir   string
	)

	fs := flag.NewFlagSet("dot", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.StringVar(&final, "final", "", "final state (overrides the file)")
	fs.BoolVar(&highlight, "highlight", false, "run every suite and highlight failing states")
	fs.BoolVar(&svg, "svg", false, "render SVG through Graphviz")
	fs.StringVar(&output, "o", "", "output file (default stdout)")
	fs.StringVar(&rankdir, "rankdir", "TB", "TB|LR|BT|RL")

	path, set, err := parseArgs(fs, args)
	if err != nil {
		return exitError
	}

	doc, err := loader.Load(path)
	if err != nil {
		return a.fail(err)
	}
	if set["final"] {
		doc.Final = final
	}

	options := visualization.DefaultDOTOptions()
	options.FinalState = doc.Final
	options.RankDirection = rankdir

	if highlight {
		settings := resolve(a.config, doc, verifySettings{}, nil)
		tester, err := a.newTester(doc, settings)
		if err != nil {
			return a.fail(err)
		}
		reports, err := tester.RunAll(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("session aborted, highlighting partial results", "error", err)
		}
		options.Highlighted = visualization.StatesFromReports(reports...)
	}

	gen := visualization.NewDOTGenerator(doc.Definition, options)
	var content string
	if svg {
		content, err = gen.GenerateSVG()
	} else {
		content, err = gen.Generate()
	}
	if err != nil {
		return a.fail(err)
	}

	if output == "" {
		fmt.Fprint(a.stdout, content)
		return exitOK
	}
	if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
		return a.fail(err)
	}
	return exitOK
}
