package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	dotenv "github.com/joho/godotenv"
	envconf "github.com/sethvargo/go-envconfig"

	"github.com/anggasct/fsmtester/pkg/loader"
	"github.com/anggasct/fsmtester/pkg/observers"
)

// AppConfig holds the settings read from the environment
type AppConfig struct {
	Dialect       string `env:"FSMTESTER_DIALECT, default=native"`
	LogLevel      string `env:"FSMTESTER_LOG_LEVEL, default=info"`
	LogFormat     string `env:"FSMTESTER_LOG_FORMAT, default=text"`
	ReportDir     string `env:"FSMTESTER_REPORT_DIR"`
	ExpectedLoops int    `env:"FSMTESTER_EXPECTED_LOOPS, default=0"`
}

// loadConfig reads .env when present, then the process environment.
// lookuper replaces the environment in tests.
func loadConfig(ctx context.Context, lookuper envconf.Lookuper) (AppConfig, error) {
	var c AppConfig
	if lookuper == nil {
		// a missing .env file is not an error
		_ = dotenv.Load()
		lookuper = envconf.OsLookuper()
	}
	if err := envconf.ProcessWith(ctx, &envconf.Config{Target: &c, Lookuper: lookuper}); err != nil {
		return c, fmt.Errorf("reading environment: %w", err)
	}
	return c, nil
}

// verifySettings are the effective settings of one verify run
type verifySettings struct {
	Dialect       string
	Final         string
	ExpectedLoops int
	ReportDir     string
}

// resolve merges the environment, the definition file and the flags.
// Flags win over the file, which wins over the environment.
func resolve(c AppConfig, doc *loader.Document, flags verifySettings, set map[string]bool) verifySettings {
	out := verifySettings{
		Dialect:       c.Dialect,
		ExpectedLoops: c.ExpectedLoops,
		ReportDir:     c.ReportDir,
	}

	if doc != nil {
		if doc.Dialect != "" {
			out.Dialect = doc.Dialect
		}
		if doc.ExpectedLoops != nil {
			out.ExpectedLoops = *doc.ExpectedLoops
		}
		out.Final = doc.Final
	}

	if set["dialect"] {
		out.Dialect = flags.Dialect
	}
	if set["loops"] {
		out.ExpectedLoops = flags.ExpectedLoops
	}
	if set["final"] {
		out.Final = flags.Final
	}
	if set["report-dir"] {
		out.ReportDir = flags.ReportDir
	}
	return out
}

func configureLogger(c AppConfig, w io.Writer) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: observers.ParseLogLevel(c.LogLevel).SlogLevel()}
	switch c.LogFormat {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("incorrect log format: %s. possible values: text, json", c.LogFormat)
	}
}
