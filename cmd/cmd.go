// Package cmd wires CLI flags, configuration, logging, and metrics into a
// runnable App, the same Flags/NewApp/Run shape the grounding source's
// agent/cmd package uses for its own entrypoint, narrowed to this client's
// single positional torrent-or-magnet argument.
package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ivanjermakov/biter/config"
	"github.com/ivanjermakov/biter/errs"
	"github.com/ivanjermakov/biter/metrics"
	"github.com/ivanjermakov/biter/supervisor"
	"github.com/ivanjermakov/biter/torlib"
	"github.com/ivanjermakov/biter/utils/configutil"
)

// logLevelEnv is this client's renaming of the Rust original's RUST_LOG:
// there is no idiomatic Go equivalent of that exact variable, so the
// client reads its own instead.
const logLevelEnv = "BITER_LOG"

// Flags holds the parsed CLI flags, plus the one required positional
// argument (a torrent file path or a magnet URI).
type Flags struct {
	Target     string
	Port       int
	ConfigFile string
	LogLevel   string
}

// ParseFlags parses os.Args into Flags. It calls flag.Parse internally and
// exits via the flag package's usage error handling on malformed input.
func ParseFlags() (*Flags, error) {
	var f Flags
	flag.IntVar(&f.Port, "port", config.DefaultPort, "TCP port advertised to trackers")
	flag.StringVar(&f.ConfigFile, "config", "", "optional YAML configuration file path")
	flag.StringVar(&f.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides "+logLevelEnv)
	flag.Parse()

	if flag.NArg() != 1 {
		return nil, &errs.ConfigError{Reason: "usage: biter <torrent-file | magnet-uri>"}
	}
	f.Target = flag.Arg(0)
	return &f, nil
}

// App bundles everything a run needs once flags and configuration are
// resolved: logger, metrics scope, and the supervisor that drives the
// torrent to completion.
type App struct {
	logger      *zap.Logger
	metricsDone func()
	supervisor  *supervisor.Supervisor
}

// NewApp resolves flags into a Config, constructs logging and metrics, and
// parses the CLI target (torrent file or magnet URI) into a supervisor.
func NewApp(f *Flags) (*App, error) {
	var cfg config.Config
	if f.ConfigFile != "" {
		if err := configutil.Load(f.ConfigFile, &cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	if f.Port != config.DefaultPort {
		cfg.Port = f.Port
	}
	cfg.ApplyDefaults()

	logger, err := newLogger(resolveLogLevel(f.LogLevel))
	if err != nil {
		return nil, fmt.Errorf("construct logger: %w", err)
	}
	sugar := logger.Sugar()

	scope, closeMetrics := metrics.New()

	target, err := parseTarget(f.Target, sugar)
	if err != nil {
		closeMetrics()
		return nil, err
	}

	sp, err := supervisor.New(cfg, target, sugar, scope, clock.New())
	if err != nil {
		closeMetrics()
		return nil, err
	}

	return &App{logger: logger, metricsDone: closeMetrics, supervisor: sp}, nil
}

// Supervisor exposes the constructed supervisor so Run (in main.go) can
// drive it under a context the caller controls.
func (a *App) Supervisor() *supervisor.Supervisor { return a.supervisor }

// Close releases the app's logger and metrics resources. Safe to call once,
// after the supervisor's run has returned.
func (a *App) Close() {
	a.metricsDone()
	_ = a.logger.Sync()
}

func parseTarget(target string, logger *zap.SugaredLogger) (supervisor.Target, error) {
	if strings.HasPrefix(target, "magnet:?") {
		m, err := torlib.ParseMagnet(target)
		if err != nil {
			return supervisor.Target{}, &errs.ConfigError{Reason: fmt.Sprintf("parse magnet uri: %s", err)}
		}
		return supervisor.Target{Magnet: m}, nil
	}

	f, err := os.Open(target)
	if err != nil {
		return supervisor.Target{}, &errs.ConfigError{Reason: fmt.Sprintf("open torrent file: %s", err)}
	}
	defer f.Close()

	mi, err := torlib.ParseMetaInfoReader(f)
	if err != nil {
		return supervisor.Target{}, &errs.ConfigError{Reason: fmt.Sprintf("parse torrent file: %s", err)}
	}
	if mi.PieceCountMismatch() {
		logger.Warnw("declared piece hash count does not match file lengths, proceeding with hash list as authoritative",
			"numPieces", mi.Info.NumPieces(), "expectedNumPieces", mi.Info.ExpectedNumPieces())
	}
	return supervisor.Target{MetaInfo: mi}, nil
}

func resolveLogLevel(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(logLevelEnv); env != "" {
		return env
	}
	return "info"
}

func newLogger(levelName string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("invalid log level %q: %s", levelName, err)}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}
