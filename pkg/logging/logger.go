// Package logging provides structured logging configuration using zerolog,
// request-scoped loggers carried in a context, and the Gin request logger.
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultService names the process in every log line.
const DefaultService = "manga-catalog"

// LogLevel is a level name accepted by the level parser.
type LogLevel string

const (
	LevelTrace LogLevel = "trace"
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	Level   LogLevel
	Pretty  bool
	Service string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON output at info level on stderr.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Service: DefaultService,
		Output:  os.Stderr,
	}
}

// New builds a logger from cfg. The level is set on the logger itself, so
// children created with With inherit it. Trace events also need the zerolog
// global level lowered, which Setup does.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	logger := zerolog.New(out).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.Service != "" {
		logger = logger.With().Str(FieldService, cfg.Service).Logger()
	}
	return logger
}

// Setup installs the logger built from cfg as the global logger and routes
// the standard library log package through it, so net/http and gin
// diagnostics come out as structured lines tagged source=stdlog.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	logger := New(cfg)
	log.Logger = logger

	stdlog.SetFlags(0)
	stdlog.SetOutput(logger.With().Str(FieldSource, "stdlog").Logger())

	return logger
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
