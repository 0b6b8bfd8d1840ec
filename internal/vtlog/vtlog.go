// Package vtlog provides the structured logging every other package calls
// into: a global zerolog logger plus component-scoped child loggers, so
// `internal/worktreelifecycle`'s pipeline steps, `internal/apiserver`'s
// request handling, and `cmd`'s startup all log through the same
// configuration instead of each reaching for the standard library's `log`
// package independently.
package vtlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger, configured once by Init at startup.
var Logger zerolog.Logger

// Level names the severity threshold accepted by Config.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init's output format, destination, and level threshold.
type Config struct {
	Level  Level
	JSON   bool
	Output io.Writer
}

// Init configures the global Logger. Call once at process startup (cmd's
// main, or a test's TestMain); every package-level helper and WithX child
// logger reads from the resulting Logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSON {
		Logger = zerolog.New(output).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// WithComponent returns a child logger tagging every entry with which
// package emitted it ("worktreelifecycle", "apiserver", "pty", ...).
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithWorktree returns a child logger tagging every entry with the
// worktree name a pipeline or session belongs to.
func WithWorktree(name string) zerolog.Logger {
	return Logger.With().Str("worktree", name).Logger()
}

// WithPipeline returns a child logger tagging every entry with a
// pipeline run ID, so a W-Create's steps can be grepped out of a busy log.
func WithPipeline(pipelineID string) zerolog.Logger {
	return Logger.With().Str("pipeline_id", pipelineID).Logger()
}
