// Package log configures the agent's structured logger: geth's
// log/slog-backed logger, formatted as text or JSON per the --log.format
// flag (text by default, colored when stdout is a terminal unless
// --log.color says otherwise), with level controlled by a CLI flag or
// environment variable.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

const (
	LevelFlagName  = "log.level"
	FormatFlagName = "log.format"
	ColorFlagName  = "log.color"
)

// CLIFlags returns the logging flags shared by every command, each
// optionally overridable via an envPrefix_LOG_* environment variable.
func CLIFlags(envPrefix string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    LevelFlagName,
			Usage:   "Log level: trace, debug, info, warn, error, crit",
			Value:   "info",
			EnvVars: []string{envPrefix + "_LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    FormatFlagName,
			Usage:   "Log format: text, json",
			Value:   "text",
			EnvVars: []string{envPrefix + "_LOG_FORMAT"},
		},
		&cli.BoolFlag{
			Name:    ColorFlagName,
			Usage:   "Color the log output, if format is text. Defaults to auto-detecting a terminal",
			EnvVars: []string{envPrefix + "_LOG_COLOR"},
		},
	}
}

// Config is the resolved set of logging options read from CLIFlags.
type Config struct {
	Level  string
	Format string
	Color  bool
}

// ReadCLIConfig resolves Config from a parsed cli.Context.
func ReadCLIConfig(ctx *cli.Context) Config {
	color := ctx.Bool(ColorFlagName)
	if !ctx.IsSet(ColorFlagName) {
		color = isatty.IsTerminal(os.Stdout.Fd())
	}
	return Config{
		Level:  ctx.String(LevelFlagName),
		Format: ctx.String(FormatFlagName),
		Color:  color,
	}
}

// AppOut returns the writer log output should go to; a small indirection
// so tests can swap it out.
func AppOut(_ *cli.Context) io.Writer {
	return os.Stdout
}

// levelFromString maps the handful of levels this agent accepts onto
// slog's level scale, falling back to Info on anything unrecognized.
func levelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "crit", "critical":
		return log.LevelCrit
	default:
		return slog.LevelInfo
	}
}

// levelFilterHandler wraps a slog.Handler, dropping records below min.
type levelFilterHandler struct {
	min     slog.Level
	handler slog.Handler
}

func (h *levelFilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.handler.Enabled(ctx, level)
}

func (h *levelFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelFilterHandler{min: h.min, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelFilterHandler) WithGroup(name string) slog.Handler {
	return &levelFilterHandler{min: h.min, handler: h.handler.WithGroup(name)}
}

// NewLogger builds a root logger writing to w per cfg.
func NewLogger(w io.Writer, cfg Config) log.Logger {
	level := levelFromString(cfg.Level)

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = log.JSONHandler(w)
	} else {
		handler = log.NewTerminalHandler(w, cfg.Color)
	}

	return log.NewLogger(&levelFilterHandler{min: level, handler: handler})
}

// SetupDefaults installs a sensible root logger before flags have been
// parsed, so early startup logging (flag parse errors, config load
// failures) is still readable.
func SetupDefaults() {
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stdout, isatty.IsTerminal(os.Stdout.Fd()))))
}
