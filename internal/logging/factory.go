package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatSmart = "smart"
	FormatTint  = "tint"
)

// Options select and configure a console handler.
type Options struct {
	Format string
	Level  slog.Leveler

	LoggerName             string
	DefaultExtra           map[string]any
	MaxJSONDataToLog       int
	MaxVerboseOutputLength int

	// NoColor disables colors for the smart and tint formats even on a
	// terminal.
	NoColor bool
}

// NewHandler returns the handler for opts.Format. Human-readable formats
// only print the END edge of request events.
func NewHandler(out io.Writer, opts Options) (slog.Handler, error) {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}

	switch strings.ToLower(opts.Format) {
	case "", FormatJSON:
		return NewJSONHandler(out, JSONOptions{
			Level:        opts.Level,
			LoggerName:   opts.LoggerName,
			DefaultExtra: opts.DefaultExtra,
			MaxDataToLog: opts.MaxJSONDataToLog,
		}), nil
	case FormatSmart:
		smart := SmartOptions{
			Level:                  opts.Level,
			MaxVerboseOutputLength: opts.MaxVerboseOutputLength,
		}
		if opts.NoColor {
			color := false
			smart.Color = &color
		}
		return NewEdgeEndFilter(NewSmartHandler(out, smart)), nil
	case FormatTint:
		return NewEdgeEndFilter(tint.NewHandler(out, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.TimeOnly,
			NoColor:    opts.NoColor || !IsTerminal(out),
		})), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s (valid: json, smart, tint)", opts.Format)
	}
}

// ParseLevel parses a level name such as "debug" or "warn". An empty name
// is info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}
