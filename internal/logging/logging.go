// Package logging builds the slog logger shared by the CLI and its packages.
//
// Diagnostics go to stderr so command output on stdout stays parseable.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format is the log output encoding
type Format int

const (
	// FormatText is logfmt-style output for terminals. This is the default.
	FormatText Format = iota
	// FormatJSON emits one JSON object per record.
	FormatJSON
)

// ParseFormat maps a --log-format value to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q (expected text or json)", s)
	}
}

type config struct {
	format Format
	level  slog.Leveler
	output io.Writer
}

// Option configures New
type Option func(*config)

// WithFormat sets the output format
func WithFormat(f Format) Option {
	return func(c *config) {
		c.format = f
	}
}

// WithLevel sets the minimum level. Pass a *slog.LevelVar to change it later.
func WithLevel(l slog.Leveler) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithOutput sets the destination writer
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		c.output = w
	}
}

// New creates a logger. Defaults: text format, WARN level, stderr.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		format: FormatText,
		level:  slog.LevelWarn,
		output: os.Stderr,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       cfg.level,
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler
	switch cfg.format {
	case FormatJSON:
		handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	default:
		handler = slog.NewTextHandler(cfg.output, handlerOpts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.Format(time.RFC3339))
		}
	}
	return a
}
