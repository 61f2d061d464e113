// ABOUTME: Logger setup for pncp-controller with JSON and colorized text handlers.
// ABOUTME: The color handler mirrors the console style of the rest of the CLI.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/pifleet/pncp/internal/config"
)

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(newColorHandler(level))
}

// colorHandler renders records as single colorized lines on stdout,
// matching the prompt loop's palette. Group names become dotted key
// prefixes rather than nested structures.
type colorHandler struct {
	mu     *sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

func newColorHandler(level slog.Level) *colorHandler {
	return &colorHandler{mu: &sync.Mutex{}, level: level}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

var levelTags = map[slog.Level]func() string{
	slog.LevelDebug: func() string { return color.MagentaString("DBG") },
	slog.LevelInfo:  func() string { return color.CyanString("INF") },
	slog.LevelWarn:  func() string { return color.YellowString("WRN") },
	slog.LevelError: func() string { return color.New(color.FgRed, color.Bold).Sprint("ERR") },
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	b.WriteString(color.HiBlackString(r.Time.Format("15:04:05.000")))
	b.WriteByte(' ')
	if tag, ok := levelTags[r.Level]; ok {
		b.WriteString(tag())
	} else {
		b.WriteString(r.Level.String())
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)

	// Handler attrs already carry their group prefix from WithAttrs.
	for _, a := range h.attrs {
		writeAttr(&b, a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, a, h.prefix)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprint(os.Stdout, b.String())
	return err
}

func writeAttr(b *strings.Builder, a slog.Attr, prefix string) {
	b.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	b.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		merged = append(merged, a)
	}
	return &colorHandler{mu: h.mu, level: h.level, attrs: merged, prefix: h.prefix}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &colorHandler{mu: h.mu, level: h.level, attrs: h.attrs, prefix: h.prefix + name + "."}
}
