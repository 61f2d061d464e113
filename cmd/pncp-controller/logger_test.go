// ABOUTME: Tests for the colorized slog handler used by the serve console.
// ABOUTME: Covers level gating and the dotted group-prefix attr rendering.

package main

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestColorHandlerEnabled(t *testing.T) {
	h := newColorHandler(slog.LevelWarn)
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestColorHandlerGroupPrefix(t *testing.T) {
	h := newColorHandler(slog.LevelDebug)

	grouped := h.WithGroup("session").WithAttrs([]slog.Attr{slog.String("remote", "10.0.0.1")})
	gh, ok := grouped.(*colorHandler)
	require.True(t, ok)

	require.Len(t, gh.attrs, 1)
	assert.Equal(t, "session.remote", gh.attrs[0].Key)
	assert.Equal(t, "session.", gh.prefix)

	// Empty group names are a no-op per the slog contract.
	assert.Same(t, gh, gh.WithGroup("").(*colorHandler))
}

func TestColorHandlerWithAttrsIsCopy(t *testing.T) {
	h := newColorHandler(slog.LevelInfo)
	h1 := h.WithAttrs([]slog.Attr{slog.String("a", "1")}).(*colorHandler)
	h2 := h1.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*colorHandler)

	assert.Empty(t, h.attrs)
	assert.Len(t, h1.attrs, 1)
	assert.Len(t, h2.attrs, 2)
}

func TestWriteAttr(t *testing.T) {
	var b strings.Builder
	writeAttr(&b, slog.String("agent_id", "pi-1"), "")
	writeAttr(&b, slog.Int("rc", 0), "dispatch.")
	assert.Equal(t, " agent_id=pi-1 dispatch.rc=0", b.String())
}
