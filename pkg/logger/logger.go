// Package logger configures the process-wide zerolog logger.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets the global level and output. Unknown levels fall back to info; pretty
// switches to the console writer for local runs.
func Init(level string, pretty bool) zerolog.Logger {
	return InitWriter(os.Stderr, level, pretty)
}

func InitWriter(w io.Writer, level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return log.Logger
}

// Slog returns a slog.Logger that writes through zl, for libraries that only accept slog.
func Slog(zl zerolog.Logger) *slog.Logger {
	return slog.New(&slogBridge{zl: zl})
}

type slogBridge struct {
	zl    zerolog.Logger
	attrs []slog.Attr
	group string
}

func (b *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return b.zl.GetLevel() <= zerologLevel(level) && zerolog.GlobalLevel() <= zerologLevel(level)
}

func (b *slogBridge) Handle(_ context.Context, r slog.Record) error {
	ev := b.zl.WithLevel(zerologLevel(r.Level))
	for _, a := range b.attrs {
		ev = ev.Interface(b.key(a.Key), a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		ev = ev.Interface(b.key(a.Key), a.Value.Any())
		return true
	})
	ev.Msg(r.Message)
	return nil
}

func (b *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *b
	cp.attrs = append(append([]slog.Attr(nil), b.attrs...), attrs...)
	return &cp
}

func (b *slogBridge) WithGroup(name string) slog.Handler {
	cp := *b
	cp.group = b.key(name)
	return &cp
}

func (b *slogBridge) key(k string) string {
	if b.group == "" {
		return k
	}
	return b.group + "." + k
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
