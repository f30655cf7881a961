// logutil.go - Logging-Setup fuer Lethe
//
// Dieses Modul enthaelt:
// - LevelTrace: Log-Level unterhalb von Debug fuer sehr feine Ausgaben
// - NewLogger: Erstellt einen slog.Logger mit gekuerzten Source-Angaben
// - Trace/TraceContext: Hilfsfunktionen fuer Trace-Logging
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

const LevelTrace slog.Level = slog.LevelDebug - 4

// NewLogger erstellt einen Logger mit dem angegebenen Level.
// Bei Debug und darunter werden Quelldateien mitgeloggt, gekuerzt auf den Dateinamen.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if level, ok := attr.Value.Any().(slog.Level); ok && level == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

func TraceContext(ctx context.Context, msg string, args ...any) {
	slog.Log(ctx, LevelTrace, msg, args...)
}
