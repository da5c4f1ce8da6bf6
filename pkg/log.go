package udrone

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// defaultLogger builds the logger a Host uses when WithLogger is not
// supplied: colourised key=value output on a terminal, falling back to
// newline-delimited JSON otherwise, so piping a driver's output to a log
// collector doesn't carry ANSI escapes.
func defaultLogger() *slog.Logger {
	if isTerminal(os.Stderr) {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level: slog.LevelInfo,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
