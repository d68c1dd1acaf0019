package setup

import (
	"io"
	"log/slog"
	"os"

	"github.com/mikhailv/iterdns/internal/log"
)

func Logger(debug bool) *slog.Logger {
	return NewLogger(os.Stdout, debug)
}

func NewLogger(w io.Writer, debug bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	return slog.New(log.NewPrefixHandler(handler))
}
