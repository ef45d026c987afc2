package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hanamilabs/discord-modmail/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger: JSON records to stdout and to a rotating
// file under the data directory.
func New(cfg config.Config) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.LogFilePath), 0o755); err != nil {
		return nil, nil, err
	}

	rotatingWriter := &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}

	writer := io.MultiWriter(os.Stdout, rotatingWriter)
	return NewWithWriter(writer, cfg.LogLevel), rotatingWriter, nil
}

func NewWithWriter(w io.Writer, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(handler).With("service", "modmail")
}

func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
