package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// installLogger replaces discordgo's package logger. It is process-wide.
func installLogger(logger *slog.Logger) {
	discordgo.Logger = func(msgL, _ int, format string, a ...interface{}) {
		logger.Log(context.Background(), slogLevel(msgL), fmt.Sprintf(format, a...), "component", "discordgo")
	}
}

func slogLevel(msgL int) slog.Level {
	switch msgL {
	case discordgo.LogError:
		return slog.LevelError
	case discordgo.LogWarning:
		return slog.LevelWarn
	case discordgo.LogInformational:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
