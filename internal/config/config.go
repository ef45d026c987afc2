package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BotToken           string
	GuildID            string
	TicketCategoryName string
	CommandPrefix      string
	CloseDelay         time.Duration
	PresenceText       string
	StatusAddr         string
	DataDir            string
	ArchiveEnabled     bool
	ArchivePath        string
	LogLevel           string
	LogFilePath        string
	LogMaxSizeMB       int
	LogMaxBackups      int
	LogMaxAgeDays      int
}

// Load reads envFile (when present) into the process environment and then
// builds the configuration from it. A missing env file is not an error.
func Load(envFile string) (Config, error) {
	if strings.TrimSpace(envFile) != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return LoadFromEnv()
}

func LoadFromEnv() (Config, error) {
	dataDir := defaultString(os.Getenv("DATA_DIR"), "./data")

	closeDelayMs, err := parseIntWithDefault("CLOSE_DELAY_MS", 1000)
	if err != nil {
		return Config{}, err
	}
	archiveEnabled, err := parseBoolWithDefault("ARCHIVE_ENABLED", false)
	if err != nil {
		return Config{}, err
	}

	statusAddr := "127.0.0.1:4098"
	if raw, ok := os.LookupEnv("STATUS_ADDR"); ok {
		statusAddr = strings.TrimSpace(raw)
	}

	cfg := Config{
		BotToken:           strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		GuildID:            strings.TrimSpace(os.Getenv("GUILD_ID")),
		TicketCategoryName: defaultString(os.Getenv("TICKET_CATEGORY_NAME"), "Tickets"),
		CommandPrefix:      defaultString(os.Getenv("COMMAND_PREFIX"), "!"),
		CloseDelay:         time.Duration(closeDelayMs) * time.Millisecond,
		PresenceText:       defaultString(os.Getenv("PRESENCE_TEXT"), "DM me for help!"),
		StatusAddr:         statusAddr,
		DataDir:            dataDir,
		ArchiveEnabled:     archiveEnabled,
		ArchivePath:        filepath.Join(dataDir, "tickets.db"),
		LogLevel:           defaultString(os.Getenv("LOG_LEVEL"), "info"),
		LogFilePath:        filepath.Join(dataDir, "logs", "modmail.log"),
		LogMaxSizeMB:       10,
		LogMaxBackups:      5,
		LogMaxAgeDays:      14,
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	if cfg.GuildID == "" {
		return errors.New("GUILD_ID is required")
	}
	if _, err := strconv.ParseUint(cfg.GuildID, 10, 64); err != nil {
		return fmt.Errorf("GUILD_ID must be a numeric snowflake: got %q", cfg.GuildID)
	}
	if strings.ContainsAny(cfg.CommandPrefix, " \t\n") {
		return fmt.Errorf("COMMAND_PREFIX must not contain whitespace: got %q", cfg.CommandPrefix)
	}
	if cfg.CloseDelay < 0 {
		return fmt.Errorf("CLOSE_DELAY_MS must be >= 0: got %d", cfg.CloseDelay.Milliseconds())
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error: got %q", cfg.LogLevel)
	}
	return nil
}

// Redacted returns the effective configuration as key/value pairs with
// secrets masked.
func (c Config) Redacted() []string {
	token := "(unset)"
	if c.BotToken != "" {
		token = "***"
	}
	statusAddr := c.StatusAddr
	if statusAddr == "" {
		statusAddr = "(disabled)"
	}
	return []string{
		"BOT_TOKEN=" + token,
		"GUILD_ID=" + c.GuildID,
		"TICKET_CATEGORY_NAME=" + c.TicketCategoryName,
		"COMMAND_PREFIX=" + c.CommandPrefix,
		"CLOSE_DELAY_MS=" + strconv.FormatInt(c.CloseDelay.Milliseconds(), 10),
		"PRESENCE_TEXT=" + c.PresenceText,
		"STATUS_ADDR=" + statusAddr,
		"DATA_DIR=" + c.DataDir,
		"ARCHIVE_ENABLED=" + strconv.FormatBool(c.ArchiveEnabled),
		"LOG_LEVEL=" + c.LogLevel,
	}
}

func parseIntWithDefault(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be integer: %w", key, err)
	}
	return v, nil
}

func parseBoolWithDefault(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be boolean: %w", key, err)
	}
	return v, nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
