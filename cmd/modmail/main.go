package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hanamilabs/discord-modmail/internal/app"
	"github.com/hanamilabs/discord-modmail/internal/config"
	"github.com/hanamilabs/discord-modmail/internal/discord"
	"github.com/hanamilabs/discord-modmail/internal/logging"
	"github.com/hanamilabs/discord-modmail/internal/notify"
	"github.com/hanamilabs/discord-modmail/internal/ports"
	"github.com/hanamilabs/discord-modmail/internal/service"
	"github.com/hanamilabs/discord-modmail/internal/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "modmail: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var envFile string
	flagSet := pflag.NewFlagSet("modmail", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flagSet.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: modmail [--env-file path] [serve|register-commands|check-config]")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	command := "serve"
	if flagSet.NArg() > 0 {
		command = flagSet.Arg(0)
	}

	switch command {
	case "serve":
		return runServe(cfg)
	case "register-commands":
		return runRegisterCommands(cfg)
	case "check-config":
		return runCheckConfig(cfg)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runServe(cfg config.Config) error {
	logger, logCloser, err := logging.New(cfg)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	var archive ports.TicketArchive
	if cfg.ArchiveEnabled {
		sqliteArchive, err := storage.OpenArchive(cfg.ArchivePath)
		if err != nil {
			return err
		}
		defer sqliteArchive.Close()
		if err := sqliteArchive.Migrate(context.Background()); err != nil {
			return err
		}
		archive = sqliteArchive
		logger.Info("ticket archive enabled", "path", cfg.ArchivePath)
	}

	session, err := discord.NewSession(cfg.BotToken, logger)
	if err != nil {
		return err
	}

	store := storage.NewMemoryTicketStore()
	format := notify.NewFormatter(nil)
	platform := discord.NewPlatform(session)
	lifecycle := service.NewLifecycleService(logger, platform, store, archive, format, cfg.GuildID, cfg.TicketCategoryName, cfg.CloseDelay)
	relay := service.NewRelayService(logger, platform, store, lifecycle, format)
	commands := service.NewCommandService(relay, format, cfg.CommandPrefix)
	gateway := discord.NewRuntime(session, logger, discord.RuntimeConfig{
		GuildID:      cfg.GuildID,
		PresenceText: cfg.PresenceText,
	}, lifecycle, relay, commands, format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serverErr := make(chan error, 1)
	var server *app.HealthServer
	if cfg.StatusAddr != "" {
		server = app.NewHealthServer(cfg.StatusAddr, logger, gateway, relay, store, archive)
		go func() {
			serverErr <- server.ListenAndServe()
		}()
	} else {
		logger.Info("status server disabled")
	}

	gatewayErr := make(chan error, 1)
	go func() {
		gatewayErr <- gateway.Run(ctx)
	}()

	logger.Info("modmail serving", "guild_id", cfg.GuildID, "category", cfg.TicketCategoryName, "prefix", cfg.CommandPrefix)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down modmail")
		runErr = <-gatewayErr
	case runErr = <-gatewayErr:
	case runErr = <-serverErr:
		cancel()
		<-gatewayErr
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown failed", "error", err)
		}
	}
	return runErr
}

func runRegisterCommands(cfg config.Config) error {
	logger := logging.NewWithWriter(os.Stderr, cfg.LogLevel)
	session, err := discord.NewSession(cfg.BotToken, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	registered, err := discord.RegisterCommands(ctx, session, cfg.GuildID)
	if err != nil {
		return err
	}
	for _, cmd := range registered {
		fmt.Printf("registered /%s (%s)\n", cmd.Name, cmd.ID)
	}
	return nil
}

func runCheckConfig(cfg config.Config) error {
	for _, line := range cfg.Redacted() {
		fmt.Println(line)
	}

	session, err := discord.NewSession(cfg.BotToken, logging.NewWithWriter(os.Stderr, cfg.LogLevel))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	me, err := discord.CheckConnectivity(ctx, session)
	if err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}
	fmt.Printf("token ok: logged in as %s (%s)\n", me.Username, me.ID)
	return nil
}

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}
