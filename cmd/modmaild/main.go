package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"

	"modmaild/internal/reconcile"
	"modmaild/pkg/api"
	"modmaild/pkg/bot"
	"modmaild/pkg/config"
	"modmaild/pkg/logger"
	"modmaild/pkg/mail"
	"modmaild/pkg/store"
	"modmaild/pkg/transport"
)

// set via ldflags during release builds
var version = "dev"

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.InitWithLevel(cfg.Logging.Level)

	// flags win over config/env when explicitly set
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	dbPath := cfg.Storage.DBPath
	if dbPath == "" || setFlags["db"] {
		dbPath = dbVal
	}

	if cfg.Discord.Token == "" {
		log.Fatalf("discord token required (discord.token or MODMAILD_DISCORD_TOKEN)")
	}
	if cfg.Discord.StaffGuildID == "" || cfg.Discord.CategoryID == "" {
		log.Fatalf("discord.staff_guild_id and discord.category_id are required")
	}

	if err := store.Open(dbPath); err != nil {
		log.Fatalf("failed to open pebble at %s: %v", dbPath, err)
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		log.Fatalf("failed to create discord session: %v", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	tr := transport.NewDiscord(session, cfg.Discord.StaffGuildID, cfg.Discord.MainGuildID)
	mgr := mail.New(tr, cfg.Discord.CategoryID)
	b := bot.New(session, mgr, cfg.Discord.StaffGuildID, cfg.Discord.CategoryID)
	b.Register()

	if err := session.Open(); err != nil {
		log.Fatalf("failed to open discord session: %v", err)
	}
	if err := b.RegisterCommands(); err != nil {
		log.Fatalf("failed to register commands: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Reconcile.Enabled {
		cancel, err := reconcile.Start(ctx, tr, mgr, cfg.Reconcile.Cron)
		if err != nil {
			log.Fatalf("failed to start reconcile sweep: %v", err)
		}
		defer cancel()
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: api.Handler(cfg.API.RateLimit.RPS, cfg.API.RateLimit.Burst),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http_server_failed", "addr", addr, "error", err)
			stop()
		}
	}()
	logger.Info("modmaild_started", "addr", addr, "db", dbPath, "version", version)

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	}
	if err := session.Close(); err != nil {
		logger.Error("discord_close_failed", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}
