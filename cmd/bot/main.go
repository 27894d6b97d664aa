// cmd/bot/main.go
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"veridian-bot/internal/ai"
	"veridian-bot/internal/bot"
	"veridian-bot/internal/config"
	"veridian-bot/internal/database"
	"veridian-bot/internal/logging"
	"veridian-bot/internal/translate"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found")
	}

	cfg := config.Load()
	logging.Init(cfg.LogLevel)

	// Initialize database
	db, err := database.NewDB(cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	// Initialize provider, detector and translation service
	provider := ai.NewProvider(cfg.GroqAPIKeys, cfg.GroqBaseURL)
	detector := translate.NewDetector()
	translator := translate.NewService(db, provider)

	// Initialize lifecycle controller and bot handler
	controller := bot.NewController(db, detector, translator, provider)
	handler := bot.NewHandler(db, controller, provider)

	// Create Discord session
	discord, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		slog.Error("failed to create Discord session", "error", err)
		os.Exit(1)
	}

	handler.SetSession(discord)
	discord.AddHandler(handler.OnMessageCreate)
	discord.AddHandler(handler.OnGuildCreate)

	discord.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent

	if err := discord.Open(); err != nil {
		slog.Error("failed to open Discord connection", "error", err)
		os.Exit(1)
	}
	defer discord.Close()

	if err := handler.RegisterCommands(); err != nil {
		slog.Error("failed to register commands", "error", err)
	}

	slog.Info("Veridian support bot is running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
}
