// internal/config/config.go
package config

import (
	"os"
	"strconv"
)

type Config struct {
	DiscordToken string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     int

	// GroqAPIKeys is the ordered credential rotation; empty slots are
	// dropped at provider construction.
	GroqAPIKeys []string
	GroqBaseURL string

	LogLevel string
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func Load() Config {
	port, err := strconv.Atoi(env("DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return Config{
		DiscordToken: os.Getenv("DISCORD_TOKEN"),
		DBHost:       env("DB_HOST", "localhost"),
		DBUser:       env("DB_USER", "veridian"),
		DBPassword:   os.Getenv("DB_PASSWORD"),
		DBName:       env("DB_NAME", "veridian"),
		DBPort:       port,
		GroqAPIKeys: []string{
			os.Getenv("GROQ_API_KEY_1"),
			os.Getenv("GROQ_API_KEY_2"),
			os.Getenv("GROQ_API_KEY_3"),
			os.Getenv("GROQ_API_KEY_4"),
		},
		GroqBaseURL: env("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		LogLevel:    env("LOG_LEVEL", "info"),
	}
}
