package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything both binaries need: the reference backend's server
// settings and the sync engine's tuning knobs.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisURL string

	ServerPort string

	JWTSecret string

	// Sync engine knobs
	BackoffBase          time.Duration // first reconnect delay
	BackoffCap           time.Duration // ceiling for the exponential delay
	MaxReconnectAttempts int           // transitions to Failed after this many
	ConfirmTimeout       time.Duration // pending entry treated as failed after this
	MatchWindow          time.Duration // heuristic snapshot-match window
	PollInterval         time.Duration // pull fallback cadence while disconnected
	LikeDebounce         time.Duration // rapid like toggles collapse within this
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RedisURL: redisURL,

		ServerPort: serverPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		BackoffBase:          envDuration("SYNC_BACKOFF_BASE", time.Second),
		BackoffCap:           envDuration("SYNC_BACKOFF_CAP", 30*time.Second),
		MaxReconnectAttempts: envInt("SYNC_MAX_RECONNECT_ATTEMPTS", 5),
		ConfirmTimeout:       envDuration("SYNC_CONFIRM_TIMEOUT", 15*time.Second),
		MatchWindow:          envDuration("SYNC_MATCH_WINDOW", 10*time.Second),
		PollInterval:         envDuration("SYNC_POLL_INTERVAL", 10*time.Second),
		LikeDebounce:         envDuration("SYNC_LIKE_DEBOUNCE", 300*time.Millisecond),
	}, nil
}

// envDuration reads a duration from the environment, falling back to def on
// absence or parse failure.
func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// envInt reads a positive int from the environment.
func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
