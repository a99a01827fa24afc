package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config captures the runtime configuration for the VibgyorChat client core.
type Config struct {
	APIBaseURL    string
	SocketBaseURL string
	FrontendURL   string
	AppName       string
	LogLevel      string

	StatePath string

	MessagePageSize int
	ReconnectDelay  time.Duration
	RequestTimeout  time.Duration
	TypingTimeout   time.Duration
	SearchDebounce  time.Duration
	UserCacheTTL    time.Duration
}

// Load reads configuration from environment variables, applying sensible
// defaults for local development while allowing overrides through environment
// variables. A .env file in the working directory is honored when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		APIBaseURL:      getString("VIBGYOR_API_BASE_URL", "http://localhost:8000"),
		SocketBaseURL:   getString("VIBGYOR_SOCKET_BASE_URL", "ws://localhost:8000"),
		FrontendURL:     getString("VIBGYOR_FRONTEND_URL", "http://localhost:3000"),
		AppName:         getString("VIBGYOR_APP_NAME", "VibgyorChat"),
		LogLevel:        getString("VIBGYOR_LOG_LEVEL", "info"),
		StatePath:       getString("VIBGYOR_STATE_PATH", defaultStatePath()),
		MessagePageSize: getInt("VIBGYOR_MESSAGE_PAGE_SIZE", 30),
		ReconnectDelay:  getDuration("VIBGYOR_RECONNECT_DELAY", 2*time.Second),
		RequestTimeout:  getDuration("VIBGYOR_REQUEST_TIMEOUT", 20*time.Second),
		TypingTimeout:   getDuration("VIBGYOR_TYPING_TIMEOUT", 3*time.Second),
		SearchDebounce:  getDuration("VIBGYOR_SEARCH_DEBOUNCE", 500*time.Millisecond),
		UserCacheTTL:    getDuration("VIBGYOR_USER_CACHE_TTL", 15*time.Minute),
	}

	return cfg, nil
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vibgyorchat/state.json"
	}
	return home + "/.vibgyorchat/state.json"
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
