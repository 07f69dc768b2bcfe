package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Upload mode selects which Telegram transport stores files.
const (
	ModeBot  = "bot"  // Bot API, 50 MB document ceiling
	ModeUser = "user" // MTProto user session, ~2 GB ceiling
)

// ErrIncomplete indicates the selected mode is missing required credentials.
var ErrIncomplete = errors.New("incomplete configuration")

// Config holds all runtime settings, loaded from the environment.
type Config struct {
	Port    string
	BaseURL string

	DataDir     string
	DBPath      string
	DatabaseURL string

	// Auth: plaintext password or a bcrypt hash of it. One must be set.
	APIPassword     string
	APIPasswordHash string

	// Telegram transport selection and credentials
	UploadMode  string
	BotToken    string
	ChatID      string // destination channel/group: numeric id, @handle, or invite link
	APIID       int
	APIHash     string
	SessionFile string

	// Timeouts and limits
	UploadTimeout  time.Duration // global budget for receiving + sending one file
	HTTPTimeout    time.Duration // Bot API HTTP client timeout
	BotUploadLimit int64         // bytes; applied pre-send in bot mode

	LogLevel string
}

// Load reads configuration from the environment and validates it for the
// selected upload mode.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		BaseURL:         os.Getenv("BASE_URL"),
		DataDir:         getenv("DATA_DIR", "./data"),
		DBPath:          getenv("DB_PATH", "./data/tgvault.db"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		APIPassword:     os.Getenv("API_PASSWORD"),
		APIPasswordHash: os.Getenv("API_PASSWORD_HASH"),
		UploadMode:      getenv("TELEGRAM_UPLOAD_MODE", ModeBot),
		BotToken:        os.Getenv("TELEGRAM_BOT_TOKEN"),
		ChatID:          os.Getenv("TG_CHAT_ID"),
		APIHash:         os.Getenv("TG_API_HASH"),
		SessionFile:     getenv("TG_SESSION_FILE", "./data/tg.session"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
	}

	cfg.APIID = getenvInt("TG_API_ID", 0)
	cfg.UploadTimeout = time.Duration(getenvInt("UPLOAD_TIMEOUT_SECONDS", 1800)) * time.Second
	cfg.HTTPTimeout = time.Duration(getenvInt("TELEGRAM_HTTP_TIMEOUT_SECONDS", 300)) * time.Second
	cfg.BotUploadLimit = int64(getenvInt("MAX_BOT_UPLOAD_MB", 50)) << 20

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected mode has everything it needs. Failures
// here are fatal at startup; nothing is re-checked per request.
func (c *Config) Validate() error {
	if c.APIPassword == "" && c.APIPasswordHash == "" {
		return fmt.Errorf("%w: API_PASSWORD or API_PASSWORD_HASH is required", ErrIncomplete)
	}

	switch c.UploadMode {
	case ModeBot:
		if c.BotToken == "" || c.ChatID == "" {
			return fmt.Errorf("%w: bot mode requires TELEGRAM_BOT_TOKEN and TG_CHAT_ID", ErrIncomplete)
		}
	case ModeUser:
		if c.APIID == 0 || c.APIHash == "" || c.SessionFile == "" || c.ChatID == "" {
			return fmt.Errorf("%w: user mode requires TG_API_ID, TG_API_HASH, TG_SESSION_FILE and TG_CHAT_ID", ErrIncomplete)
		}
	default:
		return fmt.Errorf("%w: unknown TELEGRAM_UPLOAD_MODE %q", ErrIncomplete, c.UploadMode)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
