package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the web front end and the CLI.
type Config struct {
	ListenAddr        string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration
	BackendURL        string
	BackendTimeout    time.Duration
	DisconnectTimeout time.Duration
	RunSteps          int

	LogLevel  string
	LogPretty bool

	DatabaseURL string

	TokenKey             string
	OperatorPasswordHash string
	SecureCookie         bool
	RateLimit            float64
	RateBurst            int

	// EnvFileLoaded reports whether a .env file was read.
	EnvFileLoaded bool
}

// Load reads .env files (when present) and then the environment.
func Load(files ...string) (Config, error) {
	loaded, err := loadEnvFiles(files...)
	if err != nil {
		return Config{}, err
	}
	cfg := FromEnv()
	cfg.EnvFileLoaded = loaded
	return cfg, nil
}

func loadEnvFiles(files ...string) (bool, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	loaded := false
	for _, f := range files {
		err := godotenv.Load(f)
		switch {
		case err == nil:
			loaded = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return loaded, err
		}
	}
	return loaded, nil
}

// FromEnv builds the configuration from environment variables with defaults.
func FromEnv() Config {
	return Config{
		ListenAddr:           getEnv("FORCEVIEW_LISTEN_ADDR", ":8080"),
		ReadTimeout:          time.Duration(getEnvInt("FORCEVIEW_READ_TIMEOUT_SEC", 30)) * time.Second,
		WriteTimeout:         time.Duration(getEnvInt("FORCEVIEW_WRITE_TIMEOUT_SEC", 120)) * time.Second,
		ShutdownTimeout:      time.Duration(getEnvInt("FORCEVIEW_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		BackendURL:           getEnv("FORCEVIEW_BACKEND_URL", "http://127.0.0.1:8000"),
		BackendTimeout:       time.Duration(getEnvInt("FORCEVIEW_BACKEND_TIMEOUT_SEC", 30)) * time.Second,
		DisconnectTimeout:    time.Duration(getEnvInt("FORCEVIEW_DISCONNECT_TIMEOUT_MS", 500)) * time.Millisecond,
		RunSteps:             getEnvInt("FORCEVIEW_RUN_STEPS", 10),
		LogLevel:             getEnv("FORCEVIEW_LOG_LEVEL", "info"),
		LogPretty:            getEnvBool("FORCEVIEW_LOG_PRETTY", false),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		TokenKey:             getEnv("TOKEN_KEY", ""),
		OperatorPasswordHash: getEnv("FORCEVIEW_OPERATOR_PASSWORD_HASH", ""),
		SecureCookie:         getEnvBool("FORCEVIEW_SECURE_COOKIE", false),
		RateLimit:            getEnvFloat("FORCEVIEW_RATE_LIMIT", 5),
		RateBurst:            getEnvInt("FORCEVIEW_RATE_BURST", 10),
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
