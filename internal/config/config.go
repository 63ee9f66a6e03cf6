package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Storage drivers selectable through STORAGE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the application's configuration. The enabled measurement
// kinds come from the command line; everything else from the environment.
type Config struct {
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresSSLMode  string
	MaxConns         int

	HTTPPort      string
	StorageDriver string
	StorageReset  bool
	LogLevel      string
	LogFormat     string
	CORSOrigins   []string

	Kinds []string
}

// LoadConfig loads the configuration from environment variables. args are
// the measurement kinds to enable for this run.
func LoadConfig(args []string) (Config, error) {
	//load env variables
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, relying on system environment variables")
	}

	cfg := Config{
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     envOrDefault("POSTGRES_PORT", "5432"),
		PostgresSSLMode:  envOrDefault("POSTGRES_SSLMODE", "disable"),
		HTTPPort:         envOrDefault("HTTP_PORT", "8080"),
		StorageDriver:    envOrDefault("STORAGE_DRIVER", DriverPostgres),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "text"),
		CORSOrigins:      splitList(envOrDefault("CORS_ORIGINS", "*")),
		Kinds:            args,
	}

	if len(cfg.Kinds) == 0 {
		return Config{}, fmt.Errorf("at least one measurement kind must be given as a command line argument")
	}

	if raw := os.Getenv("STORAGE_RESET"); raw != "" {
		reset, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("STORAGE_RESET must be a boolean, got %q", raw)
		}
		cfg.StorageReset = reset
	}

	// The pool is sized off the enabled kind count so concurrent writers
	// queue on the pool instead of overwhelming the database.
	cfg.MaxConns = len(cfg.Kinds) + 2
	if raw := os.Getenv("POSTGRES_MAX_CONNS"); raw != "" {
		maxConns, err := strconv.Atoi(raw)
		if err != nil || maxConns <= 0 {
			return Config{}, fmt.Errorf("POSTGRES_MAX_CONNS must be a positive integer, got %q", raw)
		}
		cfg.MaxConns = maxConns
	}

	switch cfg.StorageDriver {
	case DriverPostgres:
		if cfg.PostgresDB == "" || cfg.PostgresUser == "" || cfg.PostgresPassword == "" || cfg.PostgresHost == "" {
			return Config{}, fmt.Errorf("postgres configuration is incomplete. Please set POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_HOST environment variables")
		}
	case DriverMemory:
	default:
		return Config{}, fmt.Errorf("unsupported STORAGE_DRIVER %q (want %s or %s)", cfg.StorageDriver, DriverPostgres, DriverMemory)
	}

	return cfg, nil
}

// DSN renders the Postgres connection string for lib/pq.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
