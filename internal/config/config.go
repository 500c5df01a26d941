package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port             string
	AllowedOrigins   []string
	JWTSecret        string
	RequestBodyLimit int64
}

type DatabaseConfig struct {
	URL            string
	MigrateOnStart bool
}

type LogConfig struct {
	Level  string
	Format string
}

var ErrMissingDatabaseURL = errors.New("DATABASE_URL is not set")

// Load reads .env (if present) into the process environment, then resolves
// every setting from the environment with defaults applied.
func Load() (*Config, error) {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("REQUEST_BODY_LIMIT", 1<<20)
	v.SetDefault("MIGRATE_ON_START", false)

	// Fallback to PORT if SERVER_PORT is missing
	_ = v.BindEnv("SERVER_PORT", "SERVER_PORT", "PORT")
	return v
}

// FromViper maps a populated viper instance onto Config.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             v.GetString("SERVER_PORT"),
			AllowedOrigins:   splitList(v.GetString("ALLOWED_ORIGINS")),
			JWTSecret:        v.GetString("JWT_SECRET"),
			RequestBodyLimit: v.GetInt64("REQUEST_BODY_LIMIT"),
		},
		Database: DatabaseConfig{
			URL:            v.GetString("DATABASE_URL"),
			MigrateOnStart: v.GetBool("MIGRATE_ON_START"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}

	if cfg.Database.URL == "" {
		return nil, ErrMissingDatabaseURL
	}
	if cfg.Server.RequestBodyLimit <= 0 {
		return nil, fmt.Errorf("REQUEST_BODY_LIMIT must be positive, got %d", cfg.Server.RequestBodyLimit)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.Log.Format)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
