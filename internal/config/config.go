package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel  string  `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string  `yaml:"log-format" env:"LOG_FORMAT" env-default:"json"`
	HTTP      HTTP    `yaml:"http"`
	Rooms     Rooms   `yaml:"rooms"`
	Storage   Storage `yaml:"storage"`
	Auth      Auth    `yaml:"auth"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type Rooms struct {
	Variant      string        `yaml:"variant" env:"ROOMS_VARIANT" env-default:"gomoku"`
	OutboxSize   int           `yaml:"outbox-size" env:"ROOMS_OUTBOX_SIZE" env-default:"64"`
	WriteTimeout time.Duration `yaml:"write-timeout" env:"ROOMS_WRITE_TIMEOUT" env-default:"5s"`
}

type Storage struct {
	Path string `yaml:"path" env:"DB_PATH" env-default:"results.db"`
}

type Auth struct {
	// Empty disables token verification; every connection is anonymous.
	JWTSecret string `yaml:"jwt-secret" env:"JWT_SECRET"`
}

// Load reads path when it exists and applies environment overrides. A
// missing file is not an error: the configuration then comes from the
// environment and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

// MustLoad - load configuration or panic.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Errorf("unable to load config: %w", err))
	}
	return cfg
}

// Level maps LogLevel onto slog. Unknown values fall back to info.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
