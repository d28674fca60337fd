package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/micro-ha/mikrotik-router/internal/model"
)

const (
	defaultHTTPAddr    = ":8099"
	defaultDBPath      = "/data/mikrotik_router.db"
	defaultLockTimeout = 10 * time.Second
)

// Config stores runtime settings loaded from an optional YAML file and
// environment variables. Environment values win.
type Config struct {
	HTTPAddr    string
	DBPath      string
	OUIPath     string
	LogLevel    slog.Level
	LockTimeout time.Duration
	Router      model.RouterConfig
}

type fileConfig struct {
	HTTPAddr    string             `yaml:"http_addr"`
	DBPath      string             `yaml:"db_path"`
	OUIPath     string             `yaml:"oui_path"`
	LogLevel    string             `yaml:"log_level"`
	LockTimeout string             `yaml:"lock_timeout"`
	Router      model.RouterConfig `yaml:"router"`
}

// Load reads path when non-empty and applies environment overrides.
func Load(path string) (Config, error) {
	file := fileConfig{}
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg := Config{
		HTTPAddr:    getenv("HTTP_ADDR", orDefault(file.HTTPAddr, defaultHTTPAddr)),
		DBPath:      getenv("DB_PATH", orDefault(file.DBPath, defaultDBPath)),
		OUIPath:     getenv("OUI_PATH", file.OUIPath),
		LogLevel:    parseLogLevel(getenv("LOG_LEVEL", orDefault(file.LogLevel, "info"))),
		LockTimeout: parseDuration("LOCK_TIMEOUT", fileDuration(file.LockTimeout, defaultLockTimeout)),
		Router:      routerFromEnv(file.Router),
	}
	if strings.TrimSpace(cfg.Router.Host) == "" {
		return Config{}, errors.New("router host is required (router.host or ROUTER_HOST)")
	}
	return cfg, nil
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func routerFromEnv(cfg model.RouterConfig) model.RouterConfig {
	cfg.Host = getenv("ROUTER_HOST", cfg.Host)
	cfg.Port = parseInt("ROUTER_PORT", cfg.Port)
	cfg.Username = getenv("ROUTER_USERNAME", cfg.Username)
	cfg.Password = getenv("ROUTER_PASSWORD", cfg.Password)
	cfg.UseTLS = parseBool("ROUTER_SSL", cfg.UseTLS)
	cfg.VerifyTLS = parseBool("ROUTER_VERIFY_TLS", cfg.VerifyTLS)
	cfg.LoginMethod = getenv("ROUTER_LOGIN_METHOD", cfg.LoginMethod)
	cfg.TimeoutSec = int(parseDuration("ROUTER_TIMEOUT", cfg.Timeout()) / time.Second)

	cfg.ScanIntervalSec = int(parseDuration("SCAN_INTERVAL", cfg.ScanInterval()) / time.Second)
	cfg.Unit = getenv("UNIT_OF_MEASUREMENT", cfg.DisplayUnit())
	trackARP := parseBool("TRACK_ARP", cfg.ARPTracking())
	cfg.TrackARP = &trackARP
	cfg.TrackHosts = parseBool("TRACK_HOSTS", cfg.TrackHosts)
	cfg.TrackHostsTimeoutSec = int(parseDuration("TRACK_HOSTS_TIMEOUT", cfg.TrackHostsTimeout()) / time.Second)
	cfg.TrackAccounting = parseBool("TRACK_ACCOUNTING", cfg.TrackAccounting)
	return cfg
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func fileDuration(raw string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return fileDuration(raw, fallback)
}

func parseBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := cast.ToBoolE(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func parseInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := cast.ToIntE(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
