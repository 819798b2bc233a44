package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/slotbook/internal/logger"
	"github.com/joho/godotenv"
)

const (
	DefaultBookingConfig    = "config/config.ini"
	ProductionBookingConfig = "/run/secrets/booking_config"
)

// Config is the process environment. Booking parameters live in the INI file
// (see Load); this only says where things are and how to run.
type Config struct {
	BookingConfigPath string
	Production        bool

	DatabaseURL string
	RedisAddr   string
	CredEncKey  []byte

	ListenAddr     string
	CookieHashKey  []byte
	CookieBlockKey []byte

	RunTimeout time.Duration
	Log        logger.Config
}

func FromEnv() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Production:  envBool("PRODUCTION"),
		DatabaseURL: getenv("DATABASE_URL", "sqlite://slotbook.db"),
		RedisAddr:   strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		ListenAddr:  getenv("LISTEN_ADDR", ""),
	}
	cfg.BookingConfigPath = getenv("BOOKING_CONFIG", "")
	if cfg.BookingConfigPath == "" {
		cfg.BookingConfigPath = DefaultBookingConfig
		if cfg.Production {
			cfg.BookingConfigPath = ProductionBookingConfig
		}
	}

	mins, err := strconv.Atoi(getenv("RUN_TIMEOUT_MINUTES", "30"))
	if err != nil || mins < 1 {
		return Config{}, fmt.Errorf("invalid RUN_TIMEOUT_MINUTES")
	}
	cfg.RunTimeout = time.Duration(mins) * time.Minute

	cfg.Log = logger.DefaultConfig()
	cfg.Log.Level = logger.ParseLevel(getenv("LOG_LEVEL", "INFO"))
	cfg.Log.LogDir = getenv("LOG_DIR", "logs")
	if v := os.Getenv("LOG_FILE_ENABLED"); v != "" {
		cfg.Log.EnableFile = envBool("LOG_FILE_ENABLED")
	}
	cfg.Log.JSON = envBool("LOG_JSON")

	if v := os.Getenv("CRED_ENC_KEY"); v != "" {
		if cfg.CredEncKey, err = decodeB64(v); err != nil {
			return Config{}, fmt.Errorf("CRED_ENC_KEY: %w", err)
		}
	}

	// the dashboard is optional; both keys or neither
	hashKey, blockKey := os.Getenv("COOKIE_HASH_KEY"), os.Getenv("COOKIE_BLOCK_KEY")
	if (hashKey == "") != (blockKey == "") {
		return Config{}, fmt.Errorf("COOKIE_HASH_KEY and COOKIE_BLOCK_KEY must be set together")
	}
	if hashKey != "" {
		if cfg.CookieHashKey, err = decodeB64(hashKey); err != nil {
			return Config{}, fmt.Errorf("COOKIE_HASH_KEY: %w", err)
		}
		if cfg.CookieBlockKey, err = decodeB64(blockKey); err != nil {
			return Config{}, fmt.Errorf("COOKIE_BLOCK_KEY: %w", err)
		}
	}

	return cfg, nil
}

func (c Config) DashboardEnabled() bool {
	return c.ListenAddr != "" && len(c.CookieHashKey) > 0
}

// decodeB64 accepts either the value itself or a path to a file holding it
// (k8s/docker secret mounts).
func decodeB64(s string) ([]byte, error) {
	if b, err := os.ReadFile(s); err == nil {
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func envBool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
