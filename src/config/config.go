package config

import (
	"os"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/helix-markets/agentfleet/src/data"
)

// Config carries everything the daemon needs. Values come from the settings
// table with environment fallback; env wins when both are set.
type Config struct {
	MySQLDSN    string
	RedisURL    string
	Port        string
	JWTSecret   string
	CORSOrigins string

	ExchangeURL     string
	ExchangeTimeout time.Duration
	SignerURL       string
	BuilderAddress  string
	BuilderFeeBps   int

	DefaultTickInterval time.Duration
	MinTickInterval     time.Duration
	MaxTickInterval     time.Duration
	AutoHealInterval    time.Duration
	MaxRunners          int
}

// MySQLDSN resolves the database address before anything else can load.
func MySQLDSN() string {
	return env("MYSQL_DSN", "agentfleet:agentfleet@tcp(localhost:3306)/agentfleet?parseTime=true")
}

// Load reads configuration after the settings table is available.
func Load(db *gorm.DB) Config {
	if db != nil {
		_ = data.LoadSettings(db)
	}
	return Config{
		MySQLDSN:    MySQLDSN(),
		RedisURL:    setting("redis_url", "REDIS_URL", ""),
		Port:        setting("port", "PORT", "8090"),
		JWTSecret:   setting("jwt_secret", "JWT_SECRET", ""),
		CORSOrigins: setting("cors_origins", "CORS_ORIGINS", "*"),

		ExchangeURL:     setting("exchange_url", "EXCHANGE_URL", "https://api.perps.example"),
		ExchangeTimeout: durationSetting("exchange_timeout_ms", "EXCHANGE_TIMEOUT_MS", 15*time.Second),
		SignerURL:       setting("signer_url", "SIGNER_URL", ""),
		BuilderAddress:  setting("builder_address", "BUILDER_ADDRESS", ""),
		BuilderFeeBps:   intSetting("builder_fee_bps", "BUILDER_FEE_BPS", 10),

		DefaultTickInterval: durationSetting("tick_interval_ms", "TICK_INTERVAL_MS", time.Minute),
		MinTickInterval:     durationSetting("tick_interval_min_ms", "TICK_INTERVAL_MIN_MS", 5*time.Second),
		MaxTickInterval:     durationSetting("tick_interval_max_ms", "TICK_INTERVAL_MAX_MS", 24*time.Hour),
		AutoHealInterval:    durationSetting("autoheal_interval_ms", "AUTOHEAL_INTERVAL_MS", 5*time.Minute),
		MaxRunners:          intSetting("max_runners", "MAX_RUNNERS", 256),
	}
}

// setting resolves env first, then the settings table, then the default.
func setting(name, envKey, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if v := data.GetSetting(name); v != "" {
		return v
	}
	return def
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intSetting(name, envKey string, def int) int {
	v := setting(name, envKey, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durationSetting(name, envKey string, def time.Duration) time.Duration {
	v := setting(name, envKey, "")
	if v == "" {
		return def
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
