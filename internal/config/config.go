// Package config loads service settings from an optional YAML file and the
// environment. Environment variables always win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CacheRedis  = "redis"
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
)

type Config struct {
	Addr      string `yaml:"addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Sui
	RPCURL           string        `yaml:"rpc_url"`
	Network          string        `yaml:"network"`
	PackageID        string        `yaml:"package_id"`
	Module           string        `yaml:"module"`
	Struct           string        `yaml:"struct"`
	OwnerAddress     string        `yaml:"owner_address"`
	FallbackObjectID string        `yaml:"fallback_object_id"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	RPCRetries       int           `yaml:"rpc_retries"`
	RPCTimeout       time.Duration `yaml:"rpc_timeout"`
	GasBudget        uint64        `yaml:"gas_budget"`
	SignerKey        string        `yaml:"signer_key"`
	ExplorerURL      string        `yaml:"explorer_url"`

	// Cache
	Cache      string `yaml:"cache"`
	RedisURL   string `yaml:"redis_url"`
	SQLitePath string `yaml:"sqlite_path"`

	// Ledger; empty DatabaseURL disables it
	DatabaseURL   string `yaml:"database_url"`
	MigrationsDir string `yaml:"migrations_dir"`

	// Admin gate
	AdminPassword     string        `yaml:"admin_password"`
	AdminPasswordHash string        `yaml:"admin_password_hash"`
	TokenSecret       string        `yaml:"token_secret"`
	AccessTTL         time.Duration `yaml:"access_ttl"`
	CORSOrigin        string        `yaml:"cors_origin"`

	// SMTP - empty by default, email disabled if not configured
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     string `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`
	SMTPFromName string `yaml:"smtp_from_name"`
	NotifyEmail  string `yaml:"notify_email"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Addr:          ":8787",
		LogLevel:      "info",
		LogFormat:     "json",
		RPCURL:        "https://fullnode.testnet.sui.io:443",
		Network:       "testnet",
		Module:        "portfolio",
		Struct:        "Portfolio",
		PollInterval:  10 * time.Second,
		RPCRetries:    2,
		RPCTimeout:    15 * time.Second,
		GasBudget:     100_000_000,
		Cache:         CacheMemory,
		RedisURL:      "redis://localhost:6379/0",
		SQLitePath:    "./data/portfolio.db",
		MigrationsDir: "./db/migrations",
		AccessTTL:     12 * time.Hour,
		CORSOrigin:    "*",
		SMTPPort:      "587",
		SMTPFromName:  "Sui Portfolio",
	}
}

// Load reads settings from the environment over the defaults.
func Load() Config {
	cfg := Defaults()
	cfg.applyEnv()
	return cfg
}

// LoadFile reads a YAML file over the defaults, then applies the environment.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Addr = getenv("API_ADDR", c.Addr)
	c.LogLevel = getenv("PORTFOLIO_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getenv("PORTFOLIO_LOG_FORMAT", c.LogFormat)

	c.RPCURL = getenv("SUI_RPC_URL", c.RPCURL)
	c.Network = getenv("SUI_NETWORK", c.Network)
	c.PackageID = getenv("PORTFOLIO_PACKAGE_ID", c.PackageID)
	c.Module = getenv("PORTFOLIO_MODULE", c.Module)
	c.Struct = getenv("PORTFOLIO_STRUCT", c.Struct)
	c.OwnerAddress = getenv("PORTFOLIO_OWNER_ADDRESS", c.OwnerAddress)
	c.FallbackObjectID = getenv("PORTFOLIO_FALLBACK_OBJECT_ID", c.FallbackObjectID)
	c.PollInterval = getenvSeconds("PORTFOLIO_POLL_SECONDS", c.PollInterval)
	c.RPCRetries = getenvInt("SUI_RPC_RETRIES", c.RPCRetries)
	c.RPCTimeout = getenvSeconds("SUI_RPC_TIMEOUT_SECONDS", c.RPCTimeout)
	c.GasBudget = uint64(getenvInt("SUI_GAS_BUDGET", int(c.GasBudget)))
	c.SignerKey = getenv("SUI_SIGNER_KEY", c.SignerKey)
	c.ExplorerURL = getenv("PORTFOLIO_EXPLORER_URL", c.ExplorerURL)

	c.Cache = strings.ToLower(getenv("PORTFOLIO_CACHE", c.Cache))
	c.RedisURL = getenv("REDIS_URL", c.RedisURL)
	c.SQLitePath = getenv("PORTFOLIO_SQLITE_PATH", c.SQLitePath)

	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.MigrationsDir = getenv("PORTFOLIO_MIGRATIONS_DIR", c.MigrationsDir)

	c.AdminPassword = getenv("PORTFOLIO_ADMIN_PASSWORD", c.AdminPassword)
	c.AdminPasswordHash = getenv("PORTFOLIO_ADMIN_PASSWORD_HASH", c.AdminPasswordHash)
	c.TokenSecret = getenv("PORTFOLIO_TOKEN_SECRET", c.TokenSecret)
	c.AccessTTL = getenvSeconds("PORTFOLIO_ACCESS_TTL_SECONDS", c.AccessTTL)
	c.CORSOrigin = getenv("PORTFOLIO_CORS_ORIGIN", c.CORSOrigin)

	c.SMTPHost = getenv("SMTP_HOST", c.SMTPHost)
	c.SMTPPort = getenv("SMTP_PORT", c.SMTPPort)
	c.SMTPUsername = getenv("SMTP_USERNAME", c.SMTPUsername)
	c.SMTPPassword = getenv("SMTP_PASSWORD", c.SMTPPassword)
	c.SMTPFrom = getenv("SMTP_FROM", c.SMTPFrom)
	c.SMTPFromName = getenv("SMTP_FROM_NAME", c.SMTPFromName)
	c.NotifyEmail = getenv("PORTFOLIO_NOTIFY_EMAIL", c.NotifyEmail)
}

// TypeTag is the fully qualified Move struct type of the record.
func (c Config) TypeTag() string {
	if c.PackageID == "" {
		return ""
	}
	return c.PackageID + "::" + c.Module + "::" + c.Struct
}

// ExplorerBase returns ExplorerURL, or the suiscan transaction URL for Network.
func (c Config) ExplorerBase() string {
	if c.ExplorerURL != "" {
		return c.ExplorerURL
	}
	return "https://suiscan.xyz/" + c.Network + "/tx/"
}

// Validate reports every malformed setting.
func (c Config) Validate() error {
	var errs []error
	addresses := []struct{ name, value string }{
		{"package_id", c.PackageID},
		{"owner_address", c.OwnerAddress},
		{"fallback_object_id", c.FallbackObjectID},
	}
	for _, a := range addresses {
		if a.value != "" && !isAddress(a.value) {
			errs = append(errs, fmt.Errorf("%s %q is not a 0x-prefixed hex address", a.name, a.value))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.RPCRetries < 0 {
		errs = append(errs, errors.New("rpc_retries must not be negative"))
	}
	switch c.Cache {
	case CacheRedis, CacheSQLite, CacheMemory:
	default:
		errs = append(errs, fmt.Errorf("cache %q must be redis, sqlite or memory", c.Cache))
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		errs = append(errs, errors.New("rpc_url is required"))
	}
	return errors.Join(errs...)
}

func isAddress(s string) bool {
	hex, ok := strings.CutPrefix(s, "0x")
	if !ok || hex == "" || len(hex) > 64 {
		return false
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvSeconds(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return time.Duration(parsed) * time.Second
}
