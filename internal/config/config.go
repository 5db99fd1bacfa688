package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Supabase (from .env)
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	PasswordResetURL   string

	// API
	APIPort           int
	CORSAllowOrigin   string
	AuthRatePerMinute int

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBMigrate  bool

	// Notifications
	WebhookURL string
	BotName    string

	// Simulated alerts
	AlertsEnabled        bool
	AlertIntervalSeconds int

	// Prices
	PriceRefreshSeconds int

	// Ledger
	WithdrawRequireConfirmed bool

	// Chain
	EthereumAPIEndpoint string

	// Realtime
	RealtimeEnabled bool

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SupabaseURL:        strings.TrimRight(envStr("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey:    envStr("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: envStr("SUPABASE_SERVICE_KEY", ""),
		SupabaseJWTSecret:  envStr("SUPABASE_JWT_SECRET", ""),
		PasswordResetURL:   envStr("PASSWORD_RESET_URL", ""),

		APIPort:           envInt("API_PORT", 3001),
		CORSAllowOrigin:   envStr("CORS_ALLOW_ORIGIN", "*"),
		AuthRatePerMinute: envInt("AUTH_RATE_PER_MINUTE", 20),

		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "cryptovest"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),
		DBMigrate:  envBool("DB_MIGRATE", true),

		WebhookURL: envStr("WEBHOOK_URL", ""),
		BotName:    envStr("BOT_NAME", "CryptoVest"),

		AlertsEnabled:        envBool("ALERTS_ENABLED", true),
		AlertIntervalSeconds: envInt("ALERT_INTERVAL_SECONDS", 10),

		PriceRefreshSeconds: envInt("PRICE_REFRESH_SECONDS", 30),

		WithdrawRequireConfirmed: envBool("WITHDRAW_REQUIRE_CONFIRMED", false),

		EthereumAPIEndpoint: envStr("ETHEREUM_API_ENDPOINT", ""),

		RealtimeEnabled: envBool("REALTIME_ENABLED", true),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),
	}

	return cfg, nil
}

// Validate returns an error for missing required settings. Optional
// settings that disable a feature are returned as warnings.
func (c *Config) Validate() (warnings []string, err error) {
	var errs []string

	if c.SupabaseURL == "" {
		errs = append(errs, "SUPABASE_URL is required")
	}
	if c.SupabaseAnonKey == "" {
		errs = append(errs, "SUPABASE_ANON_KEY is required")
	}
	if c.DBUser == "" {
		errs = append(errs, "DB_USER is required")
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Sprintf("API_PORT %d is out of range", c.APIPort))
	}

	if c.SupabaseJWTSecret == "" {
		warnings = append(warnings, "SUPABASE_JWT_SECRET not set: every request will be verified against Supabase Auth")
	}
	if c.WebhookURL == "" {
		warnings = append(warnings, "WEBHOOK_URL not set: alerts and approvals are logged only")
	}
	if c.EthereumAPIEndpoint == "" {
		warnings = append(warnings, "ETHEREUM_API_ENDPOINT not set: on-chain deposit balances disabled")
	}
	if !c.WithdrawRequireConfirmed {
		warnings = append(warnings, "WITHDRAW_REQUIRE_CONFIRMED=false: pending deposits count toward withdrawable balance")
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return warnings, nil
}

func (c *Config) Print() {
	fmt.Println("=== CryptoVest Backend Configuration ===")
	fmt.Printf("Supabase: %s\n", boolLabel(c.SupabaseURL != "", c.SupabaseURL, "not set"))
	fmt.Printf("JWT verification: %s\n", boolLabel(c.SupabaseJWTSecret != "", "local (HS256)", "remote (/auth/v1/user)"))
	fmt.Printf("Reset link target: %s\n", boolLabel(c.PasswordResetURL != "", c.PasswordResetURL, "Supabase site URL"))
	fmt.Printf("Database: %s:%d/%s\n", c.DBHost, c.DBPort, c.DBName)
	fmt.Println("--------------------------------------")
	fmt.Printf("API port: %d\n", c.APIPort)
	fmt.Printf("CORS origin: %s\n", c.CORSAllowOrigin)
	fmt.Printf("Auth rate: %d/min per IP\n", c.AuthRatePerMinute)
	fmt.Println("--------------------------------------")
	fmt.Printf("Realtime feed: %v\n", c.RealtimeEnabled)
	fmt.Printf("Simulated alerts: %s\n", boolLabel(c.AlertsEnabled, fmt.Sprintf("every %ds", c.AlertIntervalSeconds), "off"))
	fmt.Printf("Price refresh: every %ds\n", c.PriceRefreshSeconds)
	fmt.Printf("Withdraw bound: %s\n", boolLabel(c.WithdrawRequireConfirmed, "confirmed deposits only", "all deposits"))
	fmt.Printf("Ethereum RPC: %s\n", boolLabel(c.EthereumAPIEndpoint != "", "configured", "not set"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
