package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	// Matching knobs. BankMatchTolerance is the maximum overshoot allowed
	// when allocating a bank debit across obligations; BankAmountEpsilon is
	// the cent-level margin for "exact" candidate/confidence matching.
	BankMatchTolerance decimal.Decimal
	BankAmountEpsilon  decimal.Decimal
	PaidStatusTolerance decimal.Decimal

	ReportCacheExpiry  time.Duration
	ReportCacheCleanup time.Duration

	RateLimitInterval time.Duration
	RateLimitBurst    int
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	bankMatchTolerance := getEnvAsDecimal("BANK_MATCH_TOLERANCE", decimal.RequireFromString("0.50"))
	if bankMatchTolerance.IsNegative() {
		log.Printf("WARNING: BANK_MATCH_TOLERANCE must not be negative, using default 0.50")
		bankMatchTolerance = decimal.RequireFromString("0.50")
	}

	bankAmountEpsilon := getEnvAsDecimal("BANK_AMOUNT_EPSILON", decimal.RequireFromString("0.01"))
	paidStatusTolerance := getEnvAsDecimal("PAID_STATUS_TOLERANCE", decimal.RequireFromString("0.01"))

	reportCacheExpiry := getEnvAsDuration("REPORT_CACHE_EXPIRY", 15*time.Minute)
	reportCacheCleanup := getEnvAsDuration("REPORT_CACHE_CLEANUP", 30*time.Minute)

	rateLimitInterval := getEnvAsDuration("RATE_LIMIT_INTERVAL", 100*time.Millisecond)
	rateLimitBurst := getEnvAsInt("RATE_LIMIT_BURST", 30)

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./ledgerlink.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		BankMatchTolerance:  bankMatchTolerance,
		BankAmountEpsilon:   bankAmountEpsilon,
		PaidStatusTolerance: paidStatusTolerance,

		ReportCacheExpiry:  reportCacheExpiry,
		ReportCacheCleanup: reportCacheCleanup,

		RateLimitInterval: rateLimitInterval,
		RateLimitBurst:    rateLimitBurst,
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, BankMatchTolerance=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.BankMatchTolerance.String())
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Duration value for %s not set or empty, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func getEnvAsDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Decimal value for %s not set or empty, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid decimal value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
