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
	JWTSecret         string
	Port              string
	DatabasePath      string
	LogLevel          string
	AccessTokenExpiry time.Duration

	FinnhubBaseURL string
	FinnhubAPIKey  string

	// QuoteRequestSpacing is the minimum interval between the starts of
	// consecutive calls to the quote provider.
	QuoteRequestSpacing time.Duration
	QuoteQueueDepth     int
	QuoteClientTimeout  time.Duration

	PortfolioCacheTTL    time.Duration
	CacheCleanupInterval time.Duration
	StartingCashBalance  decimal.Decimal
	RequestsPerSecond    float64
	RequestBurst         int
	CORSAllowedOrigin    string
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

	jwtSecret := getEnv("JWT_SECRET", "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes")
	if jwtSecret == "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	finnhubKey := getEnv("FINNHUB_API_KEY", "")
	if finnhubKey == "" {
		log.Println("WARNING: FINNHUB_API_KEY is not set. Quote fetching will fail until it is configured.")
	}

	startingCashStr := getEnv("STARTING_CASH_BALANCE", "10000")
	startingCash, err := decimal.NewFromString(startingCashStr)
	if err != nil || startingCash.IsNegative() {
		log.Printf("WARNING: Invalid STARTING_CASH_BALANCE '%s'. Using default 10000. Error: %v", startingCashStr, err)
		startingCash = decimal.NewFromInt(10000)
	}

	Cfg = &AppConfig{
		JWTSecret:         jwtSecret,
		Port:              getEnv("PORT", "8080"),
		DatabasePath:      getEnv("DATABASE_PATH", "./wombats.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 60*time.Minute),

		FinnhubBaseURL: getEnv("FINNHUB_BASE_URL", "https://finnhub.io/api/v1"),
		FinnhubAPIKey:  finnhubKey,

		QuoteRequestSpacing: getEnvAsDuration("QUOTE_REQUEST_SPACING", 300*time.Millisecond),
		QuoteQueueDepth:     getEnvAsInt("QUOTE_QUEUE_DEPTH", 64),
		QuoteClientTimeout:  getEnvAsDuration("QUOTE_CLIENT_TIMEOUT", 20*time.Second),

		PortfolioCacheTTL:    getEnvAsDuration("PORTFOLIO_CACHE_TTL", 1*time.Minute),
		CacheCleanupInterval: getEnvAsDuration("CACHE_CLEANUP_INTERVAL", 30*time.Minute),
		StartingCashBalance:  startingCash,
		RequestsPerSecond:    getEnvAsFloat("HTTP_REQUESTS_PER_SECOND", 10),
		RequestBurst:         getEnvAsInt("HTTP_REQUEST_BURST", 30),
		CORSAllowedOrigin:    getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, QuoteSpacing=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.QuoteRequestSpacing)
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

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Float value for %s not set or empty, using default: %g", key, fallback)
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
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
