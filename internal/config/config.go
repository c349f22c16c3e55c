package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// NATS (optional second event backend; empty disables it)
	NatsURL string

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort string

	// Bidding engine
	BidIncrement           int64 // cents
	ExtendedBiddingMinutes int   // default extension window when a listing doesn't set one

	// Offers
	OfferExpiry         time.Duration
	MinimumOfferPercent int // default floor, percent of asking price

	// Orders
	OrderPaymentTimeout    time.Duration
	PlatformCommissionRate float64

	// Sweep cadences (asynq scheduler)
	AuctionSweepInterval     time.Duration
	UnpaidOrderSweepInterval time.Duration
	OfferExpirySweepInterval time.Duration

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.NatsURL = getEnv("NATS_URL", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.BidIncrement, err = strconv.ParseInt(getEnv("BID_INCREMENT_CENTS", "100"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BID_INCREMENT_CENTS: %w", err)
	}
	if cfg.BidIncrement <= 0 {
		return nil, fmt.Errorf("BID_INCREMENT_CENTS must be positive")
	}

	cfg.ExtendedBiddingMinutes, err = strconv.Atoi(getEnv("EXTENDED_BIDDING_MINUTES", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXTENDED_BIDDING_MINUTES: %w", err)
	}

	offerExpiryHours, err := strconv.ParseInt(getEnv("OFFER_EXPIRY_HOURS", "48"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OFFER_EXPIRY_HOURS: %w", err)
	}
	cfg.OfferExpiry = time.Duration(offerExpiryHours) * time.Hour

	cfg.MinimumOfferPercent, err = strconv.Atoi(getEnv("MINIMUM_OFFER_PERCENT", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid MINIMUM_OFFER_PERCENT: %w", err)
	}

	orderPaymentTimeoutMinutes, err := strconv.ParseInt(getEnv("ORDER_PAYMENT_TIMEOUT_MINUTES", "15"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ORDER_PAYMENT_TIMEOUT_MINUTES: %w", err)
	}
	cfg.OrderPaymentTimeout = time.Duration(orderPaymentTimeoutMinutes) * time.Minute

	cfg.PlatformCommissionRate, err = strconv.ParseFloat(getEnv("PLATFORM_COMMISSION_RATE", "0.05"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_COMMISSION_RATE: %w", err)
	}

	auctionSweepSeconds, err := strconv.ParseInt(getEnv("AUCTION_SWEEP_INTERVAL_SECONDS", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid AUCTION_SWEEP_INTERVAL_SECONDS: %w", err)
	}
	cfg.AuctionSweepInterval = time.Duration(auctionSweepSeconds) * time.Second

	unpaidSweepSeconds, err := strconv.ParseInt(getEnv("UNPAID_ORDER_SWEEP_INTERVAL_SECONDS", "60"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UNPAID_ORDER_SWEEP_INTERVAL_SECONDS: %w", err)
	}
	cfg.UnpaidOrderSweepInterval = time.Duration(unpaidSweepSeconds) * time.Second

	offerSweepSeconds, err := strconv.ParseInt(getEnv("OFFER_EXPIRY_SWEEP_INTERVAL_SECONDS", "300"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OFFER_EXPIRY_SWEEP_INTERVAL_SECONDS: %w", err)
	}
	cfg.OfferExpirySweepInterval = time.Duration(offerSweepSeconds) * time.Second

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
