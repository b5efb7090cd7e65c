package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

func Config(key string) string {
	err := godotenv.Load(".env")
	if err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	return os.Getenv(key)
}

func intConfig(key string, fallback int) int {
	raw := Config(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid value for %s (%q), using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

// PlatformFeePercent is the platform's cut of each paid session. The fee is
// captured into the payment intent's metadata at creation time, so the ledger
// math always follows the percentage that priced the session.
func PlatformFeePercent() int {
	return intConfig("PLATFORM_FEE_PERCENT", 10)
}

// EarningsHoldDays is the delay between crediting earnings and those earnings
// becoming withdrawable.
func EarningsHoldDays() int {
	return intConfig("EARNINGS_HOLD_DAYS", 7)
}

// ActionTokenTTLDays is the lifetime of cancellation, reschedule and refund
// links.
func ActionTokenTTLDays() int {
	return intConfig("ACTION_TOKEN_TTL_DAYS", 90)
}

func AppBaseURL() string {
	if url := Config("APP_BASE_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}
