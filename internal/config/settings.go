package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Settings struct {
	ServerPort  string
	AdminToken  string
	MetricsAddr string
	LogLevel    string

	BakongAPIURL string
	BakongToken  string

	MerchantAccountID string
	MerchantName      string
	MerchantCity      string
	AcquiringBank     string
	MerchantMCC       string

	DeeplinkAppName  string
	DeeplinkAppIcon  string
	DeeplinkCallback string

	LedgerRedisURL string

	HTTPTimeout time.Duration
	HTTPRetries int

	ReconcileInterval time.Duration
	ReconcileLookback time.Duration
	ReconcileWorkers  int
	ReconcileQueue    int
}

func Load() *Settings {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Settings{
		ServerPort:  getString("PORT", "8080"),
		AdminToken:  getString("ADMIN_TOKEN", ""),
		MetricsAddr: getString("METRICS_ADDR", ""),
		LogLevel:    getString("LOG_LEVEL", "info"),

		BakongAPIURL: getString("BAKONG_API_URL", "https://api-bakong.nbc.gov.kh"),
		BakongToken:  getString("BAKONG_TOKEN", ""),

		MerchantAccountID: getString("MERCHANT_ACCOUNT_ID", "demo_merchant@devb"),
		MerchantName:      getString("MERCHANT_NAME", "Demo Merchant"),
		MerchantCity:      getString("MERCHANT_CITY", "Phnom Penh"),
		AcquiringBank:     getString("MERCHANT_ACQUIRING_BANK", ""),
		MerchantMCC:       getString("MERCHANT_MCC", "5999"),

		DeeplinkAppName:  getString("DEEPLINK_APP_NAME", "KHQR Checkout Demo"),
		DeeplinkAppIcon:  getString("DEEPLINK_APP_ICON", ""),
		DeeplinkCallback: getString("DEEPLINK_CALLBACK", "https://localhost/checkout/done"),

		LedgerRedisURL: getString("LEDGER_REDIS_URL", ""),

		HTTPTimeout: getDuration("HTTP_TIMEOUT", 10*time.Second),
		HTTPRetries: getInt("HTTP_RETRIES", 3),

		ReconcileInterval: getDuration("RECONCILE_INTERVAL", 15*time.Second),
		ReconcileLookback: getDuration("RECONCILE_LOOKBACK", 30*time.Minute),
		ReconcileWorkers:  getInt("RECONCILE_WORKERS", 4),
		ReconcileQueue:    getInt("RECONCILE_QUEUE", 1024),
	}
}

func getString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
