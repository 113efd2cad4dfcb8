package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the execution core.
type Config struct {
	Port string

	// Database
	DBPath string

	// Market rules metadata (YAML)
	MarketRulesPath string
	Pairs           []string

	// Execution
	PaperBroker         bool
	PaperInitialBalance float64
	DefaultRiskFraction float64
	MaxRiskFraction     float64
	ManageInterval      time.Duration
	BrokerTimeout       time.Duration
	PriceTimeout        time.Duration
	ReconcileMinWait    time.Duration

	// Signal validity thresholds
	MinConfidence float64
	MinStrength   float64

	// Job queue
	JobQueueSize     int
	JobConcurrency   int
	JobMaxAttempts   int
	JobRetryBase     time.Duration
	JobRetryMax      time.Duration
	JobDeadLetterMax int

	// Alerting
	AlertDedupeWindow time.Duration
	SlackWebhook      string
	AlertWebhookURL   string
	SMTPHost          string
	SMTPPort          int
	SMTPUser          string
	SMTPPassword      string
	EmailFrom         string
	EmailTo           []string

	// HTTP
	RateLimitRPS   float64
	RateLimitBurst int

	// Auth
	JWTSecret        string
	OperatorUser     string
	OperatorPassword string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8090"),
		DBPath:              getEnv("DB_PATH", "./data/fxcore.db"),
		MarketRulesPath:     getEnv("MARKET_RULES_PATH", "./config/market_rules.yaml"),
		Pairs:               splitAndTrim(getEnv("PAIRS", "EURUSD,GBPUSD,USDJPY,XAUUSD,BTCUSD")),
		PaperBroker:         getEnv("PAPER_BROKER", "true") == "true",
		PaperInitialBalance: getEnvFloat("PAPER_INITIAL_BALANCE", 10000.0),
		DefaultRiskFraction: getEnvFloat("DEFAULT_RISK_FRACTION", 0.01),
		MaxRiskFraction:     getEnvFloat("MAX_RISK_FRACTION", 0.05),
		ManageInterval:      getEnvDuration("MANAGE_INTERVAL", 5*time.Second),
		BrokerTimeout:       getEnvDuration("BROKER_TIMEOUT", 10*time.Second),
		PriceTimeout:        getEnvDuration("PRICE_TIMEOUT", 3*time.Second),
		ReconcileMinWait:    getEnvDuration("RECONCILE_MIN_WAIT", 60*time.Second),
		MinConfidence:       getEnvFloat("MIN_CONFIDENCE", 55),
		MinStrength:         getEnvFloat("MIN_STRENGTH", 40),
		JobQueueSize:        getEnvInt("JOB_QUEUE_SIZE", 500),
		JobConcurrency:      getEnvInt("JOB_CONCURRENCY", 4),
		JobMaxAttempts:      getEnvInt("JOB_MAX_ATTEMPTS", 3),
		JobRetryBase:        getEnvDuration("JOB_RETRY_BASE", 500*time.Millisecond),
		JobRetryMax:         getEnvDuration("JOB_RETRY_MAX", 30*time.Second),
		JobDeadLetterMax:    getEnvInt("JOB_DEAD_LETTER_MAX", 100),
		AlertDedupeWindow:   getEnvDuration("ALERT_DEDUPE_WINDOW", 5*time.Minute),
		SlackWebhook:        os.Getenv("SLACK_WEBHOOK"),
		AlertWebhookURL:     os.Getenv("ALERT_WEBHOOK_URL"),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            getEnvInt("SMTP_PORT", 587),
		SMTPUser:            os.Getenv("SMTP_USER"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFrom:           os.Getenv("EMAIL_FROM"),
		EmailTo:             splitAndTrim(os.Getenv("EMAIL_TO")),
		RateLimitRPS:        getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", 50),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		OperatorUser:        getEnv("OPERATOR_USER", "operator"),
		OperatorPassword:    os.Getenv("OPERATOR_PASSWORD"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
