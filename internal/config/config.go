package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                 string
	Port                string
	DatabaseURL         string
	RedisURL            string
	AppBaseURL          string // Base URL for join links and Stripe success/cancel redirects
	StripeSecretKey     string
	StripeWebhookSecret string
	SendinblueAPIKey    string // SENDINBLUE_API_KEY for payment request emails (Brevo)
	MailFrom            string // MAIL_FROM sender email (default noreply@giftsplit.app)
	FrontendURLEndsWith string
	DevPassword         string
	HealthAdminKey      string
	ProviderTimeout     time.Duration
	LogLevel            string
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("PROVIDER_TIMEOUT_SECONDS", 15)
	v.SetDefault("LOG_LEVEL", "info")

	timeout := v.GetInt("PROVIDER_TIMEOUT_SECONDS")
	if timeout <= 0 {
		timeout = 15
	}

	return &Config{
		Env:                 strings.ToLower(v.GetString("APP_ENV")),
		Port:                v.GetString("PORT"),
		DatabaseURL:         v.GetString("DATABASE_URL"),
		RedisURL:            v.GetString("REDIS_URL"),
		AppBaseURL:          strings.TrimRight(strings.TrimSpace(v.GetString("APP_BASE_URL")), "/"),
		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		SendinblueAPIKey:    v.GetString("SENDINBLUE_API_KEY"),
		MailFrom:            v.GetString("MAIL_FROM"),
		FrontendURLEndsWith: v.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:         v.GetString("DEV_PASSWORD"),
		HealthAdminKey:      v.GetString("HEALTH_ADMIN_KEY"),
		ProviderTimeout:     time.Duration(timeout) * time.Second,
		LogLevel:            v.GetString("LOG_LEVEL"),
	}, nil
}
