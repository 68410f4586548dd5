package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv loads a .env file from the working directory when present (real
// environment variables win over it) and overlays recognised variables.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString(&config.EndpointAddrHTTP, "HTTP_ADDRESS")
	setString(&config.DatabaseDSN, "DATABASE_URL")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.SecretKey, "SECRET_KEY")
	setDuration(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_EXPIRE_MINUTES", time.Minute)
	setDuration(&config.RefreshTokenValidityDuration, "REFRESH_TOKEN_EXPIRE_DAYS", 24*time.Hour)
	setDuration(&config.VerificationTokenValidityDuration, "VERIFICATION_TOKEN_EXPIRE_HOURS", time.Hour)
	setDuration(&config.ResetTokenValidityDuration, "RESET_TOKEN_EXPIRE_MINUTES", time.Minute)
	setInt(&config.BcryptCost, "BCRYPT_COST")
	setString(&config.FrontendURL, "FRONTEND_URL")
	setString(&config.SendGridAPIKey, "SENDGRID_API_KEY")
	setString(&config.MailFrom, "MAIL_FROM")
	setString(&config.MailFromName, "MAIL_FROM_NAME")
	setString(&config.CookieDomain, "COOKIE_DOMAIN")
	setBool(&config.CookieSecure, "COOKIE_SECURE")
	setString(&config.LogLevel, "LOG_LEVEL")
	setDuration(&config.MailTimeout, "MAIL_TIMEOUT_SECONDS", time.Second)
	setString(&config.Environment, "APP_ENV")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration reads an integer number of units.
func setDuration(dst *time.Duration, key string, unit time.Duration) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * unit
		}
	}
}
