package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/inkpost/internal/flagx"
	"github.com/dmitrijs2005/inkpost/internal/timex"
)

// JsonConfig is the on-disk shape of the optional configuration file.
// Durations accept strings such as "15m" or "168h". Pointer fields
// distinguish "absent" from the zero value.
type JsonConfig struct {
	EndpointAddrHTTP                  string          `json:"endpoint_addr_http"`
	DatabaseDSN                       string          `json:"database_dsn"`
	SecretKey                         string          `json:"secret_key"`
	AccessTokenValidityDuration       *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration      *timex.Duration `json:"refresh_token_validity_duration"`
	VerificationTokenValidityDuration *timex.Duration `json:"verification_token_validity_duration"`
	ResetTokenValidityDuration        *timex.Duration `json:"reset_token_validity_duration"`
	BcryptCost                        int             `json:"bcrypt_cost"`
	FrontendURL                       string          `json:"frontend_url"`
	SendGridAPIKey                    string          `json:"sendgrid_api_key"`
	MailFrom                          string          `json:"mail_from"`
	MailFromName                      string          `json:"mail_from_name"`
	CookieDomain                      string          `json:"cookie_domain"`
	CookieSecure                      *bool           `json:"cookie_secure"`
	LogLevel                          string          `json:"log_level"`
	MailTimeout                       *timex.Duration `json:"mail_timeout"`
	Environment                       string          `json:"environment"`
}

// parseJson overlays values from the file named by -c/-config (or CONFIG).
// Only fields present in the file are applied. Unreadable or invalid files
// panic: a half-applied configuration is worse than not starting.
func parseJson(config *Config) {
	path := flagx.ConfigPath()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	overlay(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.SecretKey, c.SecretKey)
	overlay(&config.FrontendURL, c.FrontendURL)
	overlay(&config.SendGridAPIKey, c.SendGridAPIKey)
	overlay(&config.MailFrom, c.MailFrom)
	overlay(&config.MailFromName, c.MailFromName)
	overlay(&config.CookieDomain, c.CookieDomain)
	overlay(&config.LogLevel, c.LogLevel)
	overlay(&config.Environment, c.Environment)

	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration != nil {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.VerificationTokenValidityDuration != nil {
		config.VerificationTokenValidityDuration = c.VerificationTokenValidityDuration.Duration
	}
	if c.ResetTokenValidityDuration != nil {
		config.ResetTokenValidityDuration = c.ResetTokenValidityDuration.Duration
	}
	if c.MailTimeout != nil {
		config.MailTimeout = c.MailTimeout.Duration
	}
	if c.BcryptCost != 0 {
		config.BcryptCost = c.BcryptCost
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
}

func overlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
