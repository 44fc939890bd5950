package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/flagx"
	"github.com/dmitrijs2005/contactkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the optional JSON config file.
// Durations use timex.Duration so both "15m" and integer nanoseconds parse.
// Only keys present with a non-zero value override the current Config.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	RedisURL                     string         `json:"redis_url"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	VerifyTokenValidityDuration  timex.Duration `json:"verify_token_validity_duration"`
	ResetTokenValidityDuration   timex.Duration `json:"reset_token_validity_duration"`
	CacheTTL                     timex.Duration `json:"cache_ttl"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	StoreTimeout                 timex.Duration `json:"store_timeout"`
	RetryAttempts                int            `json:"retry_attempts"`
	RetryBaseDelay               timex.Duration `json:"retry_base_delay"`
	MailHost                     string         `json:"mail_host"`
	MailPort                     int            `json:"mail_port"`
	MailUsername                 string         `json:"mail_username"`
	MailPassword                 string         `json:"mail_password"`
	MailFrom                     string         `json:"mail_from"`
	MailRedirectTo               string         `json:"mail_redirect_to"`
	FrontendURL                  string         `json:"frontend_url"`
	PublicURL                    string         `json:"public_url"`
	AvatarBackend                string         `json:"avatar_backend"`
	CloudinaryURL                string         `json:"cloudinary_url"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	CORSAllowedOrigins           []string       `json:"cors_allowed_origins"`
	MeRateLimit                  int            `json:"me_rate_limit"`
	MeRateWindow                 timex.Duration `json:"me_rate_window"`
	SentryDSN                    string         `json:"sentry_dsn"`
	Environment                  string         `json:"environment"`
	LogLevel                     string         `json:"log_level"`
	LogFormat                    string         `json:"log_format"`
}

// parseJson loads the file named by -c/-config (if any) over config.
// An unreadable file or invalid JSON panics.
func parseJson(config *Config, args []string) {
	jsonConfigFile := flagx.JsonConfigFlags(args)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.VerifyTokenValidityDuration, c.VerifyTokenValidityDuration)
	setDuration(&config.ResetTokenValidityDuration, c.ResetTokenValidityDuration)
	setDuration(&config.CacheTTL, c.CacheTTL)
	setInt(&config.BcryptCost, c.BcryptCost)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	setInt(&config.RetryAttempts, c.RetryAttempts)
	setDuration(&config.RetryBaseDelay, c.RetryBaseDelay)
	setString(&config.MailHost, c.MailHost)
	setInt(&config.MailPort, c.MailPort)
	setString(&config.MailUsername, c.MailUsername)
	setString(&config.MailPassword, c.MailPassword)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.MailRedirectTo, c.MailRedirectTo)
	setString(&config.FrontendURL, c.FrontendURL)
	setString(&config.PublicURL, c.PublicURL)
	setString(&config.AvatarBackend, c.AvatarBackend)
	setString(&config.CloudinaryURL, c.CloudinaryURL)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}
	setInt(&config.MeRateLimit, c.MeRateLimit)
	setDuration(&config.MeRateWindow, c.MeRateWindow)
	setString(&config.SentryDSN, c.SentryDSN)
	setString(&config.Environment, c.Environment)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if !v.IsZero() {
		*dst = v.Duration
	}
}
