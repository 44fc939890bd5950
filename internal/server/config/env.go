package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/flagx"
	"github.com/joho/godotenv"
)

const defaultEnvFile = ".env"

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// parseEnv overlays values from the process environment and from a dotenv
// file. The dotenv file is -env when given, otherwise ./.env if it exists.
// Real environment variables win over the file. Malformed numbers or
// durations panic, like the other loaders.
func parseEnv(config *Config, args []string, lookup lookupFunc) {
	dotenv := readDotenv(flagx.EnvFileFlag(args))

	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	str := func(key string, dst *string) {
		if v, ok := get(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				panic(fmt.Errorf("env %s: %w", key, err))
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := get(key); ok {
			d, err := parseEnvDuration(v)
			if err != nil {
				panic(fmt.Errorf("env %s: %w", key, err))
			}
			*dst = d
		}
	}

	str("HTTP_ADDR", &config.EndpointAddrHTTP)
	str("DATABASE_URL", &config.DatabaseDSN)
	str("REDIS_URL", &config.RedisURL)

	str("JWT_SECRET", &config.SecretKey)
	dur("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	dur("REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	dur("VERIFY_TOKEN_TTL", &config.VerifyTokenValidityDuration)
	dur("RESET_TOKEN_TTL", &config.ResetTokenValidityDuration)
	dur("CACHE_TTL", &config.CacheTTL)
	num("BCRYPT_COST", &config.BcryptCost)

	dur("STORE_TIMEOUT", &config.StoreTimeout)
	num("RETRY_ATTEMPTS", &config.RetryAttempts)
	dur("RETRY_BASE_DELAY", &config.RetryBaseDelay)

	str("MAIL_HOST", &config.MailHost)
	num("MAIL_PORT", &config.MailPort)
	str("MAIL_USERNAME", &config.MailUsername)
	str("MAIL_PASSWORD", &config.MailPassword)
	str("MAIL_FROM", &config.MailFrom)
	str("MAIL_TEST_RECIPIENT", &config.MailRedirectTo)

	str("FRONTEND_URL", &config.FrontendURL)
	str("PUBLIC_URL", &config.PublicURL)

	str("AVATAR_BACKEND", &config.AvatarBackend)
	str("CLOUDINARY_URL", &config.CloudinaryURL)
	str("S3_ROOT_USER", &config.S3RootUser)
	str("S3_ROOT_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	if v, ok := get("CORS_ALLOWED_ORIGINS"); ok {
		config.CORSAllowedOrigins = splitList(v)
	}
	num("ME_RATE_LIMIT", &config.MeRateLimit)
	dur("ME_RATE_WINDOW", &config.MeRateWindow)

	str("SENTRY_DSN", &config.SentryDSN)
	str("APP_ENV", &config.Environment)
	str("LOG_LEVEL", &config.LogLevel)
	str("LOG_FORMAT", &config.LogFormat)
}

func readDotenv(path string) map[string]string {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		panic(err)
	}
	return values
}

// parseEnvDuration accepts Go duration strings ("15m") and bare integers,
// which are read as seconds.
func parseEnvDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
