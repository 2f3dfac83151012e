package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aussiebroadwan/bookshelf/pkg/cryptox"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env                  string        `mapstructure:"ENV"`                   // dev, staging, prod (default: dev)
	LogLevel             string        `mapstructure:"LOG_LEVEL"`             // debug, info, warn, error (default: info)
	LogFormat            string        `mapstructure:"LOG_FORMAT"`            // json, text (default: json)
	Port                 int           `mapstructure:"PORT"`                  // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"` // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"` // Session reaper interval (default: 1h)

	DatabaseDriver string `mapstructure:"AUTH_DATABASE_DRIVER"` // sqlite or postgres (default: sqlite)
	DatabaseFile   string `mapstructure:"AUTH_DATABASE_FILE"`   // SQLite file (default: ./auth.db)
	DatabaseURL    string `mapstructure:"AUTH_DATABASE_URL"`    // Postgres URL, required for the postgres driver
	PepperFile     string `mapstructure:"AUTH_PEPPER_FILE"`     // Password pepper file (default: ./pepper)

	Issuer            string `mapstructure:"AUTH_ISSUER"`              // iss claim (default: bookshelf-auth)
	SigningSecret     string `mapstructure:"AUTH_SIGNING_SECRET"`      // HMAC secret, at least 32 bytes
	SigningSecretFile string `mapstructure:"AUTH_SIGNING_SECRET_FILE"` // Read the secret from a file instead

	AccessTTL        time.Duration `mapstructure:"AUTH_ACCESS_TTL"`        // default: 24h
	RefreshTTL       time.Duration `mapstructure:"AUTH_REFRESH_TTL"`       // default: 168h
	LockoutThreshold int           `mapstructure:"AUTH_LOCKOUT_THRESHOLD"` // failed attempts before lockout (default: 5)
	LockoutDuration  time.Duration `mapstructure:"AUTH_LOCKOUT_DURATION"`  // default: 1h
	StoreTimeout     time.Duration `mapstructure:"AUTH_STORE_TIMEOUT"`     // per store call (default: 3s)
	SessionRetention time.Duration `mapstructure:"AUTH_SESSION_RETENTION"` // dead session rows kept for (default: 720h)

	BootstrapToken string `mapstructure:"BOOTSTRAP_TOKEN"` // Optional: if set, required to perform bootstrap

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"` // Optional: metrics are only exported when set
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

var defaults = map[string]any{
	"ENV":                         "dev",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
	"PORT":                        8080,
	"SHUTDOWN_GRACE_PERIOD":       "10s",
	"HOUSEKEEPING_INTERVAL":       "1h",
	"AUTH_DATABASE_DRIVER":        DriverSQLite,
	"AUTH_DATABASE_FILE":          "auth.db",
	"AUTH_DATABASE_URL":           "",
	"AUTH_PEPPER_FILE":            "pepper",
	"AUTH_ISSUER":                 "bookshelf-auth",
	"AUTH_SIGNING_SECRET":         "",
	"AUTH_SIGNING_SECRET_FILE":    "",
	"AUTH_ACCESS_TTL":             jwtx.DefaultAccessTokenTTL.String(),
	"AUTH_REFRESH_TTL":            jwtx.DefaultRefreshTokenTTL.String(),
	"AUTH_LOCKOUT_THRESHOLD":      5,
	"AUTH_LOCKOUT_DURATION":       "1h",
	"AUTH_STORE_TIMEOUT":          "3s",
	"AUTH_SESSION_RETENTION":      "720h",
	"BOOTSTRAP_TOKEN":             "",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": false,
}

// LoadConfig reads an optional .env file (or the file named by CONFIG_FILE),
// overlays the environment and validates the result.
func LoadConfig() (Config, error) {
	v := viper.New()

	file := os.Getenv("CONFIG_FILE")
	if file == "" {
		file = ".env"
	}
	v.SetConfigFile(file)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && os.Getenv("CONFIG_FILE") != "" {
		return Config{}, fmt.Errorf("read config file %s: %w", file, err)
	}

	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_FILE must be set for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("AUTH_DATABASE_URL must be set for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("AUTH_DATABASE_DRIVER %q is not one of sqlite, postgres", c.DatabaseDriver))
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.LockoutThreshold < 1 {
		errs = append(errs, errors.New("AUTH_LOCKOUT_THRESHOLD must be at least 1"))
	}

	for name, d := range map[string]time.Duration{
		"AUTH_ACCESS_TTL":        c.AccessTTL,
		"AUTH_REFRESH_TTL":       c.RefreshTTL,
		"AUTH_LOCKOUT_DURATION":  c.LockoutDuration,
		"AUTH_STORE_TIMEOUT":     c.StoreTimeout,
		"AUTH_SESSION_RETENTION": c.SessionRetention,
		"SHUTDOWN_GRACE_PERIOD":  c.ShutdownGracePeriod,
		"HOUSEKEEPING_INTERVAL":  c.HousekeepingInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive duration", name))
		}
	}

	// Logout of a still-valid access token must find its session row.
	if c.AccessTTL > 0 && c.SessionRetention > 0 && c.SessionRetention < c.AccessTTL {
		errs = append(errs, fmt.Errorf("AUTH_SESSION_RETENTION %s must not be shorter than AUTH_ACCESS_TTL %s", c.SessionRetention, c.AccessTTL))
	}

	if c.SigningSecret != "" && c.SigningSecretFile != "" {
		errs = append(errs, errors.New("set only one of AUTH_SIGNING_SECRET and AUTH_SIGNING_SECRET_FILE"))
	}
	if c.SigningSecret != "" && len(c.SigningSecret) < jwtx.MinSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_SIGNING_SECRET must be at least %d bytes", jwtx.MinSecretLength))
	}

	return errors.Join(errs...)
}

// ErrNoSigningSecret is returned outside dev when no secret is configured.
var ErrNoSigningSecret = errors.New("no signing secret configured (AUTH_SIGNING_SECRET or AUTH_SIGNING_SECRET_FILE)")

// LoadSigningSecret returns the configured HMAC secret. It re-reads the
// secret file on every call so SIGHUP can pick up a rotated secret. In dev an
// unset secret yields a random one; ephemeral is then true.
func (c Config) LoadSigningSecret() (secret []byte, ephemeral bool, err error) {
	switch {
	case c.SigningSecretFile != "":
		raw, err := os.ReadFile(c.SigningSecretFile)
		if err != nil {
			return nil, false, fmt.Errorf("read signing secret: %w", err)
		}
		secret = []byte(strings.TrimSpace(string(raw)))
	case c.SigningSecret != "":
		secret = []byte(c.SigningSecret)
	case c.Env == "dev":
		token, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return nil, false, err
		}
		return []byte(token), true, nil
	default:
		return nil, false, ErrNoSigningSecret
	}

	if len(secret) < jwtx.MinSecretLength {
		return nil, false, fmt.Errorf("%w: need %d bytes, got %d", jwtx.ErrWeakSecret, jwtx.MinSecretLength, len(secret))
	}
	return secret, false, nil
}
