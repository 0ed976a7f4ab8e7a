package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the API process configuration, read from the environment only.
// A .env file, when present, is loaded into the environment by main first.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Twilio   TwilioConfig
	Vapi     VapiConfig
	Google   GoogleConfig
	SMTP     SMTPConfig
	Webhooks WebhookConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin of this API.
	// The voice platform calls back into it for callback tools, direct tools and call events.
	PublicBaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts disable, require, verify-ca, verify-full.
	SSLMode string

	// AutoMigrate applies the embedded schema at startup. Unset means on
	// outside production.
	AutoMigrate *bool
}

// RedisConfig is optional. Without a host the provisioning lock is process-local.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID string
	// AuthToken signs X-Twilio-Signature; when empty, signatures are not checked.
	AuthToken string
}

type VapiConfig struct {
	// APIKey is optional. Without it the platform is reported as unavailable.
	APIKey        string
	BaseURL       string
	WebhookSecret string
	Timeout       time.Duration
	DefaultVoice  string
	DefaultModel  string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

type WebhookConfig struct {
	// Secret is compared against X-Webhook-Secret on automation webhooks when set.
	Secret          string
	RateLimit       int
	RateLimitWindow time.Duration
}

// Load reads the process environment. Parse errors and validation problems are
// reported together.
func Load() (Config, error) {
	var (
		c Config
		e envReader
	)

	c.App.Env = e.str("APP_ENV")
	c.App.Port = e.port("APP_PORT", 0)
	c.App.PublicBaseURL = strings.TrimRight(e.str("PUBLIC_BASE_URL"), "/")

	c.DB.Host = e.str("DB_HOST")
	c.DB.Port = e.port("DB_PORT", 0)
	c.DB.User = e.str("DB_USER")
	c.DB.Password = e.raw("DB_PASSWORD")
	c.DB.Name = e.str("DB_NAME")
	c.DB.SSLMode = e.str("DB_SSLMODE")
	c.DB.AutoMigrate = e.boolean("DB_AUTO_MIGRATE")

	c.Redis.Host = e.str("REDIS_HOST")
	c.Redis.Port = e.port("REDIS_PORT", 6379)
	c.Redis.Password = e.raw("REDIS_PASSWORD")

	c.Auth.JWTSecret = e.raw("JWT_SECRET")
	c.Auth.JWTIssuer = e.str("JWT_ISSUER")
	c.Auth.JWTAudience = e.str("JWT_AUDIENCE")
	c.Auth.AccessTokenTTL = e.duration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = e.duration("JWT_REFRESH_TTL")

	c.Twilio.AccountSID = e.str("TWILIO_ACCOUNT_SID")
	c.Twilio.AuthToken = e.raw("TWILIO_AUTH_TOKEN")

	c.Vapi.APIKey = e.str("VAPI_API_KEY")
	c.Vapi.BaseURL = strings.TrimRight(e.str("VAPI_BASE_URL"), "/")
	c.Vapi.WebhookSecret = e.raw("VAPI_WEBHOOK_SECRET")
	c.Vapi.Timeout = e.duration("VAPI_TIMEOUT")
	c.Vapi.DefaultVoice = e.str("VAPI_DEFAULT_VOICE")
	c.Vapi.DefaultModel = e.str("VAPI_DEFAULT_MODEL")

	c.Google.ClientID = e.str("GOOGLE_CLIENT_ID")
	c.Google.ClientSecret = e.raw("GOOGLE_CLIENT_SECRET")
	c.Google.RedirectURL = e.str("GOOGLE_REDIRECT_URL")

	c.SMTP.Host = e.str("SMTP_HOST")
	c.SMTP.Port = e.port("SMTP_PORT", 587)
	c.SMTP.User = e.str("SMTP_USER")
	c.SMTP.Password = e.raw("SMTP_PASSWORD")
	c.SMTP.From = e.str("SMTP_FROM")
	c.SMTP.FromName = e.str("SMTP_FROM_NAME")

	c.Webhooks.Secret = e.raw("WEBHOOK_SECRET")
	c.Webhooks.RateLimit = e.integer("WEBHOOK_RATE_LIMIT", 0)
	c.Webhooks.RateLimitWindow = e.duration("WEBHOOK_RATE_WINDOW")

	if err := joinErrors(e.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.App.PublicBaseURL))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.DB.AutoMigrate == nil {
		on := !c.IsProduction()
		c.DB.AutoMigrate = &on
	}

	if c.HasRedis() {
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	} else if c.IsProduction() {
		errs = append(errs, errors.New("REDIS_HOST is required in production"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
		if c.Vapi.WebhookSecret == "" {
			errs = append(errs, errors.New("VAPI_WEBHOOK_SECRET is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Vapi.BaseURL == "" {
		c.Vapi.BaseURL = "https://api.vapi.ai"
	}
	if c.Vapi.Timeout <= 0 {
		// Control-plane calls: a few seconds, expiry is a transport failure.
		c.Vapi.Timeout = 5 * time.Second
	}

	if (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together"))
	}
	if c.HasGoogleCalendar() && c.Google.RedirectURL == "" {
		c.Google.RedirectURL = c.App.PublicBaseURL + "/oauth/google/callback"
	}

	if c.HasSMTP() {
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			errs = append(errs, fmt.Errorf("SMTP_PORT must be a valid port, got %d", c.SMTP.Port))
		}
		if c.SMTP.From == "" {
			errs = append(errs, errors.New("SMTP_FROM is required when SMTP_HOST is set"))
		}
	}

	if c.Webhooks.RateLimit <= 0 {
		c.Webhooks.RateLimit = 300
	}
	if c.Webhooks.RateLimitWindow <= 0 {
		c.Webhooks.RateLimitWindow = time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// HasGoogleCalendar returns true if calendar OAuth is configured.
func (c Config) HasGoogleCalendar() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// HasSMTP returns true if confirmation email delivery is configured.
func (c Config) HasSMTP() bool {
	return c.SMTP.Host != ""
}

// HasRedis returns true if a shared lock store is configured.
func (c Config) HasRedis() bool {
	return c.Redis.Host != ""
}

// ShouldMigrate reports whether main applies the embedded schema before serving.
func (c Config) ShouldMigrate() bool {
	return c.DB.AutoMigrate != nil && *c.DB.AutoMigrate
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// PostgresDSN is a pgx URL. It carries the password; never log it.
func (c Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:     "/" + c.DB.Name,
		RawQuery: url.Values{"sslmode": {c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envReader collects parse errors so Load can report every bad variable at once.
type envReader struct {
	errs []error
}

func (e *envReader) raw(key string) string { return os.Getenv(key) }

func (e *envReader) str(key string) string { return strings.TrimSpace(os.Getenv(key)) }

// integer returns def when key is unset.
func (e *envReader) integer(key string, def int) int {
	v := e.str(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

// port is integer with a range check left to Validate. A zero default makes the key required.
func (e *envReader) port(key string, def int) int {
	if def == 0 && e.str(key) == "" {
		e.errs = append(e.errs, fmt.Errorf("%s is required", key))
		return 0
	}
	return e.integer(key, def)
}

// duration returns zero when unset; Validate fills defaults.
func (e *envReader) duration(key string) time.Duration {
	v := e.str(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be a duration like 5s or 15m, got %q", key, v))
		return 0
	}
	return d
}

// boolean returns nil when unset so Validate can pick an env-dependent default.
func (e *envReader) boolean(key string) *bool {
	v := e.str(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s must be true or false, got %q", key, v))
		return nil
	}
	return &b
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
