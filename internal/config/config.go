package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Telephony TelephonyConfig
	Dialer    DialerConfig
	Log       LogConfig
}

type AppConfig struct {
	Env  string
	Port int

	// PublicBaseURL is the externally reachable origin used in provider callbacks.
	PublicBaseURL string
}

type DBConfig struct {
	// Backend is postgres or memory. memory is refused in production.
	Backend string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	MaxOpenConns int
	MaxIdleConns int

	// SnapshotFile persists the memory backend across restarts. Empty keeps it in memory only.
	SnapshotFile string
	// ContactsFile seeds contact lists for the memory backend.
	ContactsFile string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig verifies access tokens issued by the surrounding application.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type TelephonyConfig struct {
	// Gateway is twilio or simulated. simulated is refused in production.
	Gateway string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioAPIBaseURL string

	TwilioRequestsPerSecond float64
	MachineDetection        bool

	// AssistantStreamURL is the media stream the answered call is bridged to.
	AssistantStreamURL string
	// OutcomeWebhookSecret guards the disposition callback from the assistant.
	OutcomeWebhookSecret string

	// SimulatedDelay is how long simulated calls take to complete.
	SimulatedDelay time.Duration
}

type DialerConfig struct {
	MaxInFlight int
	// SlotsBackend is local or redis.
	SlotsBackend string
	SlotTTL      time.Duration

	// ResetZone is "campaign" or an IANA zone name.
	ResetZone             string
	StopCompletesCampaign bool
	DefaultPhoneRegion    string

	// ShutdownGrace bounds how long in-flight calls are awaited on shutdown.
	ShutdownGrace time.Duration
}

type LogConfig struct {
	// File enables a rotating file sink next to stdout. Empty disables it.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

func Load() (Config, error) {
	c := Config{}
	env := &envReader{}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port = env.requiredInt("APP_PORT")
	c.App.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.DB.Backend = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port = env.intOr("DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.MaxOpenConns = env.intOr("DB_MAX_OPEN_CONNS", 0)
	c.DB.MaxIdleConns = env.intOr("DB_MAX_IDLE_CONNS", 0)
	c.DB.SnapshotFile = strings.TrimSpace(os.Getenv("MEMORY_SNAPSHOT_FILE"))
	c.DB.ContactsFile = strings.TrimSpace(os.Getenv("CONTACTS_FILE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = env.intOr("REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB = env.intOr("REDIS_DB", 0)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Telephony.Gateway = strings.ToLower(strings.TrimSpace(os.Getenv("TELEPHONY_GATEWAY")))
	c.Telephony.TwilioAccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Telephony.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Telephony.TwilioFromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Telephony.TwilioAPIBaseURL = strings.TrimSpace(os.Getenv("TWILIO_API_BASE_URL"))
	c.Telephony.TwilioRequestsPerSecond = env.floatOr("TWILIO_REQUESTS_PER_SECOND", 1)
	c.Telephony.MachineDetection = env.boolOr("TWILIO_MACHINE_DETECTION", true)
	c.Telephony.AssistantStreamURL = strings.TrimSpace(os.Getenv("ASSISTANT_STREAM_URL"))
	c.Telephony.OutcomeWebhookSecret = os.Getenv("OUTCOME_WEBHOOK_SECRET")
	c.Telephony.SimulatedDelay = env.durationOr("SIMULATED_CALL_DELAY", 2*time.Second)

	c.Dialer.MaxInFlight = env.intOr("DIALER_MAX_INFLIGHT", 10)
	c.Dialer.SlotsBackend = strings.ToLower(strings.TrimSpace(os.Getenv("DIALER_SLOTS_BACKEND")))
	c.Dialer.SlotTTL = env.durationOr("DIALER_SLOT_TTL", 0)
	c.Dialer.ResetZone = strings.TrimSpace(os.Getenv("DAILY_RESET_ZONE"))
	c.Dialer.StopCompletesCampaign = env.boolOr("STOP_COMPLETES_CAMPAIGN", true)
	c.Dialer.DefaultPhoneRegion = strings.ToUpper(strings.TrimSpace(os.Getenv("DEFAULT_PHONE_REGION")))
	c.Dialer.ShutdownGrace = env.durationOr("DIALER_SHUTDOWN_GRACE", 0)

	c.Log.File = strings.TrimSpace(os.Getenv("LOG_FILE"))
	c.Log.MaxSizeMB = env.intOr("LOG_MAX_SIZE_MB", 100)
	c.Log.MaxBackups = env.intOr("LOG_MAX_BACKUPS", 5)

	if err := joinErrors(env.errs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults and reports every invalid setting at once.
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

	errs = append(errs, c.validateDB()...)
	errs = append(errs, c.validateTelephony()...)
	errs = append(errs, c.validateDialer()...)

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
	}

	if c.Log.File != "" && (c.Log.MaxSizeMB <= 0 || c.Log.MaxBackups < 0) {
		errs = append(errs, errors.New("LOG_MAX_SIZE_MB must be > 0 and LOG_MAX_BACKUPS >= 0"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Backend == "" {
		c.DB.Backend = "postgres"
	}
	switch c.DB.Backend {
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_BACKEND=memory is not allowed in production"))
		}
		return errs
	case "postgres":
	default:
		return append(errs, fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", c.DB.Backend))
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
	if c.DB.SSLMode == "" {
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
	return errs
}

func (c *Config) validateTelephony() []error {
	var errs []error
	t := &c.Telephony
	if t.Gateway == "" {
		t.Gateway = "twilio"
	}
	switch t.Gateway {
	case "simulated":
		if c.IsProduction() {
			errs = append(errs, errors.New("TELEPHONY_GATEWAY=simulated is not allowed in production"))
		}
		if t.SimulatedDelay < 0 {
			errs = append(errs, errors.New("SIMULATED_CALL_DELAY must not be negative"))
		}
	case "twilio":
		if t.TwilioAccountSID == "" {
			errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
		}
		if t.TwilioAuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
		}
		if t.TwilioFromNumber == "" {
			errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required"))
		}
		if c.App.PublicBaseURL == "" {
			errs = append(errs, errors.New("PUBLIC_BASE_URL is required for twilio callbacks"))
		}
		if t.AssistantStreamURL == "" {
			errs = append(errs, errors.New("ASSISTANT_STREAM_URL is required"))
		}
		if t.TwilioRequestsPerSecond < 0 {
			errs = append(errs, errors.New("TWILIO_REQUESTS_PER_SECOND must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("TELEPHONY_GATEWAY must be twilio or simulated, got %q", t.Gateway))
	}
	if c.IsProduction() && t.OutcomeWebhookSecret == "" {
		errs = append(errs, errors.New("OUTCOME_WEBHOOK_SECRET is required in production"))
	}
	return errs
}

func (c *Config) validateDialer() []error {
	var errs []error
	d := &c.Dialer
	if d.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("DIALER_MAX_INFLIGHT must be > 0, got %d", d.MaxInFlight))
	}
	if d.SlotsBackend == "" {
		d.SlotsBackend = "local"
	}
	switch d.SlotsBackend {
	case "local":
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when DIALER_SLOTS_BACKEND=redis"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("DIALER_SLOTS_BACKEND must be local or redis, got %q", d.SlotsBackend))
	}
	if d.SlotTTL <= 0 {
		d.SlotTTL = 2 * time.Minute
	}
	if d.ShutdownGrace <= 0 {
		d.ShutdownGrace = 15 * time.Second
	}
	if d.ResetZone == "" {
		d.ResetZone = "campaign"
	}
	if d.ResetZone != "campaign" {
		if _, err := time.LoadLocation(d.ResetZone); err != nil {
			errs = append(errs, fmt.Errorf("DAILY_RESET_ZONE must be campaign or an IANA zone, got %q", d.ResetZone))
		}
	}
	if d.DefaultPhoneRegion == "" {
		d.DefaultPhoneRegion = "US"
	}
	return errs
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// envReader reads typed env values, collecting every parse error.
type envReader struct {
	errs []error
}

func (r *envReader) fail(err error) { r.errs = append(r.errs, err) }

func (r *envReader) requiredInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		r.fail(fmt.Errorf("%s is required", key))
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func (r *envReader) intOr(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("%s must be an integer, got %q", key, v))
		return def
	}
	return n
}

func (r *envReader) floatOr(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(fmt.Errorf("%s must be a number, got %q", key, v))
		return def
	}
	return f
}

func (r *envReader) boolOr(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(fmt.Errorf("%s must be a boolean, got %q", key, v))
		return def
	}
	return b
}

func (r *envReader) durationOr(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(fmt.Errorf("%s must be a duration, got %q", key, v))
		return def
	}
	return d
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
