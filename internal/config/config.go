package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "HOOKWATCH"

type Config struct {
	Addr         string        `mapstructure:"addr"`
	DevInsecure  bool          `mapstructure:"dev_insecure"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	DBDriver   string        `mapstructure:"db_driver"`
	DBDSN      string        `mapstructure:"db_dsn"`
	DBDialect  string        `mapstructure:"db_dialect"`
	DBMigrate  bool          `mapstructure:"db_migrate"`
	DBTimeout  time.Duration `mapstructure:"db_timeout"`
	DBHost     string        `mapstructure:"db_host"`
	DBPort     string        `mapstructure:"db_port"`
	DBName     string        `mapstructure:"db_name"`
	DBUser     string        `mapstructure:"db_user"`
	DBPassword string        `mapstructure:"db_password"`

	// DBFallbackMemory switches to the in-memory store when the database
	// cannot be reached at startup. Events stored that way are lost on restart.
	DBFallbackMemory bool `mapstructure:"db_fallback_memory"`

	GitHub    GitHubConfig    `mapstructure:"github"`
	DB        DBTLSConfig     `mapstructure:"db"`
	TLS       TLSConfig       `mapstructure:"tls"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type GitHubConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type DBTLSConfig struct {
	SSLMode     string `mapstructure:"sslmode"`
	SSLRootCert string `mapstructure:"sslrootcert"`
	SSLCert     string `mapstructure:"sslcert"`
	SSLKey      string `mapstructure:"sslkey"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	WebhookPerMinute int  `mapstructure:"webhook_per_min"`
	ReadPerMinute    int  `mapstructure:"read_per_min"`

	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For header is
	// believed when identifying the client.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

var defaults = map[string]interface{}{
	"addr":                       ":8080",
	"dev_insecure":               false,
	"poll_interval":              15 * time.Second,
	"db_driver":                  "",
	"db_dsn":                     "",
	"db_dialect":                 "",
	"db_migrate":                 true,
	"db_timeout":                 5 * time.Second,
	"db_fallback_memory":         false,
	"db_host":                    "",
	"db_port":                    "",
	"db_name":                    "",
	"db_user":                    "",
	"db_password":                "",
	"github.webhook_secret":      "",
	"db.sslmode":                 "",
	"db.sslrootcert":             "",
	"db.sslcert":                 "",
	"db.sslkey":                  "",
	"tls.enabled":                false,
	"tls.cert_file":              "",
	"tls.key_file":               "",
	"rate_limit.enabled":         false,
	"rate_limit.webhook_per_min": 600,
	"rate_limit.read_per_min":    600,
	"rate_limit.trusted_proxies": []string{},
	"log.level":                  "info",
	"log.development":            false,
}

// LoadFromEnv reads HOOKWATCH_* variables and an optional config.yaml from
// the working directory or /etc/hookwatch/. Environment wins over the file.
func LoadFromEnv() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	// GitHub's own docs name this variable without a prefix.
	_ = v.BindEnv("github.webhook_secret", EnvPrefix+"_GITHUB_WEBHOOK_SECRET", "GITHUB_WEBHOOK_SECRET")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hookwatch/")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.DBDriver = strings.TrimSpace(cfg.DBDriver)
	if cfg.DBDialect == "" {
		cfg.DBDialect = dialectForDriver(cfg.DBDriver)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = buildDSNFromParts(cfg)
	}
	return cfg, nil
}

func dialectForDriver(driver string) string {
	switch strings.ToLower(driver) {
	case "pgx", "postgres", "postgresql":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	}
	return driver
}

func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "HOOKWATCH_ADDR must not be empty")
	}
	if strings.TrimSpace(c.GitHub.WebhookSecret) == "" && !c.DevInsecure {
		problems = append(problems, "webhook secret is not configured; set GITHUB_WEBHOOK_SECRET, or explicitly set HOOKWATCH_DEV_INSECURE=true for local development only")
	}
	if c.DBDriver != "" && c.DBDSN == "" {
		problems = append(problems, "database connection is not configured; set HOOKWATCH_DB_DSN or HOOKWATCH_DB_HOST/HOOKWATCH_DB_PORT/HOOKWATCH_DB_NAME/HOOKWATCH_DB_USER/HOOKWATCH_DB_PASSWORD")
	}
	if c.DBDSN != "" && c.DBDriver == "" {
		problems = append(problems, "HOOKWATCH_DB_DRIVER is required when HOOKWATCH_DB_DSN is set")
	}
	if c.DBDSN == "" && hasAnyDBParts(c) && !hasAllDBParts(c) {
		problems = append(problems, "incomplete split DB config; set all of HOOKWATCH_DB_HOST/HOOKWATCH_DB_PORT/HOOKWATCH_DB_NAME/HOOKWATCH_DB_USER/HOOKWATCH_DB_PASSWORD")
	}
	if c.DBDriver != "" && c.DBDialect != "postgres" && c.DBDialect != "sqlite" {
		problems = append(problems, "HOOKWATCH_DB_DIALECT must be postgres or sqlite")
	}
	if c.DBTimeout <= 0 {
		problems = append(problems, "HOOKWATCH_DB_TIMEOUT must be positive")
	}
	if c.PollInterval < time.Second {
		problems = append(problems, "HOOKWATCH_POLL_INTERVAL must be at least 1s")
	}
	for _, p := range c.RateLimit.TrustedProxies {
		if !validProxy(p) {
			problems = append(problems, fmt.Sprintf("HOOKWATCH_RATE_LIMIT_TRUSTED_PROXIES entry %q is not an IP or CIDR", p))
		}
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.CertFile) == "" {
		problems = append(problems, "HOOKWATCH_TLS_CERT_FILE is required when HOOKWATCH_TLS_ENABLED=true")
	}
	if c.TLS.Enabled && strings.TrimSpace(c.TLS.KeyFile) == "" {
		problems = append(problems, "HOOKWATCH_TLS_KEY_FILE is required when HOOKWATCH_TLS_ENABLED=true")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

type StartupSummary struct {
	RepositoryMode      string
	SignatureConfigured bool
	DBMigrate           bool
	DBTimeout           string
	PollInterval        string
	TLSEnabled          bool
	RateLimit           bool
	FallbackMemory      bool
	DevInsecure         bool
}

func (c Config) RepositoryMode() string {
	if c.DBDriver != "" && c.DBDSN != "" {
		return "sql:" + c.DBDialect
	}
	return "memory"
}

func (c Config) Summary() StartupSummary {
	return StartupSummary{
		RepositoryMode:      c.RepositoryMode(),
		SignatureConfigured: strings.TrimSpace(c.GitHub.WebhookSecret) != "",
		DBMigrate:           c.DBMigrate,
		DBTimeout:           c.DBTimeout.String(),
		PollInterval:        c.PollInterval.String(),
		TLSEnabled:          c.TLS.Enabled,
		RateLimit:           c.RateLimit.Enabled,
		FallbackMemory:      c.DBFallbackMemory,
		DevInsecure:         c.DevInsecure,
	}
}

func hasAnyDBParts(c Config) bool {
	return strings.TrimSpace(c.DBHost) != "" ||
		strings.TrimSpace(c.DBPort) != "" ||
		strings.TrimSpace(c.DBName) != "" ||
		strings.TrimSpace(c.DBUser) != "" ||
		strings.TrimSpace(c.DBPassword) != ""
}

func hasAllDBParts(c Config) bool {
	return strings.TrimSpace(c.DBHost) != "" &&
		strings.TrimSpace(c.DBPort) != "" &&
		strings.TrimSpace(c.DBName) != "" &&
		strings.TrimSpace(c.DBUser) != "" &&
		strings.TrimSpace(c.DBPassword) != ""
}

func buildDSNFromParts(c Config) string {
	if !hasAllDBParts(c) {
		return ""
	}
	port := strings.TrimSpace(c.DBPort)
	if _, err := strconv.Atoi(port); err != nil {
		return ""
	}
	sslMode := strings.TrimSpace(c.DB.SSLMode)
	if sslMode == "" {
		sslMode = "disable"
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%s", c.DBHost, port),
		Path:   "/" + url.PathEscape(c.DBName),
	}
	q := url.Values{}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func validProxy(in string) bool {
	in = strings.TrimSpace(in)
	if _, err := netip.ParsePrefix(in); err == nil {
		return true
	}
	_, err := netip.ParseAddr(in)
	return err == nil
}
