// Package config loads server settings from defaults, an optional YAML file
// and CAPSULE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. CAPSULE_DATABASE_DSN.
const EnvPrefix = "CAPSULE_"

// RecipientCeiling is the most recipients the capsules table accepts
// (constraint capsules_recipient_cap).
const RecipientCeiling = 30

// PathEnvVar names the YAML file when no path is passed to Load.
const PathEnvVar = "CAPSULE_CONFIG"

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Capsule  CapsuleConfig  `koanf:"capsule"`
	Media    MediaConfig    `koanf:"media"`
	Notify   NotifyConfig   `koanf:"notify"`
	Events   EventsConfig   `koanf:"events"`
	Sweep    SweepConfig    `koanf:"sweep"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	GRPCAddr        string        `koanf:"grpc_addr"`
	MetricsAddr     string        `koanf:"metrics_addr"`
	TLSCert         string        `koanf:"tls_cert"`
	TLSKey          string        `koanf:"tls_key"`
	Reflection      bool          `koanf:"reflection"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver  string `koanf:"driver"` // postgres | memory
	DSN     string `koanf:"dsn"`
	Migrate bool   `koanf:"migrate"`
}

type AuthConfig struct {
	JWTKey string        `koanf:"jwt_key"`
	Leeway time.Duration `koanf:"leeway"`
}

type CapsuleConfig struct {
	MinLead       time.Duration `koanf:"min_lead"`
	MaxRecipients int           `koanf:"max_recipients"`
	CreateQuota   int           `koanf:"create_quota"` // 0 disables
	CreateWindow  time.Duration `koanf:"create_window"`
}

type MediaConfig struct {
	MaxItems      int    `koanf:"max_items"`
	MaxImageMB    int64  `koanf:"max_image_mb"`
	MaxVideoMB    int64  `koanf:"max_video_mb"`
	S3Bucket      string `koanf:"s3_bucket"` // empty disables uploads
	S3Region      string `koanf:"s3_region"`
	S3Endpoint    string `koanf:"s3_endpoint"`
	S3AccessKey   string `koanf:"s3_access_key"`
	S3SecretKey   string `koanf:"s3_secret_key"`
	PublicBaseURL string `koanf:"public_base_url"`
}

type NotifyConfig struct {
	Driver          string        `koanf:"driver"` // log | smtp
	Parallelism     int           `koanf:"parallelism"`
	SendTimeout     time.Duration `koanf:"send_timeout"`
	ViewURL         string        `koanf:"view_url"`
	SMTPHost        string        `koanf:"smtp_host"`
	SMTPPort        int           `koanf:"smtp_port"`
	SMTPUsername    string        `koanf:"smtp_username"`
	SMTPPassword    string        `koanf:"smtp_password"`
	SMTPFrom        string        `koanf:"smtp_from"`
	SMTPStartTLS    bool          `koanf:"smtp_starttls"`
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type EventsConfig struct {
	Buffer        int64         `koanf:"buffer"`
	MaxRetries    int           `koanf:"max_retries"`
	RetryInterval time.Duration `koanf:"retry_interval"`
}

type SweepConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Interval    time.Duration `koanf:"interval"`
	BatchSize   int           `koanf:"batch_size"`
	Parallelism int           `koanf:"parallelism"`
}

type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCAddr:        ":8443",
			MetricsAddr:     ":9090",
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{Driver: "postgres", Migrate: true},
		Auth:     AuthConfig{Leeway: 30 * time.Second},
		Capsule: CapsuleConfig{
			MinLead:       time.Hour,
			MaxRecipients: RecipientCeiling,
			CreateWindow:  time.Hour,
		},
		Media: MediaConfig{MaxItems: 10, MaxImageMB: 10, MaxVideoMB: 50, S3Region: "us-east-1"},
		Notify: NotifyConfig{
			Driver:          "log",
			Parallelism:     8,
			SendTimeout:     30 * time.Second,
			SMTPPort:        587,
			SMTPStartTLS:    true,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Events: EventsConfig{Buffer: 256, MaxRetries: 3, RetryInterval: 500 * time.Millisecond},
		Sweep:  SweepConfig{Enabled: true, Interval: time.Minute, BatchSize: 100, Parallelism: 4},
		Log:    LogConfig{Level: "info"},
	}
}

// Load layers defaults, the YAML file at path (or $CAPSULE_CONFIG) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// envKey maps CAPSULE_NOTIFY_SMTP_HOST to notify.smtp_host.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) { problems = append(problems, fmt.Errorf(format, args...)) }

	if c.Server.GRPCAddr == "" {
		add("server.grpc_addr is required")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		add("server.tls_cert and server.tls_key must be set together")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			add("database.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		add("database.driver %q is not one of postgres, memory", c.Database.Driver)
	}
	if len(c.Auth.JWTKey) < 16 {
		add("auth.jwt_key must be at least 16 bytes")
	}
	if c.Capsule.MinLead <= 0 {
		add("capsule.min_lead must be positive")
	}
	if c.Capsule.MaxRecipients <= 0 || c.Capsule.MaxRecipients > RecipientCeiling {
		add("capsule.max_recipients must be between 1 and %d", RecipientCeiling)
	}
	if c.Capsule.CreateQuota < 0 {
		add("capsule.create_quota must not be negative")
	}
	if c.Media.MaxItems <= 0 || c.Media.MaxImageMB <= 0 || c.Media.MaxVideoMB <= 0 {
		add("media limits must be positive")
	}
	switch c.Notify.Driver {
	case "log":
	case "smtp":
		if c.Notify.SMTPHost == "" || c.Notify.SMTPFrom == "" {
			add("notify.smtp_host and notify.smtp_from are required for the smtp driver")
		}
	default:
		add("notify.driver %q is not one of log, smtp", c.Notify.Driver)
	}
	if c.Sweep.Enabled && c.Sweep.Interval <= 0 {
		add("sweep.interval must be positive")
	}
	return errors.Join(problems...)
}
