package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverSQLite    = "sqlite"
	DriverFirestore = "firestore"
)

type Config struct {
	Store    StoreSettings    `mapstructure:"store"`
	Twilio   TwilioSettings   `mapstructure:"twilio"`
	SendGrid SendGridSettings `mapstructure:"sendgrid"`
	Notify   NotifySettings   `mapstructure:"notify"`
	Selector SelectorSettings `mapstructure:"selector"`
	Jobs     JobsSettings     `mapstructure:"jobs"`
	Summary  SummarySettings  `mapstructure:"summary"`
	Server   ServerSettings   `mapstructure:"server"`
	Log      LogSettings      `mapstructure:"log"`
}

// StoreSettings picks the document store backend
type StoreSettings struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`       // sqlite file
	ProjectID string `mapstructure:"project_id"` // firestore project
}

type TwilioSettings struct {
	AccountSID string        `mapstructure:"account_sid"`
	AuthToken  string        `mapstructure:"auth_token"`
	From       string        `mapstructure:"from"`
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type SendGridSettings struct {
	APIKey    string        `mapstructure:"api_key"`
	FromEmail string        `mapstructure:"from_email"`
	FromName  string        `mapstructure:"from_name"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// NotifySettings is the delivery retry policy: fixed attempts, fixed delay
type NotifySettings struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

type SelectorSettings struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	Budget          time.Duration `mapstructure:"budget"`
	ExhaustiveLimit int           `mapstructure:"exhaustive_limit"`
}

type JobsSettings struct {
	Concurrency int `mapstructure:"concurrency"`
}

type SummarySettings struct {
	Window  time.Duration `mapstructure:"window"`
	Subject string        `mapstructure:"subject"`
}

type ServerSettings struct {
	Port int `mapstructure:"port"`
}

type LogSettings struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"` // empty keeps the mode's default
}

// DefaultDir is where config and the sqlite database live by default
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".whattowear"
	}
	return filepath.Join(home, ".whattowear")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", filepath.Join(DefaultDir(), "whattowear.db"))
	v.SetDefault("store.project_id", "")

	// every key needs a default so AutomaticEnv sees it on Unmarshal
	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from", "")
	v.SetDefault("twilio.base_url", "https://api.twilio.com/2010-04-01")
	v.SetDefault("twilio.timeout", 30*time.Second)
	v.SetDefault("sendgrid.api_key", "")
	v.SetDefault("sendgrid.from_email", "")
	v.SetDefault("sendgrid.from_name", "What to Wear")
	v.SetDefault("sendgrid.base_url", "https://api.sendgrid.com")
	v.SetDefault("sendgrid.timeout", 30*time.Second)
	v.SetDefault("selector.budget", time.Duration(0))
	v.SetDefault("notify.attempts", 3)
	v.SetDefault("notify.delay", 5*time.Second)
	v.SetDefault("selector.max_attempts", 1000)
	v.SetDefault("selector.exhaustive_limit", 4096)
	v.SetDefault("jobs.concurrency", 4)
	v.SetDefault("summary.window", 90*24*time.Hour)
	v.SetDefault("summary.subject", "Your wardrobe summary")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.mode", "development")
	v.SetDefault("log.level", "")
}

// Load reads the config file (if any) and WTW_ environment overrides.
// An empty path searches DefaultDir for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(DefaultDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WTW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable zero value
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for sqlite driver")
		}
	case DriverFirestore:
		if c.Store.ProjectID == "" {
			return fmt.Errorf("store.project_id required for firestore driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Notify.Attempts < 1 {
		return fmt.Errorf("notify.attempts must be at least 1")
	}
	if c.Jobs.Concurrency < 1 {
		return fmt.Errorf("jobs.concurrency must be at least 1")
	}
	return nil
}
