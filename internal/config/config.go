package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the project config file looked up at the repository root.
const FileName = "briefship.yaml"

// Notification modes for Notify.When.
const (
	NotifyAlways  = "always"
	NotifyFailure = "failure"
	NotifyNever   = "never"
)

// Defaults applied by Load before the file is decoded.
const (
	DefaultRemote       = "origin"
	DefaultAppDir       = "/home/ec2-user/app"
	DefaultRunAs        = "ec2-user"
	DefaultComposeFile  = "docker-compose.yml"
	DefaultPollInterval = 5 * time.Second
	DefaultTimeout      = 10 * time.Minute
	DefaultLogTail      = 50
	DefaultEnvFile      = ".env"
	DefaultHistoryDir   = ".briefship/history"
	DefaultTokenEnv     = "BRIEFSHIP_TELEGRAM_TOKEN"
)

// Config describes where and how the bot is deployed.
type Config struct {
	InstanceID   string        `yaml:"instance_id" json:"instance_id"`
	Region       string        `yaml:"region,omitempty" json:"region,omitempty"`
	Profile      string        `yaml:"profile,omitempty" json:"profile,omitempty"`
	Remote       string        `yaml:"remote" json:"remote"`
	Branch       string        `yaml:"branch,omitempty" json:"branch,omitempty"`
	AppDir       string        `yaml:"app_dir" json:"app_dir"`
	RunAs        string        `yaml:"run_as" json:"run_as"`
	ComposeFile  string        `yaml:"compose_file" json:"compose_file"`
	Services     []string      `yaml:"services,omitempty" json:"services,omitempty"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	LogTail      int           `yaml:"log_tail" json:"log_tail"`
	EnvFile      string        `yaml:"env_file" json:"env_file"`
	RequiredEnv  []string      `yaml:"required_env" json:"required_env"`
	HistoryDir   string        `yaml:"history_dir" json:"history_dir"`
	SentryDSN    string        `yaml:"sentry_dsn,omitempty" json:"sentry_dsn,omitempty"`
	Notify       Notify        `yaml:"notify" json:"notify"`

	// Path is the file the config was read from; empty for defaults.
	Path string `yaml:"-" json:"-"`
}

// Notify configures post-deploy notifications.
type Notify struct {
	When     string         `yaml:"when" json:"when"`
	Telegram TelegramNotify `yaml:"telegram" json:"telegram"`
}

// TelegramNotify names the chat to post to and the env var holding the bot token.
type TelegramNotify struct {
	ChatID   int64  `yaml:"chat_id,omitempty" json:"chat_id,omitempty"`
	TokenEnv string `yaml:"token_env" json:"token_env"`
}

// Token returns the Telegram bot token from the configured env var.
func (t TelegramNotify) Token() string {
	return os.Getenv(t.TokenEnv)
}

// Enabled reports whether a chat and a token are both available.
func (t TelegramNotify) Enabled() bool {
	return t.ChatID != 0 && t.Token() != ""
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Remote:       DefaultRemote,
		AppDir:       DefaultAppDir,
		RunAs:        DefaultRunAs,
		ComposeFile:  DefaultComposeFile,
		PollInterval: DefaultPollInterval,
		Timeout:      DefaultTimeout,
		LogTail:      DefaultLogTail,
		EnvFile:      DefaultEnvFile,
		RequiredEnv:  []string{"TELEGRAM_BOT_TOKEN"},
		HistoryDir:   DefaultHistoryDir,
		Notify: Notify{
			When:     NotifyFailure,
			Telegram: TelegramNotify{TokenEnv: DefaultTokenEnv},
		},
	}
}

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// Load reads the config at path on top of the defaults, then applies
// environment overrides. A missing file yields ErrNotFound together with
// the defaults (env overrides applied) so callers may continue.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		cfg.ApplyEnv()
		if errors.Is(err, os.ErrNotExist) {
			return cfg, ErrNotFound
		}
		return cfg, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Path = path
	cfg.ApplyEnv()
	return cfg, nil
}

// PathIn returns the config path inside dir.
func PathIn(dir string) string {
	return filepath.Join(dir, FileName)
}

// ApplyEnv overrides fields from BRIEFSHIP_* and AWS_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BRIEFSHIP_INSTANCE_ID"); v != "" {
		c.InstanceID = v
	}
	c.Region = firstNonEmpty(os.Getenv("BRIEFSHIP_REGION"), c.Region, os.Getenv("AWS_REGION"))
	c.Profile = firstNonEmpty(os.Getenv("BRIEFSHIP_PROFILE"), c.Profile, os.Getenv("AWS_PROFILE"))
	if v := os.Getenv("BRIEFSHIP_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notify.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		c.SentryDSN = v
	}
}

// Validate checks the fields a deploy cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.InstanceID == "" {
		errs = append(errs, errors.New("instance_id is required (or set BRIEFSHIP_INSTANCE_ID)"))
	}
	if c.AppDir == "" {
		errs = append(errs, errors.New("app_dir must not be empty"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	} else if c.PollInterval >= c.Timeout {
		errs = append(errs, fmt.Errorf("poll_interval (%s) must be shorter than timeout (%s)", c.PollInterval, c.Timeout))
	}
	if c.LogTail < 0 {
		errs = append(errs, fmt.Errorf("log_tail must not be negative, got %d", c.LogTail))
	}
	switch c.Notify.When {
	case NotifyAlways, NotifyFailure, NotifyNever:
	default:
		errs = append(errs, fmt.Errorf("notify.when must be always, failure or never, got %q", c.Notify.When))
	}
	return errors.Join(errs...)
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
