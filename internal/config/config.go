package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the YAML file read when CONFIG_FILE is not set
const DefaultConfigFile = "relay.yaml"

// Config holds the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// GitHub webhook configuration
	GitHub GitHubConfig `yaml:"github"`

	// Slack delivery configuration
	Slack SlackConfig `yaml:"slack"`

	// Configuration repository
	Repository RepositoryConfig `yaml:"repository"`

	// Automation engine
	Automation AutomationConfig `yaml:"automation"`

	// Impact detection rules
	Impact ImpactConfig `yaml:"impact"`

	// Diff excerpt fetching
	Diff DiffConfig `yaml:"diff"`

	// WhatsApp delivery configuration
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`

	// OpenTelemetry configuration
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json", "text" or "auto"
}

// GitHubConfig holds GitHub webhook configuration
type GitHubConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
	// VerifySignature disables signature checks only when explicitly false
	VerifySignature bool `yaml:"verify_signature"`
}

// SlackConfig holds Slack incoming webhook configuration
type SlackConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	SuccessColor string        `yaml:"success_color"`
	FailureColor string        `yaml:"failure_color"`
	Timeout      time.Duration `yaml:"timeout"`
}

// RepositoryConfig describes the configuration repository and its working copy
type RepositoryConfig struct {
	URL     string `yaml:"url"`
	WorkDir string `yaml:"workdir"`
	Dir     string `yaml:"dir"` // defaults to the last segment of URL
}

// AutomationConfig describes the automation engine invocation
type AutomationConfig struct {
	Playbook  string `yaml:"playbook"`
	RunnerBin string `yaml:"runner_bin"`
	GitBin    string `yaml:"git_bin"`
}

// ImpactConfig holds the paths that decide whether a push matters
type ImpactConfig struct {
	GlobalPath   string `yaml:"global_path"`
	TargetPrefix string `yaml:"target_prefix"`
}

// DiffConfig holds configuration for fetching compare patches
type DiffConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// WhatsAppConfig holds WhatsApp-specific configuration
type WhatsAppConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Recipient  string `yaml:"recipient"` // JID that receives reports
	DBDriver   string `yaml:"db_driver"`
	DBDSN      string `yaml:"db_dsn"`
	LogLevel   string `yaml:"log_level"`
	DeviceName string `yaml:"device_name"` // name shown in WhatsApp linked devices
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// RateLimitConfig holds per-client rate limiting configuration.
// GitHub delivers from a shared address pool, so the limit is generous;
// zero turns limiting off.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Enabled reports whether webhook requests are rate limited
func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerMinute > 0
}

// Defaults returns the configuration used when nothing is set
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    25 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		GitHub: GitHubConfig{
			VerifySignature: true,
		},
		Slack: SlackConfig{
			SuccessColor: "#05eb2f",
			FailureColor: "#f00216",
			Timeout:      10 * time.Second,
		},
		Repository: RepositoryConfig{
			WorkDir: ".",
		},
		Automation: AutomationConfig{
			Playbook:  "site.yml",
			RunnerBin: "ansible-runner",
			GitBin:    "git",
		},
		Impact: ImpactConfig{
			GlobalPath:   "group_vars/all/vlans.yaml",
			TargetPrefix: "host_vars/",
		},
		Diff: DiffConfig{
			Timeout: 10 * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			DBDriver:   "sqlite3",
			DBDSN:      "file:whatsapp.db?_foreign_keys=on",
			LogLevel:   "INFO",
			DeviceName: "netconf-relay",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "netconf-relay",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
		},
	}
}

// Load loads configuration using the hierarchy defaults < YAML < environment.
// The YAML path comes from CONFIG_FILE, falling back to DefaultConfigFile.
func Load() (*Config, error) {
	// Try to load .env file (ignore errors - it's optional)
	_ = godotenv.Load(".env")

	return LoadFrom(getEnv("CONFIG_FILE", DefaultConfigFile))
}

// LoadFrom loads configuration from the given YAML path and the environment.
// A missing YAML file is not an error.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadYAML(cfg *Config, yamlPath string) error {
	if yamlPath == "" {
		return nil
	}

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", yamlPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", yamlPath, err)
	}

	return nil
}

// loadEnv overlays environment variables; only non-empty values override.
func loadEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.MaxBodyBytes = int64(getEnvAsInt("SERVER_MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.GitHub.WebhookSecret = getEnv("GITHUB_WEBHOOK_SECRET", cfg.GitHub.WebhookSecret)
	cfg.GitHub.VerifySignature = getEnvAsBool("GITHUB_VERIFY_SIGNATURE", cfg.GitHub.VerifySignature)

	cfg.Slack.WebhookURL = getEnv("SLACK_WEBHOOK_URL", cfg.Slack.WebhookURL)
	cfg.Slack.SuccessColor = getEnv("SLACK_COLOR_SUCCESS", cfg.Slack.SuccessColor)
	cfg.Slack.FailureColor = getEnv("SLACK_COLOR_FAILURE", cfg.Slack.FailureColor)
	cfg.Slack.Timeout = getEnvAsDuration("SLACK_TIMEOUT", cfg.Slack.Timeout)

	cfg.Repository.URL = getEnv("REPO_URL", cfg.Repository.URL)
	cfg.Repository.WorkDir = getEnv("REPO_WORKDIR", cfg.Repository.WorkDir)
	cfg.Repository.Dir = getEnv("REPO_DIR", cfg.Repository.Dir)

	cfg.Automation.Playbook = getEnv("ANSIBLE_PLAYBOOK", cfg.Automation.Playbook)
	cfg.Automation.RunnerBin = getEnv("ANSIBLE_RUNNER_BIN", cfg.Automation.RunnerBin)
	cfg.Automation.GitBin = getEnv("GIT_BIN", cfg.Automation.GitBin)

	cfg.Impact.GlobalPath = getEnv("IMPACT_GLOBAL_PATH", cfg.Impact.GlobalPath)
	cfg.Impact.TargetPrefix = getEnv("IMPACT_TARGET_PREFIX", cfg.Impact.TargetPrefix)

	cfg.Diff.Timeout = getEnvAsDuration("DIFF_TIMEOUT", cfg.Diff.Timeout)

	cfg.WhatsApp.Enabled = getEnvAsBool("WHATSAPP_ENABLED", cfg.WhatsApp.Enabled)
	cfg.WhatsApp.Recipient = getEnv("WHATSAPP_RECIPIENT", cfg.WhatsApp.Recipient)
	cfg.WhatsApp.DBDriver = getEnv("DB_DRIVER", cfg.WhatsApp.DBDriver)
	cfg.WhatsApp.DBDSN = getEnv("DB_DSN", cfg.WhatsApp.DBDSN)
	cfg.WhatsApp.LogLevel = getEnv("WHATSAPP_LOG_LEVEL", cfg.WhatsApp.LogLevel)
	cfg.WhatsApp.DeviceName = getEnv("WHATSAPP_DEVICE_NAME", cfg.WhatsApp.DeviceName)

	cfg.Telemetry.Enabled = getEnvAsBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)

	cfg.RateLimit.RequestsPerMinute = getEnvAsInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimit.RequestsPerMinute)
}

// Validate validates the configuration.
// The webhook secret and repository URL are checked per request so that a
// partially configured relay still answers pings and health checks.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body size must be positive")
	}

	if c.Slack.Timeout <= 0 || c.Diff.Timeout <= 0 {
		return fmt.Errorf("outbound timeouts must be positive")
	}

	if c.Automation.Playbook == "" {
		return fmt.Errorf("automation playbook is required")
	}

	if c.Impact.GlobalPath == "" && c.Impact.TargetPrefix == "" {
		return fmt.Errorf("at least one of impact global path or target prefix is required")
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("invalid rate limit: %d", c.RateLimit.RequestsPerMinute)
	}

	if c.WhatsApp.Enabled {
		if c.WhatsApp.Recipient == "" {
			return fmt.Errorf("whatsapp recipient is required when whatsapp is enabled")
		}
		if c.WhatsApp.DBDriver == "" || c.WhatsApp.DBDSN == "" {
			return fmt.Errorf("whatsapp session database driver and DSN are required")
		}
	}

	return nil
}

// Address returns the server address in the format host:port
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RepoPath returns the on-disk location of the working copy, or "" when
// neither a directory nor a repository URL names one. It never resolves to
// the work directory itself.
func (r *RepositoryConfig) RepoPath() string {
	dir := r.Dir
	if dir == "" && r.URL != "" {
		dir = strings.TrimSuffix(path.Base(strings.TrimRight(r.URL, "/")), ".git")
	}

	switch filepath.Clean(dir) {
	case ".", "..", string(filepath.Separator):
		return ""
	}
	return filepath.Join(r.WorkDir, dir)
}

// Helper functions to get environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
