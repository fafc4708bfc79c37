package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AppName is used for data directories and default config file names
const AppName = "catlux"

// Config holds all configuration options for the catlux downloader
type Config struct {
	// Site endpoints and credentials
	Catlux CatluxConfig `yaml:"catlux" toml:"catlux" json:"catlux"`

	// Monthly download budget
	Quota QuotaConfig `yaml:"quota" toml:"quota" json:"quota"`

	Output OutputConfig `yaml:"output" toml:"output" json:"output"`

	Download DownloadConfig `yaml:"download" toml:"download" json:"download"`

	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit"`

	Logging LoggingConfig `yaml:"logging" toml:"logging" json:"logging"`
}

// CatluxConfig holds site-specific configuration
type CatluxConfig struct {
	BaseURL    string `yaml:"base_url" toml:"base_url" json:"base_url"`
	LoginPath  string `yaml:"login_path" toml:"login_path" json:"login_path"`
	DefaultURL string `yaml:"default_url" toml:"default_url" json:"default_url"`
	Username   string `yaml:"username,omitempty" toml:"username,omitempty" json:"username,omitempty"`
	Password   string `yaml:"-" toml:"-" json:"-"`
	CertPath   string `yaml:"cert_path,omitempty" toml:"cert_path,omitempty" json:"cert_path,omitempty"`
	UserAgent  string `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	// Headers are sent with every request
	Headers map[string]string `yaml:"headers,omitempty" toml:"headers,omitempty" json:"headers,omitempty"`
}

// QuotaConfig holds the monthly limit and where the ledger lives
type QuotaConfig struct {
	MonthlyLimit  int    `yaml:"monthly_limit" toml:"monthly_limit" json:"monthly_limit"`
	TrackerFile   string `yaml:"tracker_file" toml:"tracker_file" json:"tracker_file"`
	WarnThreshold int    `yaml:"warn_threshold" toml:"warn_threshold" json:"warn_threshold"`
}

// OutputConfig holds destination configuration
type OutputConfig struct {
	SaveRoot string `yaml:"save_root" toml:"save_root" json:"save_root"`
	// DeriveFolders stores documents under <save_root>/<class>/<subject> taken from the category URL
	DeriveFolders bool `yaml:"derive_folders" toml:"derive_folders" json:"derive_folders"`
}

// DownloadConfig holds listing and fetch settings
type DownloadConfig struct {
	MaxPages       int    `yaml:"max_pages" toml:"max_pages" json:"max_pages"`
	PageParam      string `yaml:"page_param" toml:"page_param" json:"page_param"`
	TimeoutSeconds int    `yaml:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds"`
	Selection      string `yaml:"selection" toml:"selection" json:"selection"`
}

// RateLimitConfig holds request pacing and login retry configuration
type RateLimitConfig struct {
	RequestsPerMinute int     `yaml:"requests_per_minute" toml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int     `yaml:"burst_size" toml:"burst_size" json:"burst_size"`
	LoginAttempts     int     `yaml:"login_attempts" toml:"login_attempts" json:"login_attempts"`
	RetryDelaySeconds int     `yaml:"retry_delay_seconds" toml:"retry_delay_seconds" json:"retry_delay_seconds"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" toml:"backoff_multiplier" json:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
	File   string `yaml:"file" toml:"file" json:"file"`
}

// Timeout returns the per-attempt fetch bound
func (d DownloadConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// RetryDelay returns the initial login retry delay
func (r RateLimitConfig) RetryDelay() time.Duration {
	return time.Duration(r.RetryDelaySeconds) * time.Second
}

// LoginURL resolves the login path against the base URL
func (c CatluxConfig) LoginURL() string {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL + c.LoginPath
	}
	ref, err := url.Parse(c.LoginPath)
	if err != nil {
		return c.BaseURL + c.LoginPath
	}
	return base.ResolveReference(ref).String()
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Catlux: CatluxConfig{
			BaseURL:   "https://www.catlux.de/",
			LoginPath: "/login",
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
		Quota: QuotaConfig{
			MonthlyLimit:  100,
			TrackerFile:   filepath.Join(DataDir(), "download_tracker.json"),
			WarnThreshold: 10,
		},
		Output: OutputConfig{
			SaveRoot:      "./downloads",
			DeriveFolders: true,
		},
		Download: DownloadConfig{
			MaxPages:       10,
			PageParam:      "p",
			TimeoutSeconds: 30,
			Selection:      "ask",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
			BurstSize:         5,
			LoginAttempts:     3,
			RetryDelaySeconds: 2,
			BackoffMultiplier: 2.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = n
	}

	setString("CATLUX_USERNAME", &c.Catlux.Username)
	setString("CATLUX_PASSWORD", &c.Catlux.Password)
	setString("CATLUX_CERT_PATH", &c.Catlux.CertPath)
	setString("CATLUX_DEFAULT_URL", &c.Catlux.DefaultURL)
	setString("CATLUX_BASE_URL", &c.Catlux.BaseURL)
	setString("CATLUX_SAVE_PATH", &c.Output.SaveRoot)
	setString("CATLUX_TRACKER_FILE", &c.Quota.TrackerFile)
	setString("CATLUX_LOG_LEVEL", &c.Logging.Level)
	setString("CATLUX_LOG_FORMAT", &c.Logging.Format)

	setInt("CATLUX_MONTHLY_LIMIT", &c.Quota.MonthlyLimit)
	setInt("CATLUX_MAX_PAGES", &c.Download.MaxPages)
	setInt("CATLUX_TIMEOUT", &c.Download.TimeoutSeconds)
	setInt("CATLUX_REQUESTS_PER_MINUTE", &c.RateLimit.RequestsPerMinute)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML or TOML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	locations := []string{
		".catlux.yaml",
		".catlux.yml",
		".catlux.toml",
		filepath.Join(home, ".config", AppName, "config.yaml"),
		filepath.Join(home, ".config", AppName, "config.yml"),
		filepath.Join(home, ".config", AppName, "config.toml"),
		filepath.Join(home, ".catlux.yaml"),
		filepath.Join(home, ".catlux.toml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Catlux.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q is not an absolute URL", c.Catlux.BaseURL))
	}
	if c.Catlux.CertPath != "" {
		if _, err := os.Stat(c.Catlux.CertPath); err != nil {
			errs = append(errs, fmt.Errorf("certificate file %s: %w", c.Catlux.CertPath, err))
		}
	}

	if c.Quota.MonthlyLimit <= 0 {
		errs = append(errs, errors.New("monthly limit must be positive"))
	}
	if c.Quota.TrackerFile == "" {
		errs = append(errs, errors.New("tracker file is required"))
	}
	if c.Quota.WarnThreshold < 0 {
		errs = append(errs, errors.New("warn threshold cannot be negative"))
	}

	if c.Output.SaveRoot == "" {
		errs = append(errs, errors.New("save path is required"))
	}

	if c.Download.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Download.PageParam == "" {
		errs = append(errs, errors.New("page parameter is required"))
	}
	if c.Download.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		errs = append(errs, errors.New("burst size must be positive"))
	}
	if c.RateLimit.LoginAttempts <= 0 {
		errs = append(errs, errors.New("login attempts must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// RequireCredentials reports missing site credentials
func (c *Config) RequireCredentials() error {
	var errs []error
	if c.Catlux.Username == "" {
		errs = append(errs, errors.New("username is required (CATLUX_USERNAME or 'catlux auth login')"))
	}
	if c.Catlux.Password == "" {
		errs = append(errs, errors.New("password is required (CATLUX_PASSWORD or 'catlux auth login')"))
	}
	return errors.Join(errs...)
}

// Save saves the configuration to a file. The password is never written.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only flags the user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["url"].(string); ok && v != "" {
		c.Catlux.DefaultURL = v
	}
	if v, ok := flags["cert-path"].(string); ok && v != "" {
		c.Catlux.CertPath = v
	}
	if v, ok := flags["save-path"].(string); ok && v != "" {
		c.Output.SaveRoot = v
	}
	if v, ok := flags["flat"].(bool); ok && v {
		c.Output.DeriveFolders = false
	}
	if v, ok := flags["tracker-file"].(string); ok && v != "" {
		c.Quota.TrackerFile = v
	}
	if v, ok := flags["monthly-limit"].(int); ok && v > 0 {
		c.Quota.MonthlyLimit = v
	}
	if v, ok := flags["pages"].(int); ok && v > 0 {
		c.Download.MaxPages = v
	}
	if v, ok := flags["timeout"].(int); ok && v > 0 {
		c.Download.TimeoutSeconds = v
	}
	if v, ok := flags["select"].(string); ok && v != "" {
		c.Download.Selection = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-format"].(string); ok && v != "" {
		c.Logging.Format = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: command line flags > environment (including .env) > config file > defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	home, _ := os.UserHomeDir()
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(home, ".catlux.env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// DataDir returns the per-user data directory for the current OS
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppName)
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName)
		}
		return filepath.Join(home, "AppData", "Roaming", AppName)
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		return filepath.Join(home, ".local", "share", AppName)
	}
}
