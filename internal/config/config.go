package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBaseURL is the partner API the desktop client talks to
const DefaultBaseURL = "https://claygrounds-6d703322b3bc.herokuapp.com"

// Config holds all application configuration
type Config struct {
	API      APIConfig      `yaml:"api"`
	Polling  PollingConfig  `yaml:"polling"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	History  HistoryConfig  `yaml:"history"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Upload   UploadConfig   `yaml:"upload"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// APIConfig holds the partner API location and transport settings
type APIConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Endpoints      Endpoints         `yaml:"endpoints"`
	DefaultHeaders map[string]string `yaml:"default_headers"`
	Timeout        time.Duration     `yaml:"timeout"`
	RetryCount     int               `yaml:"retry_count"`
	RetryWait      time.Duration     `yaml:"retry_wait"`
	RetryMaxWait   time.Duration     `yaml:"retry_max_wait"`
}

// Endpoints maps every remote operation to its path
type Endpoints struct {
	SignIn     string `yaml:"sign_in"`
	Process    string `yaml:"process"`
	Progress   string `yaml:"progress"` // the operation id is appended
	ValidFiles string `yaml:"valid_files"`
	Upload     string `yaml:"upload"`
	Stats      string `yaml:"stats"`
	Health     string `yaml:"health"`
	Venues     string `yaml:"venues"`
}

// PollingConfig controls the progress poller cadence
type PollingConfig struct {
	RunningInterval  time.Duration `yaml:"running_interval"`
	IdleInterval     time.Duration `yaml:"idle_interval"`
	ErrorInterval    time.Duration `yaml:"error_interval"`
	MaxErrorInterval time.Duration `yaml:"max_error_interval"`
	MaxErrorElapsed  time.Duration `yaml:"max_error_elapsed"` // 0 retries forever
}

// RefreshConfig holds dashboard refresh intervals
type RefreshConfig struct {
	Stats  time.Duration `yaml:"stats"`
	Health time.Duration `yaml:"health"`
}

// HistoryConfig bounds the local summary cache
type HistoryConfig struct {
	Capacity int           `yaml:"capacity"`
	Expiry   time.Duration `yaml:"expiry"`
}

// WorkflowConfig tunes the report generation workflow
type WorkflowConfig struct {
	AutoReturnAfterEmail bool          `yaml:"auto_return_after_email"`
	AutoReturnDelay      time.Duration `yaml:"auto_return_delay"`
	ClosePolicy          string        `yaml:"close_policy"` // preserve or refuse
}

// UploadConfig restricts what booking files may be uploaded
type UploadConfig struct {
	MaxBytes   int64    `yaml:"max_bytes"`
	Extensions []string `yaml:"extensions"`
}

// DatabaseConfig holds the local store connection details
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// LogConfig selects logger level and format
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Endpoints: Endpoints{
				SignIn:     "/api/hudle/reports/email",
				Process:    "/api/hudle/reports/process",
				Progress:   "/api/progress",
				ValidFiles: "/api/storage/bookings/files/valid",
				Upload:     "/api/storage/bookings/upload",
				Stats:      "/api/hudle/admins/status",
				Health:     "/api/db/health",
				Venues:     "/api/hudle/global/data-health",
			},
			DefaultHeaders: map[string]string{
				"Content-Type": "application/json",
				"Accept":       "application/json",
			},
			Timeout:      60 * time.Second,
			RetryCount:   3,
			RetryWait:    500 * time.Millisecond,
			RetryMaxWait: 2 * time.Second,
		},
		Polling: PollingConfig{
			RunningInterval:  750 * time.Millisecond,
			IdleInterval:     2 * time.Second,
			ErrorInterval:    5 * time.Second,
			MaxErrorInterval: 60 * time.Second,
			MaxErrorElapsed:  10 * time.Minute,
		},
		Refresh: RefreshConfig{
			Stats:  30 * time.Second,
			Health: 15 * time.Second,
		},
		History: HistoryConfig{
			Capacity: 5,
			Expiry:   10 * time.Minute,
		},
		Workflow: WorkflowConfig{
			AutoReturnAfterEmail: true,
			AutoReturnDelay:      3 * time.Second,
			ClosePolicy:          "preserve",
		},
		Upload: UploadConfig{
			MaxBytes:   50 * 1024 * 1024,
			Extensions: []string{".xlsx", ".xls", ".csv"},
		},
		Database: DatabaseConfig{
			URL:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file and the environment, in that order of precedence (last wins).
// An empty path falls back to CLAYGROUNDS_CONFIG.
func Load(path string) (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv("CLAYGROUNDS_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("CLAYGROUNDS_API_URL", c.API.BaseURL)
	c.API.Timeout = getEnvDuration("CLAYGROUNDS_API_TIMEOUT", c.API.Timeout)
	c.API.RetryCount = getEnvInt("CLAYGROUNDS_API_RETRY_COUNT", c.API.RetryCount)

	c.Polling.RunningInterval = getEnvDuration("CLAYGROUNDS_POLL_RUNNING_INTERVAL", c.Polling.RunningInterval)
	c.Polling.IdleInterval = getEnvDuration("CLAYGROUNDS_POLL_IDLE_INTERVAL", c.Polling.IdleInterval)
	c.Polling.ErrorInterval = getEnvDuration("CLAYGROUNDS_POLL_ERROR_INTERVAL", c.Polling.ErrorInterval)
	c.Polling.MaxErrorInterval = getEnvDuration("CLAYGROUNDS_POLL_MAX_ERROR_INTERVAL", c.Polling.MaxErrorInterval)
	c.Polling.MaxErrorElapsed = getEnvDuration("CLAYGROUNDS_POLL_MAX_ERROR_ELAPSED", c.Polling.MaxErrorElapsed)

	c.Refresh.Stats = getEnvDuration("CLAYGROUNDS_STATS_REFRESH", c.Refresh.Stats)
	c.Refresh.Health = getEnvDuration("CLAYGROUNDS_HEALTH_REFRESH", c.Refresh.Health)

	c.Workflow.AutoReturnAfterEmail = getEnvBool("CLAYGROUNDS_AUTO_RETURN", c.Workflow.AutoReturnAfterEmail)
	c.Workflow.AutoReturnDelay = getEnvDuration("CLAYGROUNDS_AUTO_RETURN_DELAY", c.Workflow.AutoReturnDelay)
	c.Workflow.ClosePolicy = getEnv("CLAYGROUNDS_CLOSE_POLICY", c.Workflow.ClosePolicy)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate rejects configurations the services cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Polling.RunningInterval <= 0 || c.Polling.IdleInterval <= 0 || c.Polling.ErrorInterval <= 0 {
		errs = append(errs, errors.New("polling intervals must be positive"))
	}
	if c.Polling.MaxErrorInterval < c.Polling.ErrorInterval {
		errs = append(errs, errors.New("polling.max_error_interval must not be below polling.error_interval"))
	}
	if c.History.Capacity <= 0 {
		errs = append(errs, errors.New("history.capacity must be positive"))
	}
	if c.History.Expiry <= 0 {
		errs = append(errs, errors.New("history.expiry must be positive"))
	}
	switch strings.ToLower(c.Workflow.ClosePolicy) {
	case "preserve", "refuse":
	default:
		errs = append(errs, fmt.Errorf("workflow.close_policy %q must be preserve or refuse", c.Workflow.ClosePolicy))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// getEnv retrieves a string from environment variable with default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean from environment variable with default fallback
func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration from environment variable with default fallback
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultValue
}
