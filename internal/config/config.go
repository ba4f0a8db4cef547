package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/garyjia/store-approval/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Directory    DirectoryConfig    `mapstructure:"directory"`
	Notification NotificationConfig `mapstructure:"notification"`
	Lock         LockConfig         `mapstructure:"lock"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration. Driver is sqlite or memory.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	BaseURL    string        `mapstructure:"base_url"`
	IDType     string        `mapstructure:"id_type"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// Enabled reports whether Lark credentials are configured
func (c LarkConfig) Enabled() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// DirectoryConfig selects the organisation directory. Driver is lark or static.
type DirectoryConfig struct {
	Driver     string        `mapstructure:"driver"`
	StaticFile string        `mapstructure:"static_file"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// NotificationConfig holds notification channel configuration
type NotificationConfig struct {
	Lark      bool          `mapstructure:"lark"`
	Email     bool          `mapstructure:"email"`
	Operators []string      `mapstructure:"operators"`
	SMTP      SMTPConfig    `mapstructure:"smtp"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SMTPConfig holds email server settings
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
	Domain   string `mapstructure:"domain"`
}

// LockConfig selects the per-instance lock. Driver is local or redis.
type LockConfig struct {
	Driver        string        `mapstructure:"driver"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
	Wait          time.Duration `mapstructure:"wait"`
}

// MonitorConfig holds timeout scan configuration
type MonitorConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ScanInterval  time.Duration `mapstructure:"scan_interval"`
	ScanTimeout   time.Duration `mapstructure:"scan_timeout"`
	WarningWindow time.Duration `mapstructure:"warning_window"`
	BatchSize     int           `mapstructure:"batch_size"`
}

// EngineConfig holds workflow engine tuning
type EngineConfig struct {
	CASRetries int `mapstructure:"cas_retries"`
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load loads configuration from file and environment variables.
// An empty path loads defaults and the environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/approval.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("lark.id_type", "open_id")
	v.SetDefault("lark.api_timeout", 10*time.Second)

	v.SetDefault("directory.driver", "static")
	v.SetDefault("directory.static_file", "configs/directory.yaml")
	v.SetDefault("directory.timeout", 5*time.Second)

	v.SetDefault("notification.timeout", 30*time.Second)
	v.SetDefault("notification.smtp.port", 587)

	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.prefix", "approval:lock:")
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.wait", 10*time.Second)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.scan_interval", time.Minute)
	v.SetDefault("monitor.scan_timeout", 30*time.Second)
	v.SetDefault("monitor.warning_window", 12*time.Hour)
	v.SetDefault("monitor.batch_size", 100)

	v.SetDefault("engine.cas_retries", 3)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "store_approval")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration. Every key can be
// overridden as APPROVAL_<SECTION>_<KEY>; credentials also have short names.
func bindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("APPROVAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("lark.app_id", "APPROVAL_LARK_APP_ID", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "APPROVAL_LARK_APP_SECRET", "LARK_APP_SECRET")
	_ = v.BindEnv("notification.smtp.username", "APPROVAL_NOTIFICATION_SMTP_USERNAME", "SMTP_USERNAME")
	_ = v.BindEnv("notification.smtp.password", "APPROVAL_NOTIFICATION_SMTP_PASSWORD", "SMTP_PASSWORD")
	_ = v.BindEnv("lock.redis_password", "APPROVAL_LOCK_REDIS_PASSWORD", "REDIS_PASSWORD")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver)
	}

	switch c.Directory.Driver {
	case "lark":
		if !c.Lark.Enabled() {
			return fmt.Errorf("lark.app_id and lark.app_secret are required for the lark directory")
		}
	case "static":
		if c.Directory.StaticFile == "" {
			return fmt.Errorf("directory.static_file is required for the static directory")
		}
	default:
		return fmt.Errorf("directory.driver must be lark or static, got %q", c.Directory.Driver)
	}

	if c.Notification.Lark && !c.Lark.Enabled() {
		return fmt.Errorf("lark.app_id and lark.app_secret are required for lark notifications")
	}
	if c.Notification.Email {
		if c.Notification.SMTP.Host == "" {
			return fmt.Errorf("notification.smtp.host is required for email notifications")
		}
		if err := utils.ValidateEmail(c.Notification.SMTP.From); err != nil {
			return fmt.Errorf("notification.smtp.from: %w", err)
		}
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.RedisAddr == "" {
			return fmt.Errorf("lock.redis_addr is required for the redis lock")
		}
	default:
		return fmt.Errorf("lock.driver must be local or redis, got %q", c.Lock.Driver)
	}

	if c.Monitor.Enabled && c.Monitor.ScanInterval <= 0 {
		return fmt.Errorf("monitor.scan_interval must be positive")
	}
	if c.Monitor.BatchSize <= 0 {
		return fmt.Errorf("monitor.batch_size must be positive")
	}
	if c.Engine.CASRetries < 0 {
		return fmt.Errorf("engine.cas_retries cannot be negative")
	}
	return nil
}
