package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"github.com/konsulin-care/focus/internal/services"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Test     TestConfig     `mapstructure:"test"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Norms    NormsConfig    `mapstructure:"norms"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	// Session starts allowed per client per minute.
	StartRateLimit uint `mapstructure:"start_rate_limit"`
}

// DatabaseConfig holds database connection settings. Without a database the
// server keeps results in memory.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN is the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		d.Host, d.User, d.Password, d.DBName, d.Port)
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Level      string `mapstructure:"level"`
}

// TestConfig is the presentation protocol of a session.
type TestConfig struct {
	StimulusDurationMs      float64 `mapstructure:"stimulus_duration_ms"`
	InterstimulusIntervalMs float64 `mapstructure:"interstimulus_interval_ms"`
	TotalTrials             int     `mapstructure:"total_trials"`
	BufferMs                float64 `mapstructure:"buffer_ms"`
}

type ScoringConfig struct {
	CompositeConstant      float64 `mapstructure:"composite_constant"`
	NormalThreshold        float64 `mapstructure:"normal_threshold"`
	BorderlineThreshold    float64 `mapstructure:"borderline_threshold"`
	AnticipatoryMaxPercent float64 `mapstructure:"anticipatory_max_percent"`
	MinValidResponses      int     `mapstructure:"min_valid_responses"`
}

type NormsConfig struct {
	Path string `mapstructure:"path"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.start_rate_limit", 10)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "focus-db")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
	v.SetDefault("logging.level", "debug")

	// Test protocol defaults
	v.SetDefault("test.stimulus_duration_ms", 100)
	v.SetDefault("test.interstimulus_interval_ms", 1900)
	v.SetDefault("test.total_trials", 648)
	v.SetDefault("test.buffer_ms", 3000)

	// Scoring defaults
	defaults := metrics.DefaultScoringConfig()
	v.SetDefault("scoring.composite_constant", defaults.CompositeConstant)
	v.SetDefault("scoring.normal_threshold", defaults.NormalThreshold)
	v.SetDefault("scoring.borderline_threshold", defaults.BorderlineThreshold)
	v.SetDefault("scoring.anticipatory_max_percent", defaults.AnticipatoryMaxPercent)
	v.SetDefault("scoring.min_valid_responses", defaults.MinValidResponses)

	v.SetDefault("norms.path", filepath.Join("config", "norms.yaml"))
}

// Validate checks the settings a session depends on.
func (c *Config) Validate() error {
	switch {
	case c.Test.TotalTrials < 2:
		return &models.ConfigError{Field: "test.total_trials", Reason: "must be at least 2"}
	case c.Test.TotalTrials%2 != 0:
		return &models.ConfigError{Field: "test.total_trials", Reason: "must be even"}
	case c.Scoring.BorderlineThreshold > c.Scoring.NormalThreshold:
		return &models.ConfigError{Field: "scoring.borderline_threshold", Reason: "must not exceed normal_threshold"}
	case c.Scoring.AnticipatoryMaxPercent < 0:
		return &models.ConfigError{Field: "scoring.anticipatory_max_percent", Reason: "must not be negative"}
	}
	return c.Timing().Validate()
}

// Timing converts the test protocol to scheduler timing.
func (c *Config) Timing() services.Timing {
	return services.TimingFromMillis(c.Test.StimulusDurationMs, c.Test.InterstimulusIntervalMs, c.Test.BufferMs)
}

func (c *Config) ScoringConfig() metrics.ScoringConfig {
	return metrics.ScoringConfig{
		CompositeConstant:      c.Scoring.CompositeConstant,
		NormalThreshold:        c.Scoring.NormalThreshold,
		BorderlineThreshold:    c.Scoring.BorderlineThreshold,
		AnticipatoryMaxPercent: c.Scoring.AnticipatoryMaxPercent,
		MinValidResponses:      c.Scoring.MinValidResponses,
	}
}

// SessionSettings is the snapshot a new session runs with.
func (c *Config) SessionSettings() services.SessionSettings {
	return services.SessionSettings{
		TotalTrials: c.Test.TotalTrials,
		Timing:      c.Timing(),
		Scoring:     c.ScoringConfig(),
	}
}

// Holder gives concurrent readers the current configuration. A reload swaps
// the whole snapshot, so a session never sees a half-applied change.
type Holder struct {
	current atomic.Pointer[Config]
}

func NewHolder(c *Config) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

func (h *Holder) Get() *Config {
	return h.current.Load()
}

// Load reads the configuration from projectRoot/config/config.yaml, the
// environment and the defaults, without watching for changes.
func Load(projectRoot string) (*Config, error) {
	v := newViper(projectRoot)
	if err := readInConfig(v); err != nil {
		return nil, err
	}
	return decode(v)
}

// Init initializes the configuration with Viper and hot-reloads it on change.
// A reloaded configuration that fails validation is ignored.
func Init(projectRoot string, log *zap.Logger) (*Holder, error) {
	v := newViper(projectRoot)
	if err := readInConfig(v); err != nil {
		return nil, err
	}
	conf, err := decode(v)
	if err != nil {
		return nil, err
	}
	holder := NewHolder(conf)

	// Set up a watch for configuration changes for hot-reloading
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		next, err := decode(v)
		if err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		holder.current.Store(next)
	})
	v.WatchConfig()

	log.Info("Configuration loaded successfully", zap.String("file", v.ConfigFileUsed()))
	return holder, nil
}

func newViper(projectRoot string) *viper.Viper {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("FOCUS") // e.g., FOCUS_TEST_TOTAL_TRIALS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readInConfig tolerates a missing file; defaults and env vars are used then.
func readInConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
