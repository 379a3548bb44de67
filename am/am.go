// Package am loads BuzzSnip configuration ("am" as in "I am configured as").
//
// Sources merge from lowest to highest precedence: built-in defaults,
// /etc/buzzsnip/config.toml, ~/.buzzsnip/config.toml, the nearest buzzsnip.toml
// walking up from the working directory, legacy environment variables of the
// Flask backend, and BUZZSNIP_* environment variables.
package am

import "time"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" json:"server" yaml:"server" toml:"server"`
	Database   DatabaseConfig   `mapstructure:"database" json:"database" yaml:"database" toml:"database"`
	Generation GenerationConfig `mapstructure:"generation" json:"generation" yaml:"generation" toml:"generation"`
	Jobs       JobsConfig       `mapstructure:"jobs" json:"jobs" yaml:"jobs" toml:"jobs"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" json:"scheduler" yaml:"scheduler" toml:"scheduler"`
	Log        LogConfig        `mapstructure:"log" json:"log" yaml:"log" toml:"log"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Host           string   `mapstructure:"host" json:"host" yaml:"host" toml:"host"`
	Port           int      `mapstructure:"port" json:"port" yaml:"port" toml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	LogTheme       string   `mapstructure:"log_theme" json:"log_theme" yaml:"log_theme" toml:"log_theme"` // gruvbox, everforest
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	DataDir string `mapstructure:"data_dir" json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	Path    string `mapstructure:"path" json:"path" yaml:"path" toml:"path"` // empty = <data_dir>/buzzsnip.db
}

// GenerationConfig configures calls to the AI generation service
type GenerationConfig struct {
	BaseURL           string         `mapstructure:"base_url" json:"base_url" yaml:"base_url" toml:"base_url"`
	RequestsPerMinute int            `mapstructure:"requests_per_minute" json:"requests_per_minute" yaml:"requests_per_minute" toml:"requests_per_minute"` // 0 = unlimited
	BlockPrivateIPs   bool           `mapstructure:"block_private_ips" json:"block_private_ips" yaml:"block_private_ips" toml:"block_private_ips"`
	Stub              bool           `mapstructure:"stub" json:"stub" yaml:"stub" toml:"stub"` // answer in-process with canned results
	Timeouts          TimeoutsConfig `mapstructure:"timeouts" json:"timeouts" yaml:"timeouts" toml:"timeouts"`
}

// TimeoutsConfig holds per-kind dispatch deadlines in seconds
type TimeoutsConfig struct {
	AutomatedSeconds int `mapstructure:"automated_seconds" json:"automated_seconds" yaml:"automated_seconds" toml:"automated_seconds"`
	AudioSeconds     int `mapstructure:"audio_seconds" json:"audio_seconds" yaml:"audio_seconds" toml:"audio_seconds"`
	FaceSeconds      int `mapstructure:"face_seconds" json:"face_seconds" yaml:"face_seconds" toml:"face_seconds"`
	VideoSeconds     int `mapstructure:"video_seconds" json:"video_seconds" yaml:"video_seconds" toml:"video_seconds"`
}

// JobsConfig configures admission, workers and retention
type JobsConfig struct {
	MaxConcurrent       int    `mapstructure:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`
	Workers             int    `mapstructure:"workers" json:"workers" yaml:"workers" toml:"workers"`
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds" json:"poll_interval_seconds" yaml:"poll_interval_seconds" toml:"poll_interval_seconds"`
	MaxVideoDuration    int    `mapstructure:"max_video_duration" json:"max_video_duration" yaml:"max_video_duration" toml:"max_video_duration"` // seconds, 0 = no limit
	CleanupDays         int    `mapstructure:"cleanup_days" json:"cleanup_days" yaml:"cleanup_days" toml:"cleanup_days"`
	CleanupSchedule     string `mapstructure:"cleanup_schedule" json:"cleanup_schedule" yaml:"cleanup_schedule" toml:"cleanup_schedule"`
}

// SchedulerConfig configures the due-schedule ticker
type SchedulerConfig struct {
	Enabled               bool `mapstructure:"enabled" json:"enabled" yaml:"enabled" toml:"enabled"`
	TickerIntervalSeconds int  `mapstructure:"ticker_interval_seconds" json:"ticker_interval_seconds" yaml:"ticker_interval_seconds" toml:"ticker_interval_seconds"`
	SeedDefaults          bool `mapstructure:"seed_defaults" json:"seed_defaults" yaml:"seed_defaults" toml:"seed_defaults"`
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json" json:"json" yaml:"json" toml:"json"`
}

// Defaults
const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 5000
	DefaultDataDir          = "data"
	DefaultDatabaseFile     = "buzzsnip.db"
	DefaultGenerationURL    = "http://localhost:5001"
	DefaultMaxConcurrent    = 3
	DefaultMaxVideoDuration = 60
	DefaultCleanupDays      = 30
	DefaultCleanupSchedule  = "0 3 * * *"
	DefaultTickerInterval   = 30
	DefaultPollInterval     = 2
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// Durations converts the configured seconds to durations. Zero stays zero.
func (t TimeoutsConfig) Durations() (automated, audio, face, video time.Duration) {
	return time.Duration(t.AutomatedSeconds) * time.Second,
		time.Duration(t.AudioSeconds) * time.Second,
		time.Duration(t.FaceSeconds) * time.Second,
		time.Duration(t.VideoSeconds) * time.Second
}
