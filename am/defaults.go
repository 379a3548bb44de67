package am

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.log_theme", "everforest")

	v.SetDefault("database.data_dir", DefaultDataDir)
	v.SetDefault("database.path", "")

	v.SetDefault("generation.base_url", DefaultGenerationURL)
	v.SetDefault("generation.requests_per_minute", 0)
	v.SetDefault("generation.block_private_ips", false)
	v.SetDefault("generation.stub", false)
	v.SetDefault("generation.timeouts.automated_seconds", 30)
	v.SetDefault("generation.timeouts.audio_seconds", 120)
	v.SetDefault("generation.timeouts.face_seconds", 180)
	v.SetDefault("generation.timeouts.video_seconds", 600)

	v.SetDefault("jobs.max_concurrent", DefaultMaxConcurrent)
	v.SetDefault("jobs.workers", DefaultMaxConcurrent)
	v.SetDefault("jobs.poll_interval_seconds", DefaultPollInterval)
	v.SetDefault("jobs.max_video_duration", DefaultMaxVideoDuration)
	v.SetDefault("jobs.cleanup_days", DefaultCleanupDays)
	v.SetDefault("jobs.cleanup_schedule", DefaultCleanupSchedule)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.ticker_interval_seconds", DefaultTickerInterval)
	v.SetDefault("scheduler.seed_defaults", false)

	v.SetDefault("log.json", false)
}

// legacyEnv maps environment variables of the Flask backend to config keys,
// so existing deployments keep working.
var legacyEnv = map[string]string{
	"server.host":             "FLASK_HOST",
	"server.port":             "FLASK_PORT",
	"server.allowed_origins":  "CORS_ORIGINS",
	"database.data_dir":       "DATA_DIR",
	"database.path":           "DB_PATH",
	"generation.base_url":     "AI_SERVICES_URL",
	"jobs.max_concurrent":     "MAX_CONCURRENT_JOBS",
	"jobs.cleanup_days":       "AUTO_CLEANUP_DAYS",
	"jobs.max_video_duration": "MAX_VIDEO_DURATION",
}

// BindLegacyEnvVars binds each key to both its BUZZSNIP_* name and its
// legacy name. The BUZZSNIP_* name wins when both are set.
func BindLegacyEnvVars(v *viper.Viper) {
	for key, legacy := range legacyEnv {
		v.BindEnv(key, envName(key), legacy)
	}
}

// GetDatabasePath returns the configured database path, defaulting to a file in the data dir
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	dir := c.Database.DataDir
	if dir == "" {
		dir = DefaultDataDir
	}
	return filepath.Join(dir, DefaultDatabaseFile)
}

// GetServerAddress returns host:port for the HTTP listener
func (c *Config) GetServerAddress() string {
	host := c.Server.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Server.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// GetServerLogTheme returns the log theme (default: everforest)
func (c *Config) GetServerLogTheme() string {
	if c.Server.LogTheme == "" {
		return "everforest"
	}
	return c.Server.LogTheme
}

// String returns a short summary of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Generation: %s, Jobs: {MaxConcurrent: %d, Workers: %d}}",
		c.GetDatabasePath(), c.Generation.BaseURL, c.Jobs.MaxConcurrent, c.Jobs.Workers)
}
