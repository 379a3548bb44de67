package am

import (
	"net/url"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/pulse/janitor"
)

// Validate checks that the configuration is valid. The first offending field is reported.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.NewFieldError("server.port", "must be between 0 and 65535, got %d", c.Server.Port)
	}

	if c.Generation.BaseURL == "" && !c.Generation.Stub {
		return errors.MissingField("generation.base_url")
	}
	if c.Generation.BaseURL != "" {
		u, err := url.Parse(c.Generation.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.NewFieldError("generation.base_url", "must be an absolute http(s) URL, got %q", c.Generation.BaseURL)
		}
	}
	if c.Generation.RequestsPerMinute < 0 {
		return errors.NewFieldError("generation.requests_per_minute", "must be >= 0, got %d", c.Generation.RequestsPerMinute)
	}

	t := c.Generation.Timeouts
	for field, v := range map[string]int{
		"generation.timeouts.automated_seconds": t.AutomatedSeconds,
		"generation.timeouts.audio_seconds":     t.AudioSeconds,
		"generation.timeouts.face_seconds":      t.FaceSeconds,
		"generation.timeouts.video_seconds":     t.VideoSeconds,
	} {
		// 0 = use the built-in default for the kind
		if v < 0 {
			return errors.NewFieldError(field, "must be >= 0, got %d", v)
		}
	}

	// Jobs: 0 ceiling admits nothing, which is never what an operator means
	if c.Jobs.MaxConcurrent <= 0 {
		return errors.NewFieldError("jobs.max_concurrent", "must be > 0, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.Workers < 0 {
		return errors.NewFieldError("jobs.workers", "must be >= 0, got %d", c.Jobs.Workers)
	}
	if c.Jobs.PollIntervalSeconds < 0 {
		return errors.NewFieldError("jobs.poll_interval_seconds", "must be >= 0, got %d", c.Jobs.PollIntervalSeconds)
	}
	if c.Jobs.MaxVideoDuration < 0 {
		return errors.NewFieldError("jobs.max_video_duration", "must be >= 0, got %d", c.Jobs.MaxVideoDuration)
	}
	if c.Jobs.CleanupDays < 0 {
		return errors.NewFieldError("jobs.cleanup_days", "must be >= 0, got %d", c.Jobs.CleanupDays)
	}
	if c.Jobs.CleanupSchedule != "" {
		if _, err := janitor.ParseSchedule(c.Jobs.CleanupSchedule); err != nil {
			return err
		}
	}

	if c.Scheduler.TickerIntervalSeconds < 0 {
		return errors.NewFieldError("scheduler.ticker_interval_seconds", "must be >= 0, got %d", c.Scheduler.TickerIntervalSeconds)
	}

	switch c.Server.LogTheme {
	case "", "everforest", "gruvbox":
	default:
		return errors.NewFieldError("server.log_theme", "unknown theme %q (everforest, gruvbox)", c.Server.LogTheme)
	}

	return nil
}
