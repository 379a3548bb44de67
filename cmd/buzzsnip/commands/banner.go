package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/buzzsnip/buzzsnip/am"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
	"github.com/buzzsnip/buzzsnip/pulse/dispatch"
	"github.com/buzzsnip/buzzsnip/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(cfg *am.Config, dbPath, addr string, dispatcher async.Dispatcher) {
	info := version.Get()

	generation := cfg.Generation.BaseURL
	if _, ok := dispatcher.(*dispatch.Stub); ok {
		generation = "stub (canned results)"
	}

	scheduler := fmt.Sprintf("every %ds", cfg.Scheduler.TickerIntervalSeconds)
	if !cfg.Scheduler.Enabled {
		scheduler = "disabled"
	}

	body := fmt.Sprintf(
		"Version:     %s (commit %s)\n"+
			"Listening:   http://%s\n"+
			"Database:    %s\n"+
			"Generation:  %s\n"+
			"Ceiling:     %d active jobs, %d workers\n"+
			"Scheduler:   %s\n"+
			"Cleanup:     %q, %d days retention",
		info.Version, info.Short(),
		addr,
		dbPath,
		generation,
		cfg.Jobs.MaxConcurrent, cfg.Jobs.Workers,
		scheduler,
		cfg.Jobs.CleanupSchedule, cfg.Jobs.CleanupDays,
	)

	fmt.Println()
	pterm.DefaultBox.WithTitle(logger.SymPulse + " BuzzSnip").Println(body)
	fmt.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}
