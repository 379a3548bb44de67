package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/buzzsnip/buzzsnip/am"
	"github.com/buzzsnip/buzzsnip/errors"
)

// ConfigCmd shows and edits configuration
var ConfigCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"am"},
	Short:   "Show and edit BuzzSnip configuration",
	Long: `Display and manage BuzzSnip configuration.

Configuration sources (later overrides earlier):
1. Built-in defaults
2. System config (/etc/buzzsnip/config.toml)
3. User config (~/.buzzsnip/config.toml)
4. Project config (nearest ./buzzsnip.toml, searching up directories)
5. Legacy environment variables (FLASK_PORT, MAX_CONCURRENT_JOBS, ...)
6. BUZZSNIP_* environment variables

Examples:
  buzzsnip config show                     # Show current configuration
  buzzsnip config show --format json       # Show configuration as JSON
  buzzsnip config get jobs.max_concurrent  # Get one value
  buzzsnip config set jobs.max_concurrent 5
  buzzsnip config where                    # Show where each value comes from`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		return writeConfig(cmd.OutOrStdout(), cfg, configFormat)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long:  "Get a configuration value using dot notation (e.g., server.port, jobs.max_concurrent)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		v := am.GetViper()
		if !v.IsSet(key) {
			return errors.Newf("configuration key %q not found", key)
		}
		fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		if err := cfg.Validate(); err != nil {
			return errors.Wrap(err, "configuration validation failed")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a value to the user config file",
	Long: `Persist a value to ~/.buzzsnip/config.toml. The previous file is kept as
config.toml.back1 (up to three backups). The value is converted to the key's
type and the resulting configuration must validate. Lists are comma separated.

A running server picks up max_concurrent, max_video_duration and the
generation timeouts without a restart.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := am.SetOverride(args[0], args[1])
		if err != nil {
			return err
		}
		pterm.Success.Printf("Set %s = %s in %s\n", args[0], args[1], path)
		return nil
	},
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each configuration value comes from",
	RunE: func(cmd *cobra.Command, args []string) error {
		intro := am.GetConfigIntrospection()
		w := cmd.OutOrStdout()

		if intro.ConfigFile != "" {
			fmt.Fprintf(w, "Active config file: %s\n\n", intro.ConfigFile)
		} else {
			fmt.Fprintf(w, "No config file found, using defaults and environment\n\n")
		}

		data := pterm.TableData{{"KEY", "VALUE", "SOURCE"}}
		for _, s := range intro.Settings {
			source := string(s.Source)
			if s.SourcePath != "" {
				source += " (" + s.SourcePath + ")"
			}
			data = append(data, []string{s.Key, fmt.Sprint(s.Value), source})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(w).Render(); err != nil {
			return err
		}

		fmt.Fprintln(w)
		summary := am.GetConfigSummary()
		sources := make([]string, 0, len(summary))
		for source := range summary {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		for _, source := range sources {
			fmt.Fprintf(w, "%s: %d\n", source, summary[source])
		}
		return nil
	},
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}

func writeConfig(w io.Writer, cfg *am.Config, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(w, string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(w, "# BuzzSnip configuration\n%s", data)

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(w, "# BuzzSnip configuration\n%s", data)

	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
	return nil
}
