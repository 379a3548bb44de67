package am

import (
	"os"
	"sort"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/buzzsnip/config.toml
	SourceUser        ConfigSource = "user"        // ~/.buzzsnip/config.toml
	SourceProject     ConfigSource = "project"     // nearest buzzsnip.toml
	SourceEnvironment ConfigSource = "environment" // BUZZSNIP_* or legacy env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"`
}

// ConfigIntrospection provides metadata about the active configuration
type ConfigIntrospection struct {
	ConfigFile string        `json:"config_file"`
	Settings   []SettingInfo `json:"settings"`
}

// GetConfigIntrospection reports every effective setting with its source,
// using the sources recorded while loading.
func GetConfigIntrospection() *ConfigIntrospection {
	loadMu.Lock()
	v := initViper()
	sources := make(map[string]SourceInfo, len(ConfigSources))
	for k, s := range ConfigSources {
		sources[k] = s
	}
	loadMu.Unlock()

	intro := &ConfigIntrospection{ConfigFile: ActiveConfigFile()}
	flattenSettingsWithSources(v.AllSettings(), "", intro, sources)
	return intro
}

// flattenSettingsWithSources flattens nested settings in key order.
// Environment variables take precedence over the recorded file source.
func flattenSettingsWithSources(settings map[string]interface{}, prefix string, intro *ConfigIntrospection, sources map[string]SourceInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nested, ok := value.(map[string]interface{}); ok {
			flattenSettingsWithSources(nested, fullKey, intro, sources)
			continue
		}

		info := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sources[fullKey]; ok {
			info = si
		}
		if env := envSource(fullKey); env != "" {
			info = SourceInfo{Source: SourceEnvironment, Path: env}
		}

		intro.Settings = append(intro.Settings, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     info.Source,
			SourcePath: info.Path,
		})
	}
}

// envSource returns the environment variable supplying key, if any
func envSource(key string) string {
	if name := envName(key); os.Getenv(name) != "" {
		return name
	}
	if legacy, ok := legacyEnv[key]; ok && os.Getenv(legacy) != "" {
		return legacy
	}
	return ""
}

// GetConfigSummary counts effective settings by source
func GetConfigSummary() map[string]int {
	counts := map[string]int{}
	for _, s := range GetConfigIntrospection().Settings {
		counts[string(s.Source)]++
	}
	return counts
}
