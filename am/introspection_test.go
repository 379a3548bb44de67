package am

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settingFor(t *testing.T, intro *ConfigIntrospection, key string) SettingInfo {
	t.Helper()
	for _, s := range intro.Settings {
		if s.Key == key {
			return s
		}
	}
	require.Failf(t, "setting not found", "key %s", key)
	return SettingInfo{}
}

func TestIntrospectionSources(t *testing.T) {
	home, work := isolate(t)
	userPath := filepath.Join(home, ".buzzsnip", "config.toml")
	projectPath := filepath.Join(work, "buzzsnip.toml")
	writeFile(t, userPath, "[server]\nport = 6000\n")
	writeFile(t, projectPath, "[jobs]\nworkers = 2\n")
	t.Setenv("AUTO_CLEANUP_DAYS", "9")
	t.Setenv("BUZZSNIP_SCHEDULER_ENABLED", "false")

	_, err := Load()
	require.NoError(t, err)
	intro := GetConfigIntrospection()

	assert.Equal(t, projectPath, intro.ConfigFile)

	port := settingFor(t, intro, "server.port")
	assert.Equal(t, SourceUser, port.Source)
	assert.Equal(t, userPath, port.SourcePath)

	workers := settingFor(t, intro, "jobs.workers")
	assert.Equal(t, SourceProject, workers.Source)

	days := settingFor(t, intro, "jobs.cleanup_days")
	assert.Equal(t, SourceEnvironment, days.Source)
	assert.Equal(t, "AUTO_CLEANUP_DAYS", days.SourcePath)

	enabled := settingFor(t, intro, "scheduler.enabled")
	assert.Equal(t, "BUZZSNIP_SCHEDULER_ENABLED", enabled.SourcePath)

	host := settingFor(t, intro, "server.host")
	assert.Equal(t, SourceDefault, host.Source)

	for i := 1; i < len(intro.Settings); i++ {
		assert.Less(t, intro.Settings[i-1].Key, intro.Settings[i].Key, "settings are sorted")
	}

	summary := GetConfigSummary()
	assert.Equal(t, 1, summary[string(SourceUser)])
	assert.Equal(t, 2, summary[string(SourceEnvironment)])
}
