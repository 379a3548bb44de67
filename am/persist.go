package am

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
)

const backupCount = 3

// SetOverride persists key=value into ~/.buzzsnip/config.toml, keeping
// rotating backups of the previous file. The raw value is converted to the
// key's type, and the merged result must still validate. Returns the path written.
func SetOverride(key, raw string) (string, error) {
	path := UserConfigPath()
	if path == "" {
		return "", errors.New("could not determine home directory")
	}
	return setOverrideAt(path, key, raw)
}

func setOverrideAt(path, key, raw string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	value, err := ParseValue(key, raw)
	if err != nil {
		return "", err
	}

	data, err := readTOMLMap(path)
	if err != nil {
		return "", err
	}
	setNested(data, strings.Split(key, "."), value)

	// Reject overrides that would leave the file unloadable
	v := viper.New()
	SetDefaults(v)
	if err := v.MergeConfigMap(data); err != nil {
		return "", errors.Wrap(err, "failed to merge override")
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	if err := writeTOMLMap(path, data); err != nil {
		return "", err
	}
	logger.Infow("Config override saved", "key", key, "path", path)
	return path, nil
}

// ParseValue converts raw to the type of key's default value.
// Unknown keys are rejected.
func ParseValue(key, raw string) (interface{}, error) {
	v := viper.New()
	SetDefaults(v)
	if !v.IsSet(key) {
		return nil, errors.NewFieldError(key, "unknown configuration key")
	}

	switch v.Get(key).(type) {
	case int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.NewFieldError(key, "expected an integer, got %q", raw)
		}
		return int64(n), nil
	case bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, errors.NewFieldError(key, "expected true or false, got %q", raw)
		}
		return b, nil
	case []string:
		return splitList(raw), nil
	case map[string]interface{}:
		return nil, errors.NewFieldError(key, "is a section, set one of its keys instead")
	default:
		return raw, nil
	}
}

// splitList splits a comma-separated list, dropping blanks
func splitList(raw string) []string {
	items := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func setNested(m map[string]interface{}, path []string, value interface{}) {
	for _, part := range path[:len(path)-1] {
		child, ok := m[part].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			m[part] = child
		}
		m = child
	}
	m[path[len(path)-1]] = value
}

func readTOMLMap(path string) (map[string]interface{}, error) {
	data := make(map[string]interface{})
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return data, nil
	}
	if _, err := toml.DecodeFile(path, &data); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return data, nil
}

func writeTOMLMap(path string, data map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}

	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}
	if err := os.WriteFile(path, buf.Bytes(), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// createBackup rotates .back1 → .back2 → .back3 and copies the current file to .back1
func createBackup(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	oldest := backupPath(path, backupCount)
	if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", "path", oldest, logger.FieldError, err)
	}
	for i := backupCount - 1; i >= 1; i-- {
		from := backupPath(path, i)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, backupPath(path, i+1)); err != nil {
			return errors.Wrapf(err, "failed to rotate %s", from)
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	return errors.Wrap(os.WriteFile(backupPath(path, 1), content, DefaultFilePermissions), "failed to create .back1")
}

func backupPath(path string, n int) string {
	return path + ".back" + strconv.Itoa(n)
}

// isBackupFile reports whether path is one of the rotating backups
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	if !strings.HasPrefix(ext, ".back") {
		return false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(ext, ".back"))
	return err == nil && n >= 1 && n <= backupCount
}
