// Package config resolves where recordings are archived.
//
// Resolution order: built-in defaults, then a YAML config file, then
// environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds recorder settings shared by the library and the CLI.
type Config struct {
	// ArchivePath is the base directory under which runs are archived.
	ArchivePath string `yaml:"archive_path" env:"POGGER_ARCHIVE_PATH"`

	// Verbose enables informational confirmations of every write.
	Verbose bool `yaml:"verbose" env:"POGGER_VERBOSE"`
}

// DefaultArchiveDir is the directory name used under the home directory
// when nothing else is configured.
const DefaultArchiveDir = "pogger_archives"

// Default returns the built-in configuration.
func Default() Config {
	base := DefaultArchiveDir
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, DefaultArchiveDir)
	}
	return Config{ArchivePath: base}
}

// FilePath returns the config file location: $POGGER_CONFIG if set,
// otherwise <user config dir>/pogger/config.yaml.
func FilePath() string {
	if p := strings.TrimSpace(os.Getenv("POGGER_CONFIG")); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pogger", "config.yaml")
}

// Load resolves the configuration from defaults, the config file and the
// environment. A missing config file is not an error.
func Load() (Config, error) {
	cfg := Default()
	if err := LoadFile(FilePath(), &cfg); err != nil {
		return Config{}, err
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.ArchivePath = expandHome(cfg.ArchivePath)
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto cfg. Fields absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read config %q", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "parse config %q", path)
	}
	return nil
}

// ParseEnv overlays environment variables onto target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return errors.Wrap(err, "parse env")
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
