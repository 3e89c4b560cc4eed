// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Server   ServerConfig   `toml:"server"`
	Test     TestConfig     `toml:"test"`
	Distance DistanceConfig `toml:"distance"`
}

// ServerConfig maps the screening server settings.
type ServerConfig struct {
	URL   *string `toml:"url"`
	Token *string `toml:"token"`
}

// TestConfig maps session settings. Durations use Go syntax, e.g. "12s".
type TestConfig struct {
	StartLevel        *string   `toml:"start-level"`
	RowLength         *int      `toml:"row-length"`
	SymbolTimeout     *Duration `toml:"symbol-timeout"`
	PrepCountdown     *Duration `toml:"prep-countdown"`
	ViewingDistanceMM *float64  `toml:"viewing-distance-mm"`
}

// DistanceConfig maps the distance gate settings.
type DistanceConfig struct {
	Skip         *bool   `toml:"skip"`
	FramesDir    *string `toml:"frames-dir"`
	TargetFrames *int    `toml:"target-frames"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
