package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/lorewiki/pkg/types"
)

const (
	// ConfigFile is the per-world configuration file name.
	ConfigFile = "world.yaml"

	// legacyConfigFile is the JSON configuration written by older releases.
	legacyConfigFile = "config.json"
)

// legacyConfig mirrors config.json, which named the image model differently.
type legacyConfig struct {
	types.WorldConfig
	ImageGenModel string `json:"image_gen_model"`
}

// LoadConfig reads the configuration stored in dir. A world without any
// configuration file gets DefaultWorldConfig. The returned config always has
// its name set to name and defaults filled in.
func LoadConfig(dir, name string) (types.WorldConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ConfigFile))
	switch {
	case err == nil:
		var cfg types.WorldConfig
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return types.WorldConfig{}, fmt.Errorf("parse %s for %s: %w", ConfigFile, name, err)
		}
		cfg.Name = name
		return cfg.WithDefaults(), nil
	case !errors.Is(err, os.ErrNotExist):
		return types.WorldConfig{}, fmt.Errorf("read %s for %s: %w", ConfigFile, name, err)
	}

	data, err = os.ReadFile(filepath.Join(dir, legacyConfigFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return types.DefaultWorldConfig(name), nil
	case err != nil:
		return types.WorldConfig{}, fmt.Errorf("read %s for %s: %w", legacyConfigFile, name, err)
	}

	var legacy legacyConfig
	if err := json.Unmarshal(data, &legacy); err != nil {
		return types.WorldConfig{}, fmt.Errorf("parse %s for %s: %w", legacyConfigFile, name, err)
	}
	cfg := legacy.WorldConfig
	if cfg.ImageModel == "" {
		cfg.ImageModel = legacy.ImageGenModel
	}
	cfg.Name = name
	return cfg.WithDefaults(), nil
}

// SaveConfig writes cfg to dir/world.yaml, replacing the file atomically.
func SaveConfig(dir string, cfg types.WorldConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ConfigFile, err)
	}

	tmp, err := os.CreateTemp(dir, ConfigFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", ConfigFile, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", ConfigFile, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", ConfigFile, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, ConfigFile)); err != nil {
		return fmt.Errorf("write %s: %w", ConfigFile, err)
	}
	return nil
}
