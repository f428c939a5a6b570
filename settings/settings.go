// Package settings persists the derotator's setup between runs.
package settings

import (
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var ErrNoSettings = errors.New("settings: nothing saved")

type WLAN struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
	Security int16  `yaml:"security"`
}

// Settings mirrors the setup commands. Limits are in steps from user home.
type Settings struct {
	HomePos       int64 `yaml:"home_pos"`
	MaxCW         int64 `yaml:"max_cw"`
	MaxCCW        int64 `yaml:"max_ccw"`
	Clockwise     bool  `yaml:"clockwise"`
	LimitsEnabled bool  `yaml:"limits_enabled"`
	WLAN          WLAN  `yaml:"wlan"`
}

// Defaults returns the factory settings: home at the hall sensor, limits
// disabled at ±90°.
func Defaults(stepDeg float64) Settings {
	return Settings{
		MaxCW:     int64(90 / stepDeg),
		MaxCCW:    int64(-90 / stepDeg),
		Clockwise: true,
	}
}

// Store keeps Settings in a YAML file.
type Store struct {
	Path string
}

func (s *Store) Load() (Settings, error) {
	var out Settings
	data, err := ioutil.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return out, ErrNoSettings
	}
	if err != nil {
		return out, fmt.Errorf("reading settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("parsing %s: %w", s.Path, err)
	}
	return out, nil
}

// Save writes the settings atomically.
func (s *Store) Save(v Settings) error {
	data, err := yaml.Marshal(&v)
	if err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(s.Path), ".settings-*")
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("saving settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	// The file holds the WLAN password.
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}
