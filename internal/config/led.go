package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LEDConfig is the [led] table reloaded while serving.
type LEDConfig struct {
	Sequence []int `toml:"sequence"`
	SpeedMS  int   `toml:"speed_ms"`
}

// LoadLEDConfig reads the [led] table from path.
func LoadLEDConfig(path string) (LEDConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LEDConfig{}, err
	}
	var raw struct {
		LED LEDConfig `toml:"led"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return LEDConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return raw.LED, nil
}
