package rfb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig mirrors the CLI's flags so an operator can check a config
// file into version control instead of repeating flags on every
// invocation. The merge order is defaults -> file -> flags: whatever a
// flag sets always wins over the file.
type FileConfig struct {
	Port            int    `yaml:"port"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
	Password        string `yaml:"password"`
	TileSize        int    `yaml:"tileSize"`
	Record          string `yaml:"record"`
	WebsocketListen string `yaml:"websocketListen"`
}

// LoadFileConfig reads and parses path. A missing file is not an
// error — it returns a zero-value FileConfig so callers can apply it
// unconditionally; a malformed file is.
func LoadFileConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("rfb: reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("rfb: parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Merge overlays non-zero fields of override onto a copy of f. Used to
// apply the config file on top of built-in defaults; the CLI then
// applies explicitly set flags on top of the result field by field.
func (f FileConfig) Merge(override FileConfig) FileConfig {
	out := f
	if override.Port != 0 {
		out.Port = override.Port
	}
	if override.Width != 0 {
		out.Width = override.Width
	}
	if override.Height != 0 {
		out.Height = override.Height
	}
	if override.Password != "" {
		out.Password = override.Password
	}
	if override.TileSize != 0 {
		out.TileSize = override.TileSize
	}
	if override.Record != "" {
		out.Record = override.Record
	}
	if override.WebsocketListen != "" {
		out.WebsocketListen = override.WebsocketListen
	}
	return out
}
