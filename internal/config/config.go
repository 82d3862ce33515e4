/* SPDX-License-Identifier: GPL-3.0-or-later
 *
 * spotlightd
 *
 * spotlightd is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * spotlightd is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with spotlightd.  If not, see <https://www.gnu.org/licenses/>.
 */

// Package config loads and validates spotlightd's on-disk configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the root of the on-disk YAML document.
type Config struct {
	Spotlight Spotlight `yaml:"spotlight"`
	Codec     Codec     `yaml:"codec"`
	Export    Export    `yaml:"export"`
}

// Spotlight holds the capture-side options (spotlight.* keys).
type Spotlight struct {
	Framerate  int     `yaml:"framerate"`
	WindowSize int     `yaml:"window-size"`
	Threads    int     `yaml:"threads"`
	Capture    Capture `yaml:"capture"`
	Audio      Audio   `yaml:"audio"`
}

// Capture holds the screen capture rectangle and optional downscale target.
type Capture struct {
	X      int   `yaml:"x"`
	Y      int   `yaml:"y"`
	Width  int   `yaml:"width"`
	Height int   `yaml:"height"`
	Scale  Scale `yaml:"scale,omitempty"`
}

// Scale is the optional target resolution; zero values mean "no downscale".
type Scale struct {
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`
}

// Audio holds audio-wide defaults and the configured capture devices.
type Audio struct {
	Codec   string   `yaml:"codec"`
	Bitrate int      `yaml:"bitrate"`
	Devices []Device `yaml:"device"`
}

// Device is one `spotlight.audio.device[<title>]` section. Title corresponds
// to the bracketed key of the section.
type Device struct {
	Title    string `yaml:"title"`
	Name     string `yaml:"name"`
	Channels string `yaml:"channels"` // "mono" or "stereo"
}

// Codec holds the video encoder/container configuration (codec.* keys).
type Codec struct {
	Name      string            `yaml:"name"`
	Container string            `yaml:"container"`
	Bitrate   int               `yaml:"bitrate"`
	Options   map[string]string `yaml:"options,omitempty"`
}

// Export holds the output directory configuration (export.* keys).
type Export struct {
	Directory string `yaml:"directory"`
}

// Load reads and parses the YAML config at path, applying defaults for
// anything left unset and validating the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults fills in every field left unset by the YAML document with
// its documented default.
func applyDefaults(cfg *Config) {
	if cfg.Spotlight.Framerate == 0 {
		cfg.Spotlight.Framerate = 30
	}
	if cfg.Spotlight.WindowSize == 0 {
		cfg.Spotlight.WindowSize = 30
	}
	if cfg.Spotlight.Threads == 0 {
		cfg.Spotlight.Threads = 3
	}
	if cfg.Spotlight.Audio.Codec == "" {
		cfg.Spotlight.Audio.Codec = "aac"
	}
	if cfg.Spotlight.Audio.Bitrate == 0 {
		cfg.Spotlight.Audio.Bitrate = 64000
	}
	for i := range cfg.Spotlight.Audio.Devices {
		if cfg.Spotlight.Audio.Devices[i].Channels == "" {
			cfg.Spotlight.Audio.Devices[i].Channels = "stereo"
		}
	}
	if cfg.Codec.Name == "" {
		cfg.Codec.Name = "libx264"
	}
	if cfg.Codec.Container == "" {
		cfg.Codec.Container = "mp4"
	}
	if cfg.Codec.Bitrate == 0 {
		cfg.Codec.Bitrate = 8000000
	}
	if cfg.Export.Directory == "" {
		cfg.Export.Directory = "~/Videos/"
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Export.Directory = expandHome(cfg.Export.Directory, home)
	}
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if len(path) >= 2 && path[:2] == "~/" {
		return filepath.Join(home, path[2:])
	}
	return path
}

func validate(cfg *Config) error {
	if cfg.Spotlight.Framerate <= 0 {
		return fmt.Errorf("spotlight.framerate must be positive, got %d", cfg.Spotlight.Framerate)
	}
	if cfg.Spotlight.WindowSize <= 0 {
		return fmt.Errorf("spotlight.window-size must be positive, got %d", cfg.Spotlight.WindowSize)
	}
	if cfg.Spotlight.Threads <= 0 {
		return fmt.Errorf("spotlight.threads must be positive, got %d", cfg.Spotlight.Threads)
	}
	if cfg.Spotlight.Capture.Width <= 0 || cfg.Spotlight.Capture.Height <= 0 {
		return fmt.Errorf("spotlight.capture.{width,height} must be positive")
	}
	for _, d := range cfg.Spotlight.Audio.Devices {
		if d.Channels != "mono" && d.Channels != "stereo" {
			return fmt.Errorf("audio device %q: channels must be mono or stereo, got %q", d.Title, d.Channels)
		}
	}
	return nil
}

// OutputPath builds the `{export.directory}/output-{ISO8601}.{container}`
// path, given the local timestamp of the triggering flush.
func OutputPath(cfg *Config, triggeredAt time.Time) string {
	name := fmt.Sprintf("output-%s.%s", triggeredAt.Format("2006-01-02T15:04:05"), cfg.Codec.Container)
	return filepath.Join(cfg.Export.Directory, name)
}
