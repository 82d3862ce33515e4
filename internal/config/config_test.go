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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTemp(t, `
spotlight:
  capture:
    width: 1920
    height: 1080
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Spotlight.Framerate != 30 {
		t.Errorf("framerate default = %d, want 30", cfg.Spotlight.Framerate)
	}
	if cfg.Spotlight.WindowSize != 30 {
		t.Errorf("window-size default = %d, want 30", cfg.Spotlight.WindowSize)
	}
	if cfg.Spotlight.Threads != 3 {
		t.Errorf("threads default = %d, want 3", cfg.Spotlight.Threads)
	}
	if cfg.Spotlight.Audio.Codec != "aac" {
		t.Errorf("audio.codec default = %q, want aac", cfg.Spotlight.Audio.Codec)
	}
	if cfg.Spotlight.Audio.Bitrate != 64000 {
		t.Errorf("audio.bitrate default = %d, want 64000", cfg.Spotlight.Audio.Bitrate)
	}
	if cfg.Codec.Name != "libx264" || cfg.Codec.Container != "mp4" || cfg.Codec.Bitrate != 8000000 {
		t.Errorf("codec defaults = %+v", cfg.Codec)
	}
}

func TestLoadDeviceChannelsDefault(t *testing.T) {
	path := writeTemp(t, `
spotlight:
  capture:
    width: 640
    height: 480
  audio:
    device:
      - title: mic
        name: default
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Spotlight.Audio.Devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(cfg.Spotlight.Audio.Devices))
	}
	if cfg.Spotlight.Audio.Devices[0].Channels != "stereo" {
		t.Errorf("channels default = %q, want stereo", cfg.Spotlight.Audio.Devices[0].Channels)
	}
}

func TestLoadRejectsInvalidChannels(t *testing.T) {
	path := writeTemp(t, `
spotlight:
  capture:
    width: 640
    height: 480
  audio:
    device:
      - title: mic
        name: default
        channels: surround
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid channels, got nil")
	}
}

func TestLoadRejectsMissingCaptureRect(t *testing.T) {
	path := writeTemp(t, `spotlight: {}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing capture width/height, got nil")
	}
}

func TestOutputPath(t *testing.T) {
	cfg := &Config{
		Codec:  Codec{Container: "mp4"},
		Export: Export{Directory: "/tmp/videos"},
	}
	ts := time.Date(2026, 7, 31, 12, 30, 0, 0, time.UTC)
	got := OutputPath(cfg, ts)
	want := filepath.Join("/tmp/videos", "output-2026-07-31T12:30:00.mp4")
	if got != want {
		t.Errorf("OutputPath = %q, want %q", got, want)
	}
}
