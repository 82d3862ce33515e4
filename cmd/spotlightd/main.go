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

// spotlightd is a continuous instant-replay recorder: it keeps a rolling
// window of recent screen and audio capture in memory and, on trigger,
// mux's that window out to a video file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/27justin/spotlight/internal/audio"
	"github.com/27justin/spotlight/internal/capture"
	"github.com/27justin/spotlight/internal/config"
	"github.com/27justin/spotlight/internal/muxcodec"
	"github.com/27justin/spotlight/internal/video"
)

// pulseSampleRate is the sample rate every audio device is opened at,
// leaving only the channel layout configurable per device.
const pulseSampleRate = 44100

func main() {
	configPath := flag.String("config", "/etc/spotlight/spotlight.yaml", "path to spotlightd's configuration file")
	debug := flag.Bool("debug", false, "also log to stdout, in addition to the log file")
	flag.Parse()

	if err := initLog(*debug); err != nil {
		log.Fatalf("spotlightd: init log: %v", err)
	}

	log.Printf("spotlightd starting, config=%s", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("spotlightd: %v", err)
	}

	hub, err := buildHub(cfg)
	if err != nil {
		log.Fatalf("spotlightd: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := hub.Start(ctx); err != nil {
		log.Fatalf("spotlightd: start: %v", err)
	}
	log.Printf("spotlightd running")

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	for {
		select {
		case err := <-hub.Errs():
			log.Printf("spotlightd: capture error: %v", err)

		case sig := <-sigs:
			switch sig {
			case syscall.SIGUSR1:
				if err := hub.Flush(time.Now()); err != nil {
					log.Printf("spotlightd: flush failed: %v", err)
				}
			case syscall.SIGINT, syscall.SIGTERM:
				log.Printf("spotlightd: received %s, shutting down", sig)
				hub.Stop()
				cancel()
				log.Printf("spotlightd: stopped")
				return
			}
		}
	}
}

// buildHub translates the on-disk Config into the capture Hub's wiring:
// a video Stream backed by a synthetic test-pattern FrameSource (no
// concrete display-server client library is wired in — see
// video.PatternSource's doc comment) and one audio Stream per configured
// device, backed by malgo.
func buildHub(cfg *config.Config) (*capture.Hub, error) {
	rect := video.Rect{
		X:      cfg.Spotlight.Capture.X,
		Y:      cfg.Spotlight.Capture.Y,
		Width:  cfg.Spotlight.Capture.Width,
		Height: cfg.Spotlight.Capture.Height,
	}
	target := video.Dimensions{Width: rect.Width, Height: rect.Height}
	if cfg.Spotlight.Capture.Scale.Width > 0 && cfg.Spotlight.Capture.Scale.Height > 0 {
		target = video.Dimensions{
			Width:  cfg.Spotlight.Capture.Scale.Width,
			Height: cfg.Spotlight.Capture.Scale.Height,
		}
	}

	videoCfg := video.Config{
		Rect:       rect,
		Target:     target,
		FrameRate:  cfg.Spotlight.Framerate,
		Workers:    cfg.Spotlight.Threads,
		WindowSize: cfg.Spotlight.WindowSize,
	}

	newFrameSource := func(workerID int) (video.FrameSource, error) {
		return video.NewPatternSource(rect), nil
	}

	openAudioDevice := func(name string, channels, sampleRate int) (audio.Source, error) {
		return audio.OpenDevice(name, channels, sampleRate)
	}

	devices := make([]capture.AudioDeviceConfig, 0, len(cfg.Spotlight.Audio.Devices))
	for _, dev := range cfg.Spotlight.Audio.Devices {
		channels, err := channelCount(dev.Channels)
		if err != nil {
			return nil, fmt.Errorf("audio device %q: %w", dev.Title, err)
		}
		devices = append(devices, capture.AudioDeviceConfig{
			Capture: audio.Config{
				Title:      dev.Title,
				DeviceName: dev.Name,
				Channels:   channels,
				SampleRate: pulseSampleRate,
				WindowSize: cfg.Spotlight.WindowSize,
			},
			Codec: muxcodec.AudioConfig{
				Name:       cfg.Spotlight.Audio.Codec,
				SampleRate: pulseSampleRate,
				Channels:   channels,
				Bitrate:    cfg.Spotlight.Audio.Bitrate,
			},
		})
	}

	hubCfg := capture.Config{
		Container: cfg.Codec.Container,
		OutputPath: func(triggeredAt time.Time) string {
			return config.OutputPath(cfg, triggeredAt)
		},
		VideoConfig: muxcodec.VideoConfig{
			Name:      cfg.Codec.Name,
			Width:     target.Width,
			Height:    target.Height,
			FrameRate: cfg.Spotlight.Framerate,
			Bitrate:   cfg.Codec.Bitrate,
			Options:   cfg.Codec.Options,
		},
		AudioDevices:  devices,
		WindowSeconds: cfg.Spotlight.WindowSize,
	}

	return capture.New(hubCfg, newFrameSource, openAudioDevice, videoCfg)
}

func channelCount(layout string) (int, error) {
	switch layout {
	case "mono":
		return 1, nil
	case "stereo":
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported channel layout %q", layout)
	}
}

// initLog always writes to a log file under the user's config directory,
// and also to stdout when debug is set.
func initLog(debug bool) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("retrieve home directory: %w", err)
	}
	dir := filepath.Join(home, ".config", "spotlightd")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, "spotlightd.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	if debug {
		log.SetOutput(io.MultiWriter(file, os.Stdout))
	} else {
		log.SetOutput(file)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	return nil
}
