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

// Package audio implements the per-device audio capture pipeline: the
// Audio Source contract, the Resampler, and the per-device worker loop.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrDeviceUnavailable is returned when the configured audio device cannot
// be opened.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// ErrClosed is returned by Read after Close.
var ErrClosed = errors.New("audio: source closed")

// chunkCapacity bounds how many pending capture chunks a Source queues
// before dropping the oldest one. A Read call itself never returns a short
// slice: it blocks (or errors) until it can fill the caller's buffer
// completely, or the device is lost.
const chunkCapacity = 64

// Source captures interleaved signed 16-bit PCM samples from one physical
// device. Read blocks until exactly len(p) bytes have been captured, p is
// fully filled, or an error occurs — a short read is always an error, never
// a partial success; a device that cannot fill the remainder of a read is
// treated as fatal for that worker rather than returning what it has.
type Source interface {
	Read(ctx context.Context, p []byte) error
	// SampleRate, Channels and SampleSize describe the fixed format Read
	// produces: SampleRate Hz, Channels interleaved channels, SampleSize
	// bytes per sample (2, for signed 16-bit PCM).
	SampleRate() int
	Channels() int
	SampleSize() int
	Close() error
}

// DeviceSource is a malgo-backed Source. malgo, like every miniaudio
// binding, delivers samples via a callback invoked on its own audio
// thread; DeviceSource adapts that into the blocking Read contract Source
// requires by funneling callback chunks through a buffered channel.
type DeviceSource struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	sampleRate int
	channels   int

	chunks chan []byte
	pend   []byte // leftover bytes from a chunk not yet consumed by Read

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenDevice opens name (the device's backend identifier) for capture at
// sampleRate Hz with the given channel count (1 or 2).
func OpenDevice(name string, channels, sampleRate int) (*DeviceSource, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(channels)
	cfg.SampleRate = uint32(sampleRate)
	cfg.PeriodSizeInMilliseconds = 20

	src := &DeviceSource{
		ctx:        malgoCtx,
		sampleRate: sampleRate,
		channels:   channels,
		chunks:     make(chan []byte, chunkCapacity),
		closed:     make(chan struct{}),
	}

	onRecv := func(_, input []byte, _ uint32) {
		chunk := make([]byte, len(input))
		copy(chunk, input)
		select {
		case src.chunks <- chunk:
		default:
			// Drop the oldest pending chunk to make room; logged, not
			// fatal — a dropped chunk surfaces to the caller only if the
			// resulting gap makes a later Read block longer than expected.
			select {
			case <-src.chunks:
			default:
			}
			select {
			case src.chunks <- chunk:
			default:
			}
			log.Printf("audio: device %s: capture queue full, dropped a chunk", name)
		}
	}

	device, err := malgo.InitDevice(malgoCtx.Context, cfg, malgo.DeviceCallbacks{Data: onRecv})
	if err != nil {
		malgoCtx.Uninit()
		return nil, fmt.Errorf("audio: init device %q: %w: %v", name, ErrDeviceUnavailable, err)
	}
	src.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		return nil, fmt.Errorf("audio: start device %q: %w", name, err)
	}

	return src, nil
}

// SampleRate returns the capture sample rate in Hz.
func (s *DeviceSource) SampleRate() int { return s.sampleRate }

// Channels returns the interleaved channel count.
func (s *DeviceSource) Channels() int { return s.channels }

// SampleSize returns the per-sample byte width (always 2: signed 16-bit).
func (s *DeviceSource) SampleSize() int { return 2 }

// Read fills p completely with captured PCM bytes, pulling from the
// internal chunk queue (and carrying over any leftover bytes from a
// previous chunk) until p is full.
func (s *DeviceSource) Read(ctx context.Context, p []byte) error {
	filled := 0
	for filled < len(p) {
		if len(s.pend) > 0 {
			n := copy(p[filled:], s.pend)
			filled += n
			s.pend = s.pend[n:]
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return ErrClosed
		case chunk := <-s.chunks:
			s.pend = chunk
		}
	}
	return nil
}

// Close stops the capture device and releases malgo resources.
func (s *DeviceSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.device != nil {
			s.device.Uninit()
		}
		if s.ctx != nil {
			s.ctx.Uninit()
		}
	})
	return nil
}
