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

package audio

import (
	"context"
	"fmt"

	astiav "github.com/asticode/go-astiav"

	"github.com/27justin/spotlight/internal/gate"
	"github.com/27justin/spotlight/internal/ring"
)

// Config describes one audio device's capture format and ring buffer
// sizing.
type Config struct {
	Title      string // spotlight.audio.device[<title>]
	DeviceName string // backend device identifier (empty = platform default)
	Channels   int    // 1 (mono) or 2 (stereo)
	SampleRate int
	NbSamples  int // samples per capture read/frame
	WindowSize int // seconds
}

// FrameAlloc creates one target-format *astiav.Frame (sample format,
// channel layout, sample rate and nb_samples already set by the caller to
// match the audio codec context), ready for Resampler.Convert to fill. The
// capture Hub supplies this, since it owns the codec context the frame
// format must match.
type FrameAlloc func() (*astiav.Frame, error)

// Stream owns one audio device's Source, Resampler, and ring buffer.
type Stream struct {
	cfg    Config
	src    Source
	resamp *Resampler
	buf    *ring.Buffer[astiav.Frame]

	cancel context.CancelFunc
	done   chan struct{}
	errs   chan error
}

// NewStream opens the device named in cfg, allocates its Resampler and ring
// buffer, and returns a Stream ready to Start.
func NewStream(cfg Config, open func(name string, channels, sampleRate int) (Source, error), alloc FrameAlloc, g *gate.Gate) (*Stream, error) {
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("audio: device %q: unsupported channel count %d", cfg.Title, cfg.Channels)
	}
	if cfg.SampleRate <= 0 || cfg.NbSamples <= 0 || cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("audio: device %q: sample rate, samples-per-read and window size must be positive", cfg.Title)
	}

	src, err := open(cfg.DeviceName, cfg.Channels, cfg.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("audio: device %q: %w", cfg.Title, err)
	}

	resamp, err := NewResampler(cfg.SampleRate, cfg.Channels, cfg.NbSamples)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("audio: device %q: %w", cfg.Title, err)
	}

	// ⌈(SampleRate/NbSamples)·WindowSize⌉ in integer arithmetic: a device
	// whose sample rate isn't an exact multiple of NbSamples gets one extra
	// frame, so the window is never shorter than WindowSize seconds.
	capacity := (cfg.SampleRate*cfg.WindowSize + cfg.NbSamples - 1) / cfg.NbSamples
	if capacity <= 0 {
		capacity = 1
	}
	buf := ring.New(capacity, func() *astiav.Frame {
		f, err := alloc()
		if err != nil {
			panic(fmt.Sprintf("audio: allocate ring frame: %v", err))
		}
		return f
	})

	return &Stream{
		cfg:    cfg,
		src:    src,
		resamp: resamp,
		buf:    buf,
		done:   make(chan struct{}),
		errs:   make(chan error, 1),
	}, nil
}

// Start launches the device's capture worker: gate.Wait, blocking Read,
// Resampler.Convert into a reserved ring slot, repeat.
func (s *Stream) Start(ctx context.Context, g *gate.Gate) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.worker(ctx, g)
}

func (s *Stream) worker(ctx context.Context, g *gate.Gate) {
	defer close(s.done)

	sampleSize := s.src.SampleSize()
	readSize := s.cfg.NbSamples * s.cfg.Channels * sampleSize
	pcm := make([]byte, readSize)

	for {
		if err := g.Wait(ctx); err != nil {
			return
		}

		if err := s.src.Read(ctx, pcm); err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case s.errs <- fmt.Errorf("audio: device %q: read: %w", s.cfg.Title, err):
			default:
			}
			return
		}

		_, frame := s.buf.Reserve()
		if err := s.resamp.Convert(pcm, frame); err != nil {
			select {
			case s.errs <- fmt.Errorf("audio: device %q: convert: %w", s.cfg.Title, err):
			default:
			}
			return
		}
	}
}

// Stop cancels the worker and waits for it to exit, then releases the
// device and resampler.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.resamp.Close()
	s.src.Close()
}

// Errs surfaces an unrecoverable device error (the worker exits after
// sending one).
func (s *Stream) Errs() <-chan error {
	return s.errs
}

// Buffer returns the stream's frame ring buffer, for the Flush/Mux Engine
// to drain.
func (s *Stream) Buffer() *ring.Buffer[astiav.Frame] {
	return s.buf
}

// Title returns the device's configured title.
func (s *Stream) Title() string {
	return s.cfg.Title
}
