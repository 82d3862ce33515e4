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

package video

import (
	"context"
	"fmt"

	astiav "github.com/asticode/go-astiav"

	"github.com/27justin/spotlight/internal/gate"
	"github.com/27justin/spotlight/internal/ring"
)

// Config describes one video stream's capture geometry, pacing, and ring
// buffer sizing.
type Config struct {
	Rect       Rect
	Target     Dimensions
	FrameRate  int
	Workers    int
	WindowSize int // ring capacity in seconds' worth of frames
}

// Stream owns a video stream's ring buffer and WorkerRing. Source opens a
// FrameSource for a given worker ID; tests pass a closure returning
// PatternSource instances, a real deployment one wired against a
// display-server client library.
type Stream struct {
	cfg  Config
	buf  *ring.Buffer[astiav.Frame]
	ring *WorkerRing
}

// NewStream allocates the ring buffer (capacity = FrameRate * WindowSize)
// and constructs the WorkerRing. Source is invoked once per worker at Start
// time.
func NewStream(cfg Config, source func(workerID int) (FrameSource, error), g *gate.Gate) (*Stream, error) {
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("video: frame rate must be positive, got %d", cfg.FrameRate)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("video: worker count must be positive, got %d", cfg.Workers)
	}
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("video: window size must be positive, got %d", cfg.WindowSize)
	}

	capacity := cfg.FrameRate * cfg.WindowSize
	buf := ring.New(capacity, func() *astiav.Frame {
		f := astiav.AllocFrame()
		f.SetWidth(cfg.Target.Width)
		f.SetHeight(cfg.Target.Height)
		f.SetPixelFormat(astiav.PixelFormatYuv420P)
		if err := f.AllocBuffer(1); err != nil {
			panic(fmt.Sprintf("video: allocate ring frame buffer: %v", err))
		}
		return f
	})

	newConverter := func() (*Converter, error) {
		return NewConverter(cfg.Rect, cfg.Target)
	}

	wr := newWorkerRing(cfg.Workers, cfg.FrameRate, cfg.Rect, source, newConverter, buf, g)

	return &Stream{cfg: cfg, buf: buf, ring: wr}, nil
}

// Start launches the stream's WorkerRing.
func (s *Stream) Start(ctx context.Context) error {
	return s.ring.Start(ctx)
}

// Stop halts all workers and waits for them to exit.
func (s *Stream) Stop() {
	s.ring.Stop()
}

// Errs surfaces unrecoverable per-worker capture/convert errors.
func (s *Stream) Errs() <-chan error {
	return s.ring.Errs()
}

// Buffer returns the stream's underlying frame ring buffer, for the
// Flush/Mux Engine to drain.
func (s *Stream) Buffer() *ring.Buffer[astiav.Frame] {
	return s.buf
}

// Dimensions reports the stream's encoder-facing target resolution.
func (s *Stream) Dimensions() Dimensions {
	return s.cfg.Target
}

// FrameRate reports the stream's configured capture/encode frame rate.
func (s *Stream) FrameRate() int {
	return s.cfg.FrameRate
}
