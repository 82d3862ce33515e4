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
	"sync"
	"sync/atomic"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/27justin/spotlight/internal/gate"
	"github.com/27justin/spotlight/internal/ring"
)

// WorkerRing paces N capture workers around a single turn-token so that
// captures start one at a time, in strict round-robin order, at the stream's
// configured frame rate in aggregate. The token is handed on before the
// capture itself, so a capture that outlasts the frame interval overlaps the
// next worker's capture; each worker's private Image keeps such overlapping
// captures apart. Each worker captures into
// its own private Image, reserves its own ring slot, then converts into that
// slot — conversion happens off the turn-token, so the expensive
// scale/color-convert work of worker N-1 overlaps the capture of worker N.
type WorkerRing struct {
	source    func(workerID int) (FrameSource, error)
	converter func() (*Converter, error)
	rect      Rect
	buf       *ring.Buffer[astiav.Frame]
	gate      *gate.Gate
	interval  time.Duration

	tokens []chan struct{}

	lastCaptureMillis atomic.Int64

	wg     sync.WaitGroup
	cancel context.CancelFunc
	errs   chan error
}

// newWorkerRing constructs a WorkerRing with n workers. Worker 0 starts
// holding the turn-token; every other worker's channel starts empty.
func newWorkerRing(n int, frameRate int, rect Rect, source func(workerID int) (FrameSource, error), converter func() (*Converter, error), buf *ring.Buffer[astiav.Frame], g *gate.Gate) *WorkerRing {
	wr := &WorkerRing{
		source:    source,
		converter: converter,
		rect:      rect,
		buf:       buf,
		gate:      g,
		interval:  time.Second / time.Duration(frameRate),
		tokens:    make([]chan struct{}, n),
		errs:      make(chan error, n),
	}
	for i := range wr.tokens {
		wr.tokens[i] = make(chan struct{}, 1)
	}
	wr.tokens[0] <- struct{}{}
	return wr
}

// Start launches all workers. Each worker blocks until ctx is canceled or
// Stop is called.
func (wr *WorkerRing) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	wr.cancel = cancel

	for id := range wr.tokens {
		src, err := wr.source(id)
		if err != nil {
			cancel()
			return fmt.Errorf("video: worker %d: open source: %w", id, err)
		}
		conv, err := wr.converter()
		if err != nil {
			cancel()
			src.Close()
			return fmt.Errorf("video: worker %d: create converter: %w", id, err)
		}

		wr.wg.Add(1)
		go wr.worker(ctx, id, src, conv)
	}
	return nil
}

// Stop cancels every worker and waits for them to exit.
func (wr *WorkerRing) Stop() {
	if wr.cancel != nil {
		wr.cancel()
	}
	wr.wg.Wait()
}

// Errs returns a channel workers push unrecoverable capture errors onto.
func (wr *WorkerRing) Errs() <-chan error {
	return wr.errs
}

func (wr *WorkerRing) next(id int) int {
	return (id + 1) % len(wr.tokens)
}

// worker runs the per-worker capture loop:
//  1. if the gate is closed, park until it opens
//  2. wait for this worker's turn-token
//  3. sleep off whatever is left of the frame interval since the last
//     capture by any worker, so the aggregate rate matches the configured
//     frame rate regardless of worker count
//  4. record the capture timestamp
//  5. hand the turn-token to the next worker — capture/convert below
//     proceeds concurrently with that worker's own wait in steps 1-2
//  6. capture into this worker's private Image
//  7. reserve a ring slot
//  8. convert into the reserved slot
func (wr *WorkerRing) worker(ctx context.Context, id int, src FrameSource, conv *Converter) {
	defer wr.wg.Done()
	defer src.Close()
	defer conv.Close()

	img := NewImage(wr.rect)
	wr.loop(ctx, id, src, conv, img)
}

func (wr *WorkerRing) loop(ctx context.Context, id int, src FrameSource, conv *Converter, img *Image) {
	for {
		if err := wr.gate.Wait(ctx); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-wr.tokens[id]:
		}

		now := time.Now()
		last := wr.lastCaptureMillis.Load()
		if last != 0 {
			elapsed := now.Sub(time.UnixMilli(last))
			if wait := wr.interval - elapsed; wait > 0 {
				select {
				case <-ctx.Done():
					wr.tokens[wr.next(id)] <- struct{}{}
					return
				case <-time.After(wait):
				}
			}
		}
		wr.lastCaptureMillis.Store(time.Now().UnixMilli())

		wr.tokens[wr.next(id)] <- struct{}{}

		if err := src.Capture(ctx, img); err != nil {
			select {
			case wr.errs <- fmt.Errorf("video: worker %d: capture: %w", id, err):
			default:
			}
			return
		}

		_, frame := wr.buf.Reserve()
		if err := conv.Convert(img, frame); err != nil {
			select {
			case wr.errs <- fmt.Errorf("video: worker %d: convert: %w", id, err):
			default:
			}
		}
	}
}
