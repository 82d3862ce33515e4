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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/27justin/spotlight/internal/gate"
)

// trackingSource wraps a PatternSource and records, for every Capture call,
// whether any other worker was mid-capture at the same time (with captures
// far shorter than the frame interval, as here, none should be) and which
// worker captured (property:
// workers take turns strictly in round-robin order).
type trackingSource struct {
	*PatternSource
	id   int
	busy *atomic.Int32

	mu      *sync.Mutex
	order   *[]int
	overlap *atomic.Bool
}

func (t *trackingSource) Capture(ctx context.Context, into *Image) error {
	if t.busy.Add(1) != 1 {
		t.overlap.Store(true)
	}
	defer t.busy.Add(-1)

	t.mu.Lock()
	*t.order = append(*t.order, t.id)
	t.mu.Unlock()

	return t.PatternSource.Capture(ctx, into)
}

func TestWorkerRingTurnOrderAndNoOverlap(t *testing.T) {
	const workers = 4
	const frameRate = 200 // fast, to collect many samples quickly

	rect := Rect{Width: 4, Height: 4}
	cfg := Config{
		Rect:       rect,
		Target:     Dimensions{Width: 4, Height: 4},
		FrameRate:  frameRate,
		Workers:    workers,
		WindowSize: 1,
	}

	var busy atomic.Int32
	var overlap atomic.Bool
	var mu sync.Mutex
	var order []int

	source := func(workerID int) (FrameSource, error) {
		return &trackingSource{
			PatternSource: NewPatternSource(rect),
			id:            workerID,
			busy:          &busy,
			mu:            &mu,
			order:         &order,
			overlap:       &overlap,
		}, nil
	}

	g := &gate.Gate{}
	s, err := NewStream(cfg, source, g)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Stop()

	if overlap.Load() {
		t.Fatal("detected overlapping captures across workers")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) < workers*2 {
		t.Fatalf("too few captures recorded to verify ordering: %d", len(order))
	}
	for i := 1; i < len(order); i++ {
		want := (order[i-1] + 1) % workers
		if order[i] != want {
			t.Fatalf("capture %d: worker %d captured out of turn after worker %d (want %d)", i, order[i], order[i-1], want)
		}
	}
}

func TestStreamRingCapacityMatchesWindow(t *testing.T) {
	rect := Rect{Width: 2, Height: 2}
	cfg := Config{
		Rect:       rect,
		Target:     Dimensions{Width: 2, Height: 2},
		FrameRate:  30,
		Workers:    2,
		WindowSize: 5,
	}
	source := func(workerID int) (FrameSource, error) {
		return NewPatternSource(rect), nil
	}
	g := &gate.Gate{}
	s, err := NewStream(cfg, source, g)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}
	if got, want := s.Buffer().Capacity(), 30*5; got != want {
		t.Errorf("ring capacity = %d, want %d (frameRate*windowSize)", got, want)
	}
}
