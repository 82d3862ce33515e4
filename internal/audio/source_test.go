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
	"sync"
	"testing"
)

// fakeSource is a synthetic Source double producing an incrementing byte
// pattern, used to exercise Stream/Resampler wiring without a real capture
// device.
type fakeSource struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	sampleSize int
	next       byte
	closed     bool
}

func newFakeSource(sampleRate, channels int) *fakeSource {
	return &fakeSource{sampleRate: sampleRate, channels: channels, sampleSize: 2}
}

func (f *fakeSource) Read(ctx context.Context, p []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range p {
		p[i] = f.next
		f.next++
	}
	return nil
}

func (f *fakeSource) SampleRate() int { return f.sampleRate }
func (f *fakeSource) Channels() int   { return f.channels }
func (f *fakeSource) SampleSize() int { return f.sampleSize }
func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestFakeSourceFillsBufferCompletely(t *testing.T) {
	src := newFakeSource(44100, 2)
	buf := make([]byte, 37)
	if err := src.Read(context.Background(), buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, b := range buf {
		if int(b) != i {
			t.Fatalf("buf[%d] = %d, want %d", i, b, i)
		}
	}
}
