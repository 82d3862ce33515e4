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
	"testing"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/27justin/spotlight/internal/gate"
)

func testFrameAlloc(channels, sampleRate, nbSamples int) FrameAlloc {
	return func() (*astiav.Frame, error) {
		layout := astiav.ChannelLayoutMono
		if channels == 2 {
			layout = astiav.ChannelLayoutStereo
		}
		f := astiav.AllocFrame()
		f.SetSampleFormat(astiav.SampleFormatS16)
		f.SetChannelLayout(layout)
		f.SetSampleRate(sampleRate)
		f.SetNbSamples(nbSamples)
		if err := f.AllocBuffer(0); err != nil {
			return nil, err
		}
		return f, nil
	}
}

func TestStreamReservesOneFramePerRead(t *testing.T) {
	cfg := Config{
		Title:      "mic",
		Channels:   1,
		SampleRate: 8000,
		NbSamples:  160,
		WindowSize: 1,
	}

	var src *fakeSource
	open := func(name string, channels, sampleRate int) (Source, error) {
		src = newFakeSource(sampleRate, channels)
		return src, nil
	}

	g := &gate.Gate{}
	s, err := NewStream(cfg, open, testFrameAlloc(cfg.Channels, cfg.SampleRate, cfg.NbSamples), g)
	if err != nil {
		t.Fatalf("NewStream: %v", err)
	}

	want := s.Buffer().Capacity()
	if want <= 0 {
		t.Fatalf("ring capacity = %d, want > 0", want)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx, g)

	deadline := time.After(2 * time.Second)
	for {
		if s.Buffer().FrameCount() >= uint64(want)*2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("frame count = %d after timeout, want at least %d", s.Buffer().FrameCount(), want*2)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	s.Stop()
}

func TestStreamRejectsBadChannelCount(t *testing.T) {
	cfg := Config{Title: "mic", Channels: 3, SampleRate: 8000, NbSamples: 160, WindowSize: 1}
	open := func(name string, channels, sampleRate int) (Source, error) {
		return newFakeSource(sampleRate, channels), nil
	}
	g := &gate.Gate{}
	if _, err := NewStream(cfg, open, testFrameAlloc(2, 8000, 160), g); err == nil {
		t.Fatal("expected error for unsupported channel count")
	}
}
