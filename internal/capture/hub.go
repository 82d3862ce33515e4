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

// Package capture implements the Capture Hub: it owns the process-wide
// pause Gate, every video and audio stream's ring buffer, and the flush/mux
// engine that drains those buffers into a container file on trigger.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	astiav "github.com/asticode/go-astiav"

	"github.com/27justin/spotlight/internal/audio"
	"github.com/27justin/spotlight/internal/gate"
	"github.com/27justin/spotlight/internal/muxcodec"
	"github.com/27justin/spotlight/internal/video"
)

// State is the Hub's lifecycle state.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateRunning
	StateFlushing
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateFlushing:
		return "flushing"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// ErrNotRunning is returned by Flush when the Hub has not been started.
var ErrNotRunning = errors.New("capture: hub is not running")

// Config collects everything the Hub needs to build its streams and
// container.
type Config struct {
	Container     string
	OutputPath    func(triggeredAt time.Time) string
	VideoConfig   muxcodec.VideoConfig
	AudioDevices  []AudioDeviceConfig
	WindowSeconds int
}

// AudioDeviceConfig pairs one physical device's capture Config with the
// muxcodec.AudioConfig describing its encoder track.
type AudioDeviceConfig struct {
	Capture audio.Config
	Codec   muxcodec.AudioConfig
}

type audioStream struct {
	stream *audio.Stream
	codec  muxcodec.AudioConfig
	pts    int64
}

// Hub coordinates every capture stream and the Flush/Mux Engine.
type Hub struct {
	cfg  Config
	gate *gate.Gate

	mu    sync.Mutex
	state State

	videoStream *video.Stream
	audioStream []*audioStream

	ctx    context.Context
	cancel context.CancelFunc
	errs   chan error
}

// New builds the Hub's video and audio streams — their ring buffers are
// long-lived; only the muxer and codec tracks are rebuilt on every flush —
// but does not yet open a muxer or start capturing.
func New(cfg Config, newFrameSource func(workerID int) (video.FrameSource, error), openAudioDevice func(name string, channels, sampleRate int) (audio.Source, error), videoCfg video.Config) (*Hub, error) {
	h := &Hub{
		cfg:   cfg,
		gate:  &gate.Gate{},
		state: StateInitializing,
		errs:  make(chan error, 1+len(cfg.AudioDevices)),
	}

	vs, err := video.NewStream(videoCfg, newFrameSource, h.gate)
	if err != nil {
		return nil, fmt.Errorf("capture: build video stream: %w", err)
	}
	h.videoStream = vs

	for _, dev := range cfg.AudioDevices {
		probed, err := muxcodec.ProbeAudioCodec(dev.Codec)
		if err != nil {
			return nil, fmt.Errorf("capture: probe audio codec for device %q: %w", dev.Capture.Title, err)
		}

		devCfg := dev.Capture
		devCfg.NbSamples = probed.SamplesPerFrame
		alloc := func() (*astiav.Frame, error) {
			f := astiav.AllocFrame()
			f.SetSampleFormat(probed.SampleFormat)
			f.SetChannelLayout(probed.ChannelLayout)
			f.SetSampleRate(dev.Codec.SampleRate)
			f.SetNbSamples(probed.SamplesPerFrame)
			if err := f.AllocBuffer(0); err != nil {
				return nil, fmt.Errorf("capture: allocate audio ring frame: %w", err)
			}
			return f, nil
		}

		as, err := audio.NewStream(devCfg, openAudioDevice, alloc, h.gate)
		if err != nil {
			return nil, fmt.Errorf("capture: build audio stream for device %q: %w", dev.Capture.Title, err)
		}
		h.audioStream = append(h.audioStream, &audioStream{stream: as, codec: dev.Codec})
	}

	h.state = StateReady
	return h, nil
}

// Start launches every worker.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateReady {
		return fmt.Errorf("capture: cannot start from state %s", h.state)
	}

	h.ctx, h.cancel = context.WithCancel(ctx)

	if err := h.videoStream.Start(h.ctx); err != nil {
		return fmt.Errorf("capture: start video stream: %w", err)
	}
	go h.forward(h.videoStream.Errs())

	for _, as := range h.audioStream {
		as.stream.Start(h.ctx, h.gate)
		go h.forward(as.stream.Errs())
	}

	h.state = StateRunning
	return nil
}

// forward relays worker errors onto the Hub's error channel without
// blocking the worker that produced them.
func (h *Hub) forward(src <-chan error) {
	for err := range src {
		select {
		case h.errs <- err:
		default:
			log.Printf("capture: dropped error, channel full: %v", err)
		}
	}
}

// Stop halts every worker.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
	}
	h.videoStream.Stop()
	for _, as := range h.audioStream {
		as.stream.Stop()
	}
	h.state = StateTerminating
}

// Errs surfaces unrecoverable stream errors.
func (h *Hub) Errs() <-chan error {
	return h.errs
}

// Flush implements the flush/mux engine: pause every worker, open a fresh
// muxer and codec tracks, drain every ring buffer into it oldest-first with
// monotonic PTS, write the trailer, close the file, and resume. triggeredAt
// names the output file via cfg.OutputPath.
func (h *Hub) Flush(triggeredAt time.Time) error {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return ErrNotRunning
	}
	h.state = StateFlushing
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.state = StateRunning
		h.mu.Unlock()
	}()

	h.gate.Pause()
	defer h.gate.Resume()

	// Give any worker already past its own gate.Wait check a moment to land
	// back at the top of its loop before its ring slot is touched below. The
	// muxer/encoder allocation that follows takes much longer than this in
	// practice, but that's incidental rather than a guarantee; this settle
	// step makes the quiesce explicit instead of relying on it.
	time.Sleep(2 * time.Millisecond)

	path := h.cfg.OutputPath(triggeredAt)
	log.Printf("capture: flushing into %s", path)

	mux, err := muxcodec.New(h.cfg.Container, path)
	if err != nil {
		return fmt.Errorf("capture: flush: %w", err)
	}

	videoTrack, err := mux.OpenVideoTrack(h.cfg.VideoConfig)
	if err != nil {
		mux.Close()
		return fmt.Errorf("capture: flush: open video track: %w", err)
	}

	audioTracks := make([]*muxcodec.AudioTrack, len(h.audioStream))
	for i, as := range h.audioStream {
		t, err := mux.OpenAudioTrack(as.codec)
		if err != nil {
			videoTrack.Close()
			for j := 0; j < i; j++ {
				audioTracks[j].Close()
			}
			mux.Close()
			return fmt.Errorf("capture: flush: open audio track %q: %w", as.stream.Title(), err)
		}
		audioTracks[i] = t
	}

	if err := mux.WriteHeader(); err != nil {
		videoTrack.Close()
		for _, t := range audioTracks {
			t.Close()
		}
		mux.Close()
		return fmt.Errorf("capture: flush: %w", err)
	}

	log.Printf("capture: draining video stream")
	var drainErr error
	h.videoStream.Buffer().Drain(func(n int, frame *astiav.Frame) {
		if drainErr != nil {
			return
		}
		// OpenVideoTrack sets the stream's time base equal to the codec's,
		// so rescaling emission index n from codec time base to stream
		// time base is the identity conversion here.
		pts := int64(n)
		frame.SetPts(pts)
		frame.SetPktDts(pts)
		if err := mux.EncodeVideoFrame(videoTrack, frame); err != nil {
			drainErr = fmt.Errorf("encode video frame %d: %w", n, err)
		}
	})
	if drainErr == nil {
		drainErr = flushEncoder(mux.EncodeVideoFrame, videoTrack)
	}

	for i, as := range h.audioStream {
		if drainErr != nil {
			break
		}
		track := audioTracks[i]
		as.pts = 0
		log.Printf("capture: draining audio stream %q", as.stream.Title())
		as.stream.Buffer().Drain(func(n int, frame *astiav.Frame) {
			if drainErr != nil {
				return
			}
			frame.SetPts(as.pts)
			frame.SetPktDts(as.pts)
			as.pts += int64(frame.NbSamples())
			if err := mux.EncodeAudioFrame(track, frame); err != nil {
				drainErr = fmt.Errorf("encode audio frame %d on device %q: %w", n, as.stream.Title(), err)
			}
		})
	}
	if drainErr == nil {
		for i := range h.audioStream {
			if err := flushAudioEncoder(mux, audioTracks[i]); err != nil {
				drainErr = err
				break
			}
		}
	}

	if drainErr == nil {
		drainErr = mux.WriteTrailer()
	}

	videoTrack.Close()
	for _, t := range audioTracks {
		t.Close()
	}
	mux.Close()

	h.videoStream.Buffer().Reset()
	for _, as := range h.audioStream {
		as.stream.Buffer().Reset()
		as.pts = 0
	}

	if drainErr != nil {
		return fmt.Errorf("capture: flush: %w", drainErr)
	}
	log.Printf("capture: flush complete: %s", path)
	return nil
}

func flushEncoder(encode func(*muxcodec.VideoTrack, *astiav.Frame) error, t *muxcodec.VideoTrack) error {
	if err := encode(t, nil); err != nil {
		return fmt.Errorf("flush video encoder: %w", err)
	}
	return nil
}

func flushAudioEncoder(mux *muxcodec.Muxer, t *muxcodec.AudioTrack) error {
	if err := mux.EncodeAudioFrame(t, nil); err != nil {
		return fmt.Errorf("flush audio encoder: %w", err)
	}
	return nil
}
