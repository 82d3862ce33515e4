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

// Package muxcodec wraps the astiav (libav) types needed to open an output
// container, attach a video track and an audio track per device, and drive
// the encode/mux pipeline. Every track follows the same
// Alloc.../Open/Free lifecycle: allocate a codec context, configure it,
// open it, copy its parameters onto a muxed stream.
package muxcodec

import (
	"errors"
	"fmt"

	astiav "github.com/asticode/go-astiav"
)

// VideoConfig describes the encoder parameters for the video track
// (codec.*, spotlight.framerate).
type VideoConfig struct {
	Name      string // e.g. "libx264"
	Width     int
	Height    int
	FrameRate int
	Bitrate   int
	Options   map[string]string
}

// AudioConfig describes the encoder parameters for one audio device's
// track (spotlight.audio.codec, spotlight.audio.bitrate,
// spotlight.audio.device[<title>].channels).
type AudioConfig struct {
	Name       string // e.g. "aac"
	SampleRate int
	Channels   int
	Bitrate    int
}

// Muxer owns one astiav.FormatContext and the encoders attached to it. A
// Muxer is torn down and rebuilt after every flush rather than reused,
// because libav rejects a second write_header/write_trailer cycle with
// non-monotonic DTS on the same context.
type Muxer struct {
	fc   *astiav.FormatContext
	pb   *astiav.IOContext
	path string
}

// New allocates an output format context for container (e.g. "mp4") at
// path and opens its I/O context for writing. WriteHeader must be called
// once every track has been added via OpenVideoTrack/OpenAudioTrack.
func New(container, path string) (*Muxer, error) {
	fc, err := astiav.AllocOutputFormatContext(nil, container, path)
	if err != nil || fc == nil {
		return nil, fmt.Errorf("muxcodec: allocate output context for %q: %w", path, err)
	}

	pb, err := astiav.OpenIOContext(path, astiav.NewIOContextFlags(astiav.IOContextFlagWrite), nil, nil)
	if err != nil {
		fc.Free()
		return nil, fmt.Errorf("muxcodec: open %q for writing: %w", path, err)
	}
	fc.SetPb(pb)

	return &Muxer{fc: fc, pb: pb, path: path}, nil
}

// VideoTrack is an opened video encoder and its muxed stream.
type VideoTrack struct {
	ctx    *astiav.CodecContext
	stream *astiav.Stream
}

// OpenVideoTrack opens the video encoder named in cfg and attaches a stream
// for it to the muxer.
func (m *Muxer) OpenVideoTrack(cfg VideoConfig) (*VideoTrack, error) {
	codec := astiav.FindEncoderByName(cfg.Name)
	if codec == nil {
		return nil, fmt.Errorf("muxcodec: video encoder %q not found", cfg.Name)
	}

	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, fmt.Errorf("muxcodec: allocate video codec context")
	}

	ctx.SetWidth(cfg.Width)
	ctx.SetHeight(cfg.Height)
	ctx.SetPixelFormat(astiav.PixelFormatYuv420P)
	ctx.SetTimeBase(astiav.NewRational(1, cfg.FrameRate))
	ctx.SetFramerate(astiav.NewRational(cfg.FrameRate, 1))
	ctx.SetBitRate(int64(cfg.Bitrate))
	ctx.SetGopSize(10)
	ctx.SetMaxBFrames(1)

	stream := m.fc.NewStream(nil)
	if stream == nil {
		ctx.Free()
		return nil, fmt.Errorf("muxcodec: allocate video stream")
	}

	dict := astiav.NewDictionary()
	defer dict.Free()
	for k, v := range cfg.Options {
		_ = dict.Set(k, v, 0)
	}

	if err := ctx.Open(codec, dict); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("muxcodec: open video encoder %q: %w", cfg.Name, err)
	}

	if err := ctx.ToCodecParameters(stream.CodecParameters()); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("muxcodec: copy video codec parameters: %w", err)
	}
	stream.SetTimeBase(ctx.TimeBase())

	return &VideoTrack{ctx: ctx, stream: stream}, nil
}

// AudioTrack is an opened audio encoder and its muxed stream.
type AudioTrack struct {
	ctx    *astiav.CodecContext
	stream *astiav.Stream
}

// openAudioCodec allocates and opens an audio encoder context for cfg,
// without attaching it to any muxer. Shared by OpenAudioTrack and
// ProbeAudioCodec.
func openAudioCodec(cfg AudioConfig) (*astiav.Codec, *astiav.CodecContext, error) {
	codec := astiav.FindEncoderByName(cfg.Name)
	if codec == nil {
		return nil, nil, fmt.Errorf("muxcodec: audio encoder %q not found", cfg.Name)
	}

	ctx := astiav.AllocCodecContext(codec)
	if ctx == nil {
		return nil, nil, fmt.Errorf("muxcodec: allocate audio codec context")
	}

	layout := astiav.ChannelLayoutMono
	if cfg.Channels == 2 {
		layout = astiav.ChannelLayoutStereo
	}
	ctx.SetChannelLayout(layout)
	ctx.SetSampleRate(cfg.SampleRate)
	if sfs := codec.SampleFormats(); len(sfs) > 0 {
		ctx.SetSampleFormat(sfs[0])
	}
	ctx.SetTimeBase(astiav.NewRational(1, cfg.SampleRate))
	ctx.SetBitRate(int64(cfg.Bitrate))
	ctx.SetStrictStdCompliance(astiav.StrictStdComplianceExperimental)

	if err := ctx.Open(codec, nil); err != nil {
		ctx.Free()
		return nil, nil, fmt.Errorf("muxcodec: open audio encoder %q: %w", cfg.Name, err)
	}

	return codec, ctx, nil
}

// OpenAudioTrack opens the audio encoder named in cfg for one device and
// attaches a stream for it.
func (m *Muxer) OpenAudioTrack(cfg AudioConfig) (*AudioTrack, error) {
	codec, ctx, err := openAudioCodec(cfg)
	if err != nil {
		return nil, err
	}

	stream := m.fc.NewStream(codec)
	if stream == nil {
		ctx.Free()
		return nil, fmt.Errorf("muxcodec: allocate audio stream")
	}

	if err := ctx.ToCodecParameters(stream.CodecParameters()); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("muxcodec: copy audio codec parameters: %w", err)
	}
	stream.SetTimeBase(ctx.TimeBase())

	return &AudioTrack{ctx: ctx, stream: stream}, nil
}

// ProbedAudioFormat describes the exact frame shape an audio encoder
// expects, queried once at Hub construction so the long-lived ring buffer
// frames it feeds can be allocated before any muxer/track exists for the
// current flush cycle — tracks are rebuilt every flush, but the ring
// buffers they feed are not.
type ProbedAudioFormat struct {
	SampleFormat    astiav.SampleFormat
	ChannelLayout   astiav.ChannelLayout
	SamplesPerFrame int
}

// ProbeAudioCodec opens and immediately closes an audio encoder context for
// cfg purely to read back the frame shape it requires.
func ProbeAudioCodec(cfg AudioConfig) (ProbedAudioFormat, error) {
	_, ctx, err := openAudioCodec(cfg)
	if err != nil {
		return ProbedAudioFormat{}, err
	}
	defer ctx.Free()

	nbSamples := ctx.FrameSize()
	if nbSamples <= 0 {
		nbSamples = 1024
	}

	return ProbedAudioFormat{
		SampleFormat:    ctx.SampleFormat(),
		ChannelLayout:   ctx.ChannelLayout(),
		SamplesPerFrame: nbSamples,
	}, nil
}

// SampleFormat reports the sample format libswresample must produce for
// this track (needed by audio.FrameAlloc).
func (t *AudioTrack) SampleFormat() astiav.SampleFormat { return t.ctx.SampleFormat() }

// ChannelLayout reports the channel layout libswresample must produce.
func (t *AudioTrack) ChannelLayout() astiav.ChannelLayout { return t.ctx.ChannelLayout() }

// SampleRate reports the track's sample rate.
func (t *AudioTrack) SampleRate() int { return t.ctx.SampleRate() }

// FrameSize reports the number of samples the encoder expects per frame.
func (t *AudioTrack) FrameSize() int { return t.ctx.FrameSize() }

// WriteHeader writes the container header. Call once after opening every
// track, before encoding any frame.
func (m *Muxer) WriteHeader() error {
	if err := m.fc.WriteHeader(nil); err != nil {
		return fmt.Errorf("muxcodec: write header: %w", err)
	}
	return nil
}

// WriteTrailer writes the container trailer, finalizing the file.
func (m *Muxer) WriteTrailer() error {
	if err := m.fc.WriteTrailer(); err != nil {
		return fmt.Errorf("muxcodec: write trailer: %w", err)
	}
	return nil
}

// Close closes the I/O context and frees the format context. It does not
// free any track's codec context — callers free those via VideoTrack/
// AudioTrack.Close first.
func (m *Muxer) Close() error {
	if m.pb != nil {
		if err := m.pb.Close(); err != nil {
			return fmt.Errorf("muxcodec: close %q: %w", m.path, err)
		}
		m.pb.Free()
		m.pb = nil
	}
	if m.fc != nil {
		m.fc.Free()
		m.fc = nil
	}
	return nil
}

// encodeAndWrite drains frame through the track's encoder and writes every
// resulting packet to fc via WriteInterleavedFrame, rescaling timestamps
// from the encoder's time base to the stream's. frame may be nil to flush
// the encoder at end of stream.
func (m *Muxer) encodeAndWrite(ctx *astiav.CodecContext, stream *astiav.Stream, frame *astiav.Frame) error {
	if err := ctx.SendFrame(frame); err != nil {
		return fmt.Errorf("muxcodec: send frame: %w", err)
	}
	pkt := astiav.AllocPacket()
	defer pkt.Free()
	for {
		err := ctx.ReceivePacket(pkt)
		if err != nil {
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				return nil
			}
			return fmt.Errorf("muxcodec: receive packet: %w", err)
		}
		pkt.RescaleTs(ctx.TimeBase(), stream.TimeBase())
		pkt.SetStreamIndex(stream.Index())
		if err := m.fc.WriteInterleavedFrame(pkt); err != nil {
			pkt.Unref()
			return fmt.Errorf("muxcodec: write packet: %w", err)
		}
		pkt.Unref()
	}
}

// EncodeVideoFrame encodes one frame (with pts/dts already assigned by the
// caller) into the video track and writes resulting packets.
func (m *Muxer) EncodeVideoFrame(t *VideoTrack, frame *astiav.Frame) error {
	return m.encodeAndWrite(t.ctx, t.stream, frame)
}

// EncodeAudioFrame encodes one frame (with pts/dts already assigned by the
// caller) into the audio track and writes resulting packets.
func (m *Muxer) EncodeAudioFrame(t *AudioTrack, frame *astiav.Frame) error {
	return m.encodeAndWrite(t.ctx, t.stream, frame)
}

// Close frees the video track's codec context. The muxer's stream object
// itself is owned by the format context and freed by Muxer.Close.
func (t *VideoTrack) Close() error {
	if t.ctx != nil {
		t.ctx.Free()
		t.ctx = nil
	}
	return nil
}

// Close frees the audio track's codec context.
func (t *AudioTrack) Close() error {
	if t.ctx != nil {
		t.ctx.Free()
		t.ctx = nil
	}
	return nil
}

// TimeBase reports the video encoder's time base, for PTS rescaling.
func (t *VideoTrack) TimeBase() astiav.Rational { return t.ctx.TimeBase() }

// StreamTimeBase reports the muxed stream's time base.
func (t *VideoTrack) StreamTimeBase() astiav.Rational { return t.stream.TimeBase() }
