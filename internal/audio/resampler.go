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
	"fmt"

	astiav "github.com/asticode/go-astiav"
)

// Resampler converts captured PCM into the encoder's sample format, rate,
// and channel layout. It wraps astiav.SoftwareResampleContext as a lazily
// self-configuring context driven entirely through ConvertFrame.
//
// A Resampler MUST NOT be shared between goroutines or devices: like the
// Converter in the video package, the underlying context is not
// thread-safe. Each audio Stream owns its own.
type Resampler struct {
	swr *astiav.SoftwareResampleContext
	src *astiav.Frame // reusable staging frame at the device's native format
}

// NewResampler allocates a Resampler staging frame sized for one capture
// read's worth of samples (nbSamples) at the device's native sample rate
// and channel count. libswresample configures itself from the first
// ConvertFrame call's source/destination frames.
func NewResampler(sampleRate, channels, nbSamples int) (*Resampler, error) {
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, fmt.Errorf("audio: allocate resample context")
	}

	layout := astiav.ChannelLayoutMono
	if channels == 2 {
		layout = astiav.ChannelLayoutStereo
	}

	staging := astiav.AllocFrame()
	staging.SetSampleFormat(astiav.SampleFormatS16)
	staging.SetChannelLayout(layout)
	staging.SetSampleRate(sampleRate)
	staging.SetNbSamples(nbSamples)
	if err := staging.AllocBuffer(0); err != nil {
		swr.Free()
		staging.Free()
		return nil, fmt.Errorf("audio: allocate staging frame: %w", err)
	}

	return &Resampler{swr: swr, src: staging}, nil
}

// Convert copies pcm (interleaved signed 16-bit samples, exactly
// nbSamples*channels*2 bytes, as produced by Source.Read) into the staging
// frame and resamples it into dst, which must already carry the target
// sample format, channel layout, sample rate and nb_samples (the Ring
// Buffer's pre-allocated frames satisfy this, set up at stream creation).
func (r *Resampler) Convert(pcm []byte, dst *astiav.Frame) error {
	if err := r.src.MakeWritable(); err != nil {
		return fmt.Errorf("audio: make staging frame writable: %w", err)
	}
	buf, err := r.src.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("audio: staging frame data: %w", err)
	}
	if len(pcm) != len(buf) {
		return fmt.Errorf("audio: pcm length %d does not match staging frame capacity %d", len(pcm), len(buf))
	}
	copy(buf, pcm)

	if err := dst.MakeWritable(); err != nil {
		return fmt.Errorf("audio: make target frame writable: %w", err)
	}

	if err := r.swr.ConvertFrame(r.src, dst); err != nil {
		return fmt.Errorf("audio: convert frame: %w", err)
	}
	return nil
}

// Close releases the resample context and staging frame.
func (r *Resampler) Close() error {
	if r.src != nil {
		r.src.Free()
		r.src = nil
	}
	if r.swr != nil {
		r.swr.Free()
		r.swr = nil
	}
	return nil
}
