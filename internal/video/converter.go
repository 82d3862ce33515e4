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
	"fmt"

	astiav "github.com/asticode/go-astiav"
)

// Converter resizes and converts a captured RGB32 Image into a planar
// YUV 4:2:0 encoder frame. It wraps an astiav.SoftwareScaleContext: a small
// intermediate *astiav.Frame holds the raw pixels, and
// SoftwareScaleContext.ScaleFrame does the conversion.
//
// A Converter MUST NOT be shared between goroutines: the underlying scaler
// keeps internal mutable state. Every Worker in a WorkerRing therefore
// allocates its own Converter.
type Converter struct {
	sws *astiav.SoftwareScaleContext
	src *astiav.Frame // reusable BGRA staging frame, src.Width x src.Height
	dst Dimensions
}

// NewConverter creates a Converter scaling from src (RGB32/BGRA) to dst
// (YUV420P), using the default fast-bilinear algorithm. A configurable
// algorithm choice is not wired (see DESIGN.md).
func NewConverter(src Rect, dst Dimensions) (*Converter, error) {
	sws, err := astiav.CreateSoftwareScaleContext(
		src.Width, src.Height, astiav.PixelFormatBgra,
		dst.Width, dst.Height, astiav.PixelFormatYuv420P,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagFastBilinear),
	)
	if err != nil {
		return nil, fmt.Errorf("video: create scale context %dx%d->%dx%d: %w", src.Width, src.Height, dst.Width, dst.Height, err)
	}

	staging := astiav.AllocFrame()
	staging.SetWidth(src.Width)
	staging.SetHeight(src.Height)
	staging.SetPixelFormat(astiav.PixelFormatBgra)
	if err := staging.AllocBuffer(1); err != nil {
		sws.Free()
		staging.Free()
		return nil, fmt.Errorf("video: allocate staging frame: %w", err)
	}

	return &Converter{sws: sws, src: staging, dst: dst}, nil
}

// Convert scales src into dst, which must already be allocated at the
// Converter's target dimensions in YUV420P (the Ring Buffer's pre-allocated
// frames satisfy this).
func (c *Converter) Convert(src *Image, dst *astiav.Frame) error {
	if err := c.src.MakeWritable(); err != nil {
		return fmt.Errorf("video: make staging frame writable: %w", err)
	}
	buf, err := c.src.Data().Bytes(0)
	if err != nil {
		return fmt.Errorf("video: staging frame data: %w", err)
	}
	copy(buf, src.Pix)

	if err := dst.MakeWritable(); err != nil {
		return fmt.Errorf("video: make target frame writable: %w", err)
	}

	if err := c.sws.ScaleFrame(c.src, dst); err != nil {
		return fmt.Errorf("video: scale frame: %w", err)
	}
	return nil
}

// Close releases the underlying scale context and staging frame.
func (c *Converter) Close() error {
	if c.src != nil {
		c.src.Free()
		c.src = nil
	}
	if c.sws != nil {
		c.sws.Free()
		c.sws = nil
	}
	return nil
}
