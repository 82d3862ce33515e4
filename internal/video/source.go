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

// Package video implements the video-side capture pipeline: the Frame
// Source contract, the pixel Converter, the frame ring buffer wiring, and
// the turn-token Worker Ring that paces them.
package video

import (
	"context"
	"errors"
	"math"
)

// ErrCaptureUnavailable is returned when the capture extension/API the
// FrameSource depends on is missing.
var ErrCaptureUnavailable = errors.New("video: capture extension unavailable")

// ErrDisplayLost is returned when the display-server connection drops
// mid-session.
var ErrDisplayLost = errors.New("video: display connection lost")

// Rect is a capture rectangle in screen space
// (spotlight.capture.{x,y,width,height}).
type Rect struct {
	X, Y, Width, Height int
}

// Dimensions is a plain width/height pair, used for the encoder's target
// resolution (spotlight.capture.scale.{width,height}).
type Dimensions struct {
	Width, Height int
}

// Image is a caller-owned RGB32 (8-8-8-8 BGRA-packed) framebuffer snapshot,
// tightly packed at Width*Height*4 bytes.
type Image struct {
	Width, Height int
	Pix           []byte
}

// NewImage allocates an Image sized for rect. A worker allocates exactly one
// of these and reuses it for the lifetime of its loop.
func NewImage(rect Rect) *Image {
	return &Image{
		Width:  rect.Width,
		Height: rect.Height,
		Pix:    make([]byte, rect.Width*rect.Height*4),
	}
}

// FrameSource captures one screen image into a caller-supplied buffer. A
// FrameSource is not safe for concurrent use; each worker owns exactly one
// instance and its own backing connection.
type FrameSource interface {
	// Capture copies the current root-window framebuffer content for the
	// source's configured rectangle into into. into must already be sized
	// for that rectangle (see NewImage).
	Capture(ctx context.Context, into *Image) error
	// Close releases the source's connection and any other resources.
	Close() error
}

// PatternSource is a synthetic FrameSource producing a deterministic,
// time-varying test card. It keeps the Worker Ring/ring buffer machinery
// runnable and testable end-to-end without a live X11/Wayland binding. A
// real backend implements the same FrameSource interface against whatever
// display-server client library a given deployment needs.
type PatternSource struct {
	rect  Rect
	phase int
}

// NewPatternSource creates a PatternSource for the given capture rectangle.
func NewPatternSource(rect Rect) *PatternSource {
	return &PatternSource{rect: rect}
}

// Capture fills into with a moving diagonal gradient seeded by an
// internal frame counter, so successive captures from the same source are
// distinguishable.
func (s *PatternSource) Capture(ctx context.Context, into *Image) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if into.Width != s.rect.Width || into.Height != s.rect.Height {
		return ErrCaptureUnavailable
	}

	phase := byte(s.phase % 256)
	for y := 0; y < into.Height; y++ {
		row := into.Pix[y*into.Width*4 : (y+1)*into.Width*4]
		for x := 0; x < into.Width; x++ {
			v := byte((x + y + int(phase)) % 256)
			px := row[x*4 : x*4+4]
			px[0] = v            // B
			px[1] = byte(math.Abs(float64(v) - 128)) // G
			px[2] = 255 - v       // R
			px[3] = 0xFF          // A (ignored by the YUV420P converter)
		}
	}
	s.phase++
	return nil
}

// Close is a no-op for PatternSource: there is no connection to release.
func (s *PatternSource) Close() error { return nil }
