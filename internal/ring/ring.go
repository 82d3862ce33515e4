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

// Package ring implements the fixed-capacity frame ring buffer shared by
// every capture stream. Slots are pre-allocated once at stream creation and
// reused in place; callers reserve a slot under a short mutex before
// writing into it, so two concurrent writers never claim the same slot.
// Drain does not hold that mutex while it reads frames; keeping writers off
// the slots during a drain is up to the caller.
package ring

import "sync"

// Buffer is a fixed-capacity circular sequence of pre-allocated *T frames.
// Capacity is fixed at construction; Buffer never reallocates its slots.
type Buffer[T any] struct {
	mu    sync.Mutex
	slots []*T

	writeIndex int
	frameCount uint64
}

// New creates a Buffer of the given capacity, with every slot populated by
// calling alloc() once. alloc must never return nil.
func New[T any](capacity int, alloc func() *T) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	slots := make([]*T, capacity)
	for i := range slots {
		slots[i] = alloc()
	}
	return &Buffer[T]{slots: slots}
}

// Capacity returns the fixed number of slots in the buffer.
func (b *Buffer[T]) Capacity() int {
	return len(b.slots)
}

// Reserve atomically claims the current write slot and advances
// writeIndex/frameCount, returning the claimed slot's index and frame
// pointer. The caller owns exclusive write access to the returned frame
// until Reserve cycles back to the same index again (at least `capacity`
// reservations later).
func (b *Buffer[T]) Reserve() (index int, frame *T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	index = b.writeIndex
	frame = b.slots[index]
	b.writeIndex = (b.writeIndex + 1) % len(b.slots)
	b.frameCount++
	return index, frame
}

// FrameCount returns the number of frames reserved since construction or
// the last Reset (never decreasing in between, wraps only on integer
// overflow).
func (b *Buffer[T]) FrameCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameCount
}

// WriteIndex returns the slot index the next Reserve call will claim.
func (b *Buffer[T]) WriteIndex() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeIndex
}

// Reset zeroes writeIndex and frameCount, used after a flush rebuild. It
// does not touch slot contents; the next Reserve overwrites them in place
// as usual.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeIndex = 0
	b.frameCount = 0
}

// Drain iterates the currently valid frames, oldest first, calling fn once
// per frame with its emission index (0-based, monotonically increasing —
// suitable for PTS assignment). It does not mutate the buffer; callers
// typically Reset() after a successful drain.
func (b *Buffer[T]) Drain(fn func(emissionIndex int, frame *T)) {
	b.mu.Lock()
	count := b.frameCount
	capacity := uint64(len(b.slots))
	start := 0
	if count > capacity {
		start = b.writeIndex
	}
	slots := b.slots
	b.mu.Unlock()

	n := count
	if n > capacity {
		n = capacity
	}

	idx := start
	for i := uint64(0); i < n; i++ {
		fn(int(i), slots[idx])
		idx = (idx + 1) % len(slots)
	}
}
