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

package ring

import "testing"

type frame struct {
	seq int
}

func TestReserveAdvancesInOrder(t *testing.T) {
	b := New(4, func() *frame { return &frame{} })

	for i := 0; i < 4; i++ {
		idx, f := b.Reserve()
		if idx != i {
			t.Fatalf("reservation %d: got index %d, want %d", i, idx, i)
		}
		f.seq = i
	}
	if b.WriteIndex() != 0 {
		t.Errorf("writeIndex after 4 reservations on cap-4 buffer = %d, want 0", b.WriteIndex())
	}
	if b.FrameCount() != 4 {
		t.Errorf("frameCount = %d, want 4", b.FrameCount())
	}
}

func TestReserveWrapsAndReusesSlots(t *testing.T) {
	b := New(3, func() *frame { return &frame{} })

	var seen []*frame
	for i := 0; i < 3; i++ {
		_, f := b.Reserve()
		seen = append(seen, f)
	}
	_, f := b.Reserve() // wraps back to index 0
	if f != seen[0] {
		t.Error("Reserve after a full cycle did not return the same pre-allocated slot")
	}
}

func TestDrainOrderBeforeWrap(t *testing.T) {
	b := New(5, func() *frame { return &frame{} })
	for i := 0; i < 3; i++ {
		_, f := b.Reserve()
		f.seq = i
	}

	var got []int
	b.Drain(func(emissionIndex int, f *frame) {
		got = append(got, f.seq)
	})
	want := []int{0, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("drained %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drain[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDrainOrderAfterWrap(t *testing.T) {
	// Capacity 3, write 5 frames (seq 0..4): the buffer now holds the
	// oldest-to-newest sequence 2,3,4 starting at writeIndex.
	b := New(3, func() *frame { return &frame{} })
	for i := 0; i < 5; i++ {
		_, f := b.Reserve()
		f.seq = i
	}

	var got []int
	b.Drain(func(emissionIndex int, f *frame) {
		got = append(got, f.seq)
	})
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("drained %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drain[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResetClearsCounters(t *testing.T) {
	b := New(4, func() *frame { return &frame{} })
	for i := 0; i < 6; i++ {
		b.Reserve()
	}
	b.Reset()
	if b.FrameCount() != 0 {
		t.Errorf("frameCount after Reset = %d, want 0", b.FrameCount())
	}
	if b.WriteIndex() != 0 {
		t.Errorf("writeIndex after Reset = %d, want 0", b.WriteIndex())
	}
	idx, _ := b.Reserve()
	if idx != 0 {
		t.Errorf("first reservation after Reset returned index %d, want 0", idx)
	}
}

func TestCapacity(t *testing.T) {
	b := New(7, func() *frame { return &frame{} })
	if b.Capacity() != 7 {
		t.Errorf("Capacity() = %d, want 7", b.Capacity())
	}
}
