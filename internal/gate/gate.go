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

// Package gate implements the process-wide pause flag shared by every
// capture worker. It is written only by the flush coordinator and read by
// every video and audio worker at the top of its loop.
package gate

import (
	"context"
	"sync/atomic"
	"time"
)

// spinInterval bounds how long a parked worker sleeps between re-checks of
// the pause flag. Flushes are brief and rare, so a short sleep trades a
// little latency for not pegging a core busy-waiting.
const spinInterval = 200 * time.Microsecond

// Gate is the process-wide pause flag.
type Gate struct {
	paused atomic.Bool
}

// Pause closes the gate. Workers parked in Wait will not proceed past it
// until Resume is called.
func (g *Gate) Pause() { g.paused.Store(true) }

// Resume opens the gate.
func (g *Gate) Resume() { g.paused.Store(false) }

// Paused reports the current state without blocking.
func (g *Gate) Paused() bool { return g.paused.Load() }

// Wait blocks until the gate is open, polling at spinInterval, or returns
// ctx.Err() if ctx is canceled first. Workers call this at the top of their
// loop, before touching the turn-token or blocking read, so none of them
// advance past a pause point until the gate reopens.
func (g *Gate) Wait(ctx context.Context) error {
	for g.paused.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(spinInterval):
		}
	}
	return nil
}
