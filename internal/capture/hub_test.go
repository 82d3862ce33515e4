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

package capture

import (
	"errors"
	"testing"
	"time"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateInitializing: "initializing",
		StateReady:        "ready",
		StateRunning:      "running",
		StateFlushing:     "flushing",
		StateTerminating:  "terminating",
		State(99):         "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestFlushRequiresRunningState(t *testing.T) {
	h := &Hub{state: StateReady}
	if err := h.Flush(time.Now()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Flush on a non-running hub = %v, want %v", err, ErrNotRunning)
	}
}
