// Copyright Acetone Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"sync"
	"time"
)

// State is the circuit breaker's current state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// breaker is a per-operation circuit breaker. It opens after
// failureThreshold consecutive failures observed within samplingWindow of
// the first one, stays open for breakDuration, then allows exactly one
// probe through in the half-open state to decide whether to close or
// re-open.
type breaker struct {
	mu sync.Mutex

	failureThreshold int
	samplingWindow   time.Duration
	breakDuration    time.Duration

	state          State
	consecutive    int
	streakStarted  time.Time
	openedAt       time.Time
	halfOpenInUse  bool
	lastChangeTime time.Time

	now func() time.Time
}

func newBreaker(failureThreshold int, samplingWindow, breakDuration time.Duration) *breaker {
	return &breaker{
		failureThreshold: failureThreshold,
		samplingWindow:   samplingWindow,
		breakDuration:    breakDuration,
		state:            Closed,
		now:              time.Now,
	}
}

// allow reports whether a call may proceed. When the breaker is open but
// the break duration has elapsed, it transitions to half-open and allows
// exactly one probe through.
func (b *breaker) allow() (bool, State, State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true, Closed, Closed
	case Open:
		if b.now().Sub(b.openedAt) >= b.breakDuration {
			from := b.state
			b.state = HalfOpen
			b.halfOpenInUse = true
			b.lastChangeTime = b.now()
			return true, from, HalfOpen
		}
		return false, Open, Open
	case HalfOpen:
		if b.halfOpenInUse {
			// A probe is already outstanding; reject additional callers.
			return false, HalfOpen, HalfOpen
		}
		b.halfOpenInUse = true
		return true, HalfOpen, HalfOpen
	default:
		return true, b.state, b.state
	}
}

// recordSuccess closes the breaker (from half-open) or simply resets the
// consecutive-failure streak (from closed).
func (b *breaker) recordSuccess() (changed bool, from, to State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive = 0
	b.halfOpenInUse = false

	if b.state != Closed {
		from, to = b.state, Closed
		b.state = Closed
		b.lastChangeTime = b.now()
		return true, from, to
	}
	return false, b.state, b.state
}

// recordFailure advances the consecutive-failure streak and opens the
// breaker when the threshold is reached within the sampling window, or
// immediately re-opens it when a half-open probe fails.
func (b *breaker) recordFailure() (changed bool, from, to State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.halfOpenInUse = false
		from = b.state
		b.state = Open
		b.openedAt = b.now()
		b.lastChangeTime = b.openedAt
		return true, from, Open
	}

	now := b.now()
	if b.consecutive == 0 || now.Sub(b.streakStarted) > b.samplingWindow {
		b.streakStarted = now
		b.consecutive = 1
	} else {
		b.consecutive++
	}

	if b.consecutive >= b.failureThreshold {
		from = b.state
		b.state = Open
		b.openedAt = now
		b.lastChangeTime = now
		b.consecutive = 0
		return true, from, Open
	}
	return false, b.state, b.state
}

func (b *breaker) currentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) lastChange() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastChangeTime
}
