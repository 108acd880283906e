package board

import (
	"encoding/json"
	"fmt"
	"time"
)

// timeNow is swapped out by clock tests.
var timeNow = time.Now

// Timer is one side of a chess clock, counting whole seconds. While running
// it stores the unix second it will expire at; while paused it stores the
// seconds left.
type Timer struct {
	running       bool
	endTime       uint64
	timeRemaining uint64
}

// NewTimer creates a paused timer holding the given seconds.
func NewTimer(seconds uint64) Timer {
	return Timer{timeRemaining: seconds}
}

// Start converts remaining time into a deadline. Starting a running timer is
// a no-op.
func (t *Timer) Start() {
	if t.running {
		return
	}
	t.running = true
	t.endTime = uint64(timeNow().Unix()) + t.timeRemaining
	t.timeRemaining = 0
}

// Pause banks the time left and reports true, or reports false when the
// deadline has already passed. Pausing a paused timer reports true.
func (t *Timer) Pause() bool {
	if !t.running {
		return true
	}
	now := uint64(timeNow().Unix())
	if now >= t.endTime {
		return false
	}
	t.timeRemaining = t.endTime - now
	t.running = false
	t.endTime = 0
	return true
}

// HasTime reports whether the timer has not expired.
func (t *Timer) HasTime() bool {
	if t.running {
		return uint64(timeNow().Unix()) < t.endTime
	}
	return t.timeRemaining > 0
}

// MarshalJSON encodes {"type":"running","endTime":n} or
// {"type":"paused","timeRemaining":n}.
func (t Timer) MarshalJSON() ([]byte, error) {
	if t.running {
		return json.Marshal(struct {
			Type    string `json:"type"`
			EndTime uint64 `json:"endTime"`
		}{"running", t.endTime})
	}
	return json.Marshal(struct {
		Type          string `json:"type"`
		TimeRemaining uint64 `json:"timeRemaining"`
	}{"paused", t.timeRemaining})
}

// UnmarshalJSON decodes either tagged timer form.
func (t *Timer) UnmarshalJSON(data []byte) error {
	var w struct {
		Type          string `json:"type"`
		EndTime       uint64 `json:"endTime"`
		TimeRemaining uint64 `json:"timeRemaining"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "running":
		*t = Timer{running: true, endTime: w.EndTime}
	case "paused":
		*t = Timer{timeRemaining: w.TimeRemaining}
	default:
		return fmt.Errorf("unknown timer type %q", w.Type)
	}
	return nil
}

// ChessClock pairs the two players' timers. The worker starts White's timer
// at game start and swaps the running side on every applied turn.
type ChessClock struct {
	White Timer `json:"white"`
	Black Timer `json:"black"`
}

// NewChessClock creates a clock with both sides paused at the given seconds.
func NewChessClock(seconds uint64) *ChessClock {
	return &ChessClock{White: NewTimer(seconds), Black: NewTimer(seconds)}
}

// PlayerTimer returns the timer for a player.
func (c *ChessClock) PlayerTimer(p Player) *Timer {
	if p == Black {
		return &c.Black
	}
	return &c.White
}
