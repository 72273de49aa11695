// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "time"

// Clock is a monotonic millisecond time source. Core logic never calls
// time.Now directly; every entry point takes "now" as a parameter so tests
// can drive the state machine with a fake clock.
type Clock interface {
	NowMS() uint64
}

// systemClock is the production Clock, backed by time.Now.
type systemClock struct{ epoch time.Time }

// newSystemClock returns a Clock whose NowMS is relative to the instant it
// was created, so values stay small and comparable across a test run.
func newSystemClock() *systemClock {
	return &systemClock{epoch: time.Now()}
}

func (c *systemClock) NowMS() uint64 {
	return uint64(time.Since(c.epoch).Milliseconds())
}

// msToTime converts a millisecond Clock reading into a time.Time for
// collaborators (like CongestionController) whose interface predates this
// core's millisecond-integer convention. The absolute epoch doesn't matter;
// only differences between calls are meaningful.
func msToTime(ms uint64) time.Time {
	return time.Unix(0, int64(ms)*int64(time.Millisecond))
}

// AlarmCallback is invoked when an armed Alarm fires. elapsedMS is the
// current clock reading at the time of firing.
type AlarmCallback func(elapsedMS uint64)

// Alarm is a cancellable one-shot timer. Re-arming cancels any previous
// schedule and atomically replaces it; implementations must never layer
// multiple pending callbacks (design note, §9).
type Alarm interface {
	// Start schedules the callback to fire durationMS from now, replacing
	// any previously scheduled fire time.
	Start(durationMS uint64)
	// Reset cancels any pending fire.
	Reset()
	// IsRunning reports whether a fire is currently scheduled.
	IsRunning() bool
}

// timerAlarm is the production Alarm, backed by time.Timer.
type timerAlarm struct {
	clock    Clock
	callback AlarmCallback
	timer    *time.Timer
	running  bool
}

// newTimerAlarm constructs an Alarm that invokes cb on firing.
func newTimerAlarm(clock Clock, cb AlarmCallback) *timerAlarm {
	return &timerAlarm{clock: clock, callback: cb}
}

func (a *timerAlarm) Start(durationMS uint64) {
	a.Reset()
	a.running = true
	a.timer = time.AfterFunc(time.Duration(durationMS)*time.Millisecond, func() {
		a.running = false
		a.callback(a.clock.NowMS())
	})
}

func (a *timerAlarm) Reset() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.running = false
}

func (a *timerAlarm) IsRunning() bool {
	return a.running
}
