/*
	Copyright (c) 2015-2016 Christopher Young
	Distributable under the terms of The "BSD New"" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	Modifications (c) 2016 AvSquirrel (https://github.com/AvSquirrel)
	monotonic.go: Create monotonic clock using time.Timer - necessary because of real time clock changes on RPi.
*/

package common

import (
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
)

const monotonicTick = 10 * time.Millisecond

// Monotonic is a clock that only moves forward, started at the wall time of
// its creation. Sensor readings are stamped with it so RTC jumps (NTP, GPS
// time sync) don't reorder them.
type Monotonic struct {
	mu           sync.RWMutex
	milliseconds uint64
	t            time.Time
	ticker       *time.Ticker
	done         chan struct{}
}

func (m *Monotonic) watcher() {
	for {
		select {
		case <-m.ticker.C:
			m.advance(monotonicTick)
		case <-m.done:
			return
		}
	}
}

func (m *Monotonic) advance(d time.Duration) {
	m.mu.Lock()
	m.milliseconds += uint64(d / time.Millisecond)
	m.t = m.t.Add(d)
	m.mu.Unlock()
}

func (m *Monotonic) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.t
}

func (m *Monotonic) Milliseconds() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.milliseconds
}

func (m *Monotonic) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *Monotonic) HumanizeTime(t time.Time) string {
	return humanize.RelTime(t, m.Now(), "ago", "from now")
}

func (m *Monotonic) Stop() {
	m.ticker.Stop()
	close(m.done)
}

func NewMonotonic() *Monotonic {
	return newMonotonic(time.Now(), true)
}

func newMonotonic(start time.Time, run bool) *Monotonic {
	m := &Monotonic{t: start, done: make(chan struct{})}
	m.ticker = time.NewTicker(monotonicTick)
	if run {
		go m.watcher()
	}
	return m
}
