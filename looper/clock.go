package looper

import (
	"context"
	"sync/atomic"
	"time"
)

// pulseTicks is how far one incoming MIDI realtime clock pulse advances
// the counter: realtime clock runs at 24 PPQN.
const pulseTicks = PPQN / 24

// externalTimeout is how long the clock keeps trusting an external
// source after its last pulse before falling back to the internal timer.
const externalTimeout = 500 * time.Millisecond

const (
	minBPM     = 20
	maxBPM     = 300
	defaultBPM = 120
)

// Clock counts ticks at PPQN resolution. Counter and flags are atomics:
// the timer goroutine and the MIDI input callback advance it while the
// engine reads it, with no lock between them.
type Clock struct {
	tick      atomic.Uint32
	running   atomic.Bool
	external  atomic.Bool
	nsPerTick atomic.Int64
	lastPulse atomic.Int64 // unix nanos of the last external pulse
}

func NewClock(bpm float64) *Clock {
	c := &Clock{}
	c.SetBPM(bpm)
	return c
}

func (c *Clock) SetBPM(bpm float64) {
	if bpm < minBPM {
		bpm = minBPM
	} else if bpm > maxBPM {
		bpm = maxBPM
	}
	c.nsPerTick.Store(int64(float64(time.Minute) / (bpm * PPQN)))
}

func (c *Clock) BPM() float64 {
	ns := c.nsPerTick.Load()
	if ns == 0 {
		return defaultBPM
	}
	return float64(time.Minute) / (float64(ns) * PPQN)
}

func (c *Clock) Now() uint32      { return c.tick.Load() }
func (c *Clock) Running() bool    { return c.running.Load() }
func (c *Clock) External() bool   { return c.external.Load() }
func (c *Clock) Start()           { c.running.Store(true) }
func (c *Clock) Stop()            { c.running.Store(false) }
func (c *Clock) Reset()           { c.tick.Store(0) }

// Pulse advances the counter for one external realtime clock pulse and
// claims the clock for the external source.
func (c *Clock) Pulse(now time.Time) {
	c.external.Store(true)
	c.lastPulse.Store(now.UnixNano())
	if c.running.Load() {
		c.tick.Add(pulseTicks)
	}
}

// Run drives the counter from the internal timer until ctx ends. While
// an external source is pulsing, the timer only watches for that source
// going quiet.
func (c *Clock) Run(ctx context.Context) {
	timer := time.NewTimer(time.Duration(c.nsPerTick.Load()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-timer.C:
			if c.external.Load() {
				if now.UnixNano()-c.lastPulse.Load() > int64(externalTimeout) {
					c.external.Store(false)
				}
			} else if c.running.Load() {
				c.tick.Add(1)
			}
			timer.Reset(time.Duration(c.nsPerTick.Load()))
		}
	}
}
