// Package calibrator adaptively learns a local player's seek-buffering
// delay from the drift observed on the heartbeat that follows each seek
// the local process issues.
package calibrator

import (
	"container/ring"
	"sync"
)

// Tuning constants, per the calibration contract.
const (
	DefaultOffsetMs = 500.0
	MinOffsetMs     = 100.0
	MaxOffsetMs     = 2000.0

	OutlierDriftMs = 1500.0
	OutlierAlpha   = 0.05

	WarmupSampleLimit = 5
	WarmupAlpha       = 0.4
	SteadyAlpha       = 0.15

	HistorySize = 10
)

// Sample records one calibration measurement for display/debugging.
type Sample struct {
	DriftMs   float64
	IdealMs   float64
	Outlier   bool
	OffsetMs  float64 // offset after applying this sample
}

// Calibrator holds the adaptive seek-offset state machine described in
// spec §4.3. It is safe for concurrent use.
type Calibrator struct {
	mu        sync.Mutex
	offsetMs  float64
	awaiting  bool
	count     int
	history   *ring.Ring
	histCount int
}

// New creates a Calibrator at its default offset, idle.
func New() *Calibrator {
	return &Calibrator{
		offsetMs: DefaultOffsetMs,
		history:  ring.New(HistorySize),
	}
}

// OffsetMs returns the current calibrated offset.
func (c *Calibrator) OffsetMs() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offsetMs
}

// MarkSeekPerformed records that the local process just issued a seek,
// so the next heartbeat's drift measurement should update the offset.
// Back-to-back seeks do not stack: only the most recent mark matters.
func (c *Calibrator) MarkSeekPerformed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.awaiting = true
}

// Awaiting reports whether a measurement is pending.
func (c *Calibrator) Awaiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaiting
}

// SampleCount returns how many measurements have been consumed so far.
func (c *Calibrator) SampleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// MeasureIfPending consumes a pending seek mark, if any, using the signed
// drift observed on this heartbeat (actual local position minus expected
// host position, without the offset applied). It reports whether a
// measurement was actually consumed.
func (c *Calibrator) MeasureIfPending(driftMs float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.awaiting {
		return false
	}
	c.awaiting = false

	ideal := c.offsetMs - driftMs
	absDrift := driftMs
	if absDrift < 0 {
		absDrift = -absDrift
	}

	outlier := absDrift > OutlierDriftMs
	var alpha float64
	switch {
	case outlier:
		alpha = OutlierAlpha
	case c.count <= WarmupSampleLimit:
		alpha = WarmupAlpha
	default:
		alpha = SteadyAlpha
	}

	c.offsetMs = alpha*ideal + (1-alpha)*c.offsetMs
	c.offsetMs = clamp(c.offsetMs, MinOffsetMs, MaxOffsetMs)
	c.count++

	c.history.Value = Sample{DriftMs: driftMs, IdealMs: ideal, Outlier: outlier, OffsetMs: c.offsetMs}
	c.history = c.history.Next()
	if c.histCount < HistorySize {
		c.histCount++
	}

	return true
}

// PreviewCalibration returns the ideal offset implied by driftMs for
// display purposes, without mutating state. It only returns a value
// within the outlier band rejection — i.e. it returns ok=false when the
// drift is itself an outlier, so a UI can distinguish "pending, looks
// reasonable" from "pending, probably noise".
func (c *Calibrator) PreviewCalibration(driftMs float64) (ideal float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	absDrift := driftMs
	if absDrift < 0 {
		absDrift = -absDrift
	}
	if absDrift > OutlierDriftMs {
		return 0, false
	}
	return c.offsetMs - driftMs, true
}

// History returns the most recent samples, oldest first.
func (c *Calibrator) History() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Sample, 0, c.histCount)
	c.history.Do(func(v any) {
		if v == nil {
			return
		}
		out = append(out, v.(Sample))
	})
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
