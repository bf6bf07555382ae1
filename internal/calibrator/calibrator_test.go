package calibrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdleMeasureIfPendingNoOp(t *testing.T) {
	c := New()
	consumed := c.MeasureIfPending(123)
	assert.False(t, consumed)
	assert.Equal(t, DefaultOffsetMs, c.OffsetMs())
}

func TestMeasureOnlyAfterMark(t *testing.T) {
	c := New()
	c.MarkSeekPerformed()

	consumed := c.MeasureIfPending(-50)
	assert.True(t, consumed)
	before := c.OffsetMs()
	assert.NotEqual(t, DefaultOffsetMs, before)

	// No new mark: a second call does nothing.
	consumed = c.MeasureIfPending(999)
	assert.False(t, consumed)
	assert.Equal(t, before, c.OffsetMs())
}

func TestOffsetStaysWithinBounds(t *testing.T) {
	c := New()
	for i := 0; i < 200; i++ {
		c.MarkSeekPerformed()
		c.MeasureIfPending(10000) // absurd drift, every sample an outlier
		assert.GreaterOrEqual(t, c.OffsetMs(), MinOffsetMs)
		assert.LessOrEqual(t, c.OffsetMs(), MaxOffsetMs)
	}
}

func TestOutlierUsesSlowLearningRate(t *testing.T) {
	c := New()
	c.MarkSeekPerformed()
	drift := -2000.0 // |drift| > 1500 -> outlier band
	ideal := c.OffsetMs() - drift
	c.MeasureIfPending(drift)

	expected := OutlierAlpha*ideal + (1-OutlierAlpha)*DefaultOffsetMs
	assert.InDelta(t, clamp(expected, MinOffsetMs, MaxOffsetMs), c.OffsetMs(), 1e-9)
}

func TestDriftExactlyAtOutlierBoundaryIsNotOutlier(t *testing.T) {
	c := New()
	c.MarkSeekPerformed()
	drift := -OutlierDriftMs // exactly 1500, not > 1500
	ideal := c.OffsetMs() - drift
	c.MeasureIfPending(drift)

	expected := WarmupAlpha*ideal + (1-WarmupAlpha)*DefaultOffsetMs
	assert.InDelta(t, clamp(expected, MinOffsetMs, MaxOffsetMs), c.OffsetMs(), 1e-9)
}

func TestConvergenceToTrueSeekDelay(t *testing.T) {
	c := New()
	const trueDelay = 700.0

	for i := 0; i < 50; i++ {
		c.MarkSeekPerformed()
		drift := c.OffsetMs() - trueDelay
		c.MeasureIfPending(drift)
	}

	assert.GreaterOrEqual(t, c.OffsetMs(), 650.0)
	assert.LessOrEqual(t, c.OffsetMs(), 750.0)
}

func TestPreviewCalibrationWithinBand(t *testing.T) {
	c := New()
	ideal, ok := c.PreviewCalibration(-100)
	assert.True(t, ok)
	assert.InDelta(t, DefaultOffsetMs+100, ideal, 1e-9)
}

func TestPreviewCalibrationOutlierReturnsFalse(t *testing.T) {
	c := New()
	_, ok := c.PreviewCalibration(5000)
	assert.False(t, ok)
}

func TestBackToBackSeeksDoNotStack(t *testing.T) {
	c := New()
	c.MarkSeekPerformed()
	c.MarkSeekPerformed()
	c.MarkSeekPerformed()

	count := 0
	for c.MeasureIfPending(0) {
		count++
	}
	assert.Equal(t, 1, count)
}
