package hlsgrab

import (
	"testing"
	"time"
)

func TestThroughputEstimatorEmptyWindow(t *testing.T) {
	e := NewThroughputEstimator()
	if got := e.AvgBps(); got != 0 {
		t.Errorf("AvgBps = %v, want 0", got)
	}
	if got := e.ETA(1000); got != "--" {
		t.Errorf("ETA = %q, want \"--\"", got)
	}
}

func TestThroughputEstimatorSingleSample(t *testing.T) {
	e := NewThroughputEstimator()
	e.AddSample(1_000_000, time.Second) // 1,000,000 B/s
	if got := e.AvgBps(); got != 1_000_000 {
		t.Errorf("AvgBps = %v, want 1000000", got)
	}
}

func TestThroughputEstimatorSmoothing(t *testing.T) {
	e := NewThroughputEstimator()
	e.AddSample(1000, time.Second) // raw = 1000
	e.AddSample(2000, time.Second) // raw = 2000, smoothed = 0.7*1000 + 0.3*2000 = 1300
	got := e.AvgBps()
	// average of [1000, 1300] = 1150
	if got < 1100 || got > 1200 {
		t.Errorf("AvgBps = %v, want roughly 1150 after EMA smoothing", got)
	}
}

func TestThroughputEstimatorIgnoresZeroDuration(t *testing.T) {
	e := NewThroughputEstimator()
	e.AddSample(1000, 0)
	if got := e.AvgBps(); got != 0 {
		t.Errorf("AvgBps = %v, want 0 after a zero-duration sample is ignored", got)
	}
}

func TestThroughputEstimatorETAFormats(t *testing.T) {
	e := NewThroughputEstimator()
	e.AddSample(1_000_000, time.Second) // 1 MB/s
	got := e.ETA(5_000_000)             // 5 seconds remaining
	if got != "5s" {
		t.Errorf("ETA = %q, want %q", got, "5s")
	}
}

func TestThroughputEstimatorWindowEviction(t *testing.T) {
	e := NewThroughputEstimator()
	for i := 0; i < throughputWindowSize+5; i++ {
		e.AddSample(1000, time.Second)
	}
	if got := len(e.window); got != throughputWindowSize {
		t.Errorf("window length = %d, want capped at %d", got, throughputWindowSize)
	}
}
