package hlsgrab

import (
	"sync"
	"time"

	"github.com/mdrill/hlsgrab/utils"
)

const (
	throughputWindowSize = 10
	throughputAlpha      = 0.3
)

// ThroughputEstimator is the Throughput Estimator (C11): an EMA-smoothed
// bytes/sec sliding window that produces a human-readable ETA.
type ThroughputEstimator struct {
	mu     sync.Mutex
	window []float64
}

// NewThroughputEstimator returns an estimator with an empty window.
func NewThroughputEstimator() *ThroughputEstimator {
	return &ThroughputEstimator{window: make([]float64, 0, throughputWindowSize)}
}

// AddSample appends bytes·1000/ms to the window, smoothing against the
// previously recorded sample with s_new = 0.7·s_prev + 0.3·raw (α = 0.3).
func (e *ThroughputEstimator) AddSample(nBytes int64, d time.Duration) {
	ms := d.Milliseconds()
	if ms <= 0 {
		return
	}
	raw := float64(nBytes) * 1000 / float64(ms)

	e.mu.Lock()
	defer e.mu.Unlock()

	smoothed := raw
	if len(e.window) > 0 {
		prev := e.window[len(e.window)-1]
		smoothed = (1-throughputAlpha)*prev + throughputAlpha*raw
	}
	e.window = append(e.window, smoothed)
	if len(e.window) > throughputWindowSize {
		e.window = e.window[len(e.window)-throughputWindowSize:]
	}
}

// AvgBps is the arithmetic mean of the window, 0 when empty.
func (e *ThroughputEstimator) AvgBps() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.window) == 0 {
		return 0
	}
	var sum float64
	for _, v := range e.window {
		sum += v
	}
	return sum / float64(len(e.window))
}

// ETA formats remainingBytes/avg_bps as "Ns", "Mm Ss", or "Hh Mm", or "--"
// when avg_bps <= 0.
func (e *ThroughputEstimator) ETA(remainingBytes int64) string {
	avg := e.AvgBps()
	if avg <= 0 {
		return "--"
	}
	seconds := float64(remainingBytes) / avg
	return utils.FormatETA(time.Duration(seconds * float64(time.Second)))
}
