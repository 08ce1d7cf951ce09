package hlsgrab

import (
	"runtime"
	"sync"
)

// ConcurrencyController converts network health and memory pressure into
// a dynamic parallelism ceiling (C5). The Engine reads Current() at each
// scheduling point; changes are advisory and take effect on the next
// scheduling decision, never by force-cancelling in-flight fetches.
type ConcurrencyController struct {
	mu         sync.Mutex
	current    int
	min        int
	max        int
	memoryCap  int64
	monitor    *NetworkMonitor
	memoryUsed func() int64
}

// NewConcurrencyController seeds current at cfg.ConcurrencyInitial, clamped
// to [cfg.ConcurrencyMin, cfg.ConcurrencyMax].
func NewConcurrencyController(cfg Config, monitor *NetworkMonitor) *ConcurrencyController {
	min, max := cfg.ConcurrencyMin, cfg.ConcurrencyMax
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	initial := cfg.ConcurrencyInitial
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	memCap := cfg.MemoryCapBytes
	if memCap <= 0 {
		memCap = 50 * 1024 * 1024
	}
	return &ConcurrencyController{
		current:    initial,
		min:        min,
		max:        max,
		memoryCap:  memCap,
		monitor:    monitor,
		memoryUsed: currentHeapAlloc,
	}
}

func currentHeapAlloc() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapAlloc)
}

// Current returns the present concurrency ceiling.
func (c *ConcurrencyController) Current() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// MemoryUsed and MemoryCap expose the controller's observable memory
// state, per §4.4.
func (c *ConcurrencyController) MemoryUsed() int64 {
	return c.memoryUsed()
}

func (c *ConcurrencyController) MemoryCap() int64 {
	return c.memoryCap
}

// Adjust applies one step of the controller's policy: memory pressure
// takes priority over health-based reduction, which takes priority over
// health-based increase.
func (c *ConcurrencyController) Adjust() {
	c.mu.Lock()
	defer c.mu.Unlock()

	used := c.memoryUsed()
	ratio := float64(used) / float64(c.memoryCap)

	switch {
	case ratio > 0.8:
		next := int(float64(c.current) * 0.7)
		if next < c.min {
			next = c.min
		}
		c.current = next
	case c.monitor.ShouldReduce():
		next := c.current - 1
		if next < c.min {
			next = c.min
		}
		c.current = next
	case c.monitor.ShouldIncrease() && ratio < 0.5:
		next := c.current + 1
		if next > c.max {
			next = c.max
		}
		c.current = next
	}
}
