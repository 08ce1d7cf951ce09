package hlsgrab

import (
	"fmt"
	"os"
	"sync"
)

// MergeQueue is the Ordered Merge Queue (C10): it buffers out-of-order
// segment completions in a single-mutex index→path map and emits an
// in-order file list once every slot is filled. Unlike a streaming merge,
// this implementation never buffers segment bytes in memory — completed
// segments already live on disk (§3 SegmentFile), so the "max_queue_size"
// bound the spec allows for a streaming variant doesn't apply here: the
// map holds only path strings, never segment bodies.
type MergeQueue struct {
	mu    sync.Mutex
	n     int
	paths map[int]string
}

// NewMergeQueue creates an empty queue expecting n total segments.
func NewMergeQueue(n int) *MergeQueue {
	return &MergeQueue{n: n, paths: make(map[int]string, n)}
}

// Add records a completed segment. Idempotent on the same (index, path).
func (q *MergeQueue) Add(index int, path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paths[index] = path
}

// Len reports how many segments have been recorded so far.
func (q *MergeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.paths)
}

// AllInOrder returns all N paths in ascending index order, or
// ErrIncompleteMerge if any slot is unfilled.
func (q *MergeQueue) AllInOrder() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ordered := make([]string, q.n)
	for i := 0; i < q.n; i++ {
		p, ok := q.paths[i]
		if !ok {
			return nil, ErrIncompleteMerge
		}
		ordered[i] = p
	}
	return ordered, nil
}

// Validate verifies every referenced path exists on disk and is non-empty,
// per invariant 1 in §8.
func (q *MergeQueue) Validate() error {
	paths, err := q.AllInOrder()
	if err != nil {
		return err
	}
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("hlsgrab: segment %d: %w", i, ErrSegmentMissing)
		}
		if info.Size() == 0 {
			return fmt.Errorf("hlsgrab: segment %d: %w", i, ErrSegmentMissing)
		}
	}
	return nil
}
