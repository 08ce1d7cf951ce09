package hlsgrab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Engine is the Segment Download Engine (C12): given a parsed playlist, an
// optional decryption key, and a workdir, it drives every segment to
// Complete or Failed, persisting resume state and reporting progress as it
// goes. It owns no process-wide state: the HTTP client pool is supplied by
// the caller, and every other collaborator (monitor, concurrency
// controller, throttle, throughput estimator) is constructed fresh per
// Engine and scoped to one run.
type Engine struct {
	cfg        Config
	logger     *slog.Logger
	pool       *ClientPool
	headers    HeaderProvider
	monitor    *NetworkMonitor
	ccc        *ConcurrencyController
	throttle   *BandwidthThrottle
	throughput *ThroughputEstimator
	clock      Clock

	bytesDone int64 // atomic
	manifest  []string
}

// NewEngine constructs an Engine scoped to a single download run.
func NewEngine(cfg Config, pool *ClientPool, headers HeaderProvider, logger *slog.Logger) *Engine {
	monitor := NewNetworkMonitor()
	return &Engine{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		headers:    headers,
		monitor:    monitor,
		ccc:        NewConcurrencyController(cfg, monitor),
		throttle:   NewBandwidthThrottle(cfg.BandwidthLimitBps),
		throughput: NewThroughputEstimator(),
		clock:      realClock{},
	}
}

// Manifest returns the final ordered segment paths after a successful Run.
func (e *Engine) Manifest() []string { return e.manifest }

// Run executes the resume protocol and scheduling algorithm of §4.11 to
// completion (or terminal failure). workDir must already exist.
func (e *Engine) Run(ctx context.Context, playlist *Playlist, key []byte, workDir string, task *DownloadTask, onProgress ProgressCallback) error {
	n := len(playlist.Segments)
	statePath := filepath.Join(workDir, stateFileName)

	state, ok, err := LoadBitfieldState(statePath, n)
	if err != nil {
		return fmt.Errorf("hlsgrab: load state: %w", err)
	}
	if !ok {
		state = NewBitfieldState(statePath, n)
	}

	merge := NewMergeQueue(n)
	dirty := false
	for _, i := range state.SetIndices() {
		path := segmentPath(workDir, i)
		info, statErr := os.Stat(path)
		if statErr != nil || info.Size() == 0 {
			state.Clear(i)
			dirty = true
			continue
		}
		merge.Add(i, path)
		atomic.AddInt64(&e.bytesDone, info.Size())
	}
	if dirty {
		if err := state.Persist(); err != nil {
			return fmt.Errorf("hlsgrab: persist resumed state: %w", err)
		}
	}

	pending := state.PendingIndices()
	e.reportProgress(task, onProgress, merge.Len(), n)

	if len(pending) > 0 {
		if err := e.runScheduler(ctx, pending, playlist, key, workDir, state, merge, task, onProgress); err != nil {
			return err
		}
	}

	ordered, err := merge.AllInOrder()
	if err != nil {
		return err
	}
	e.manifest = ordered
	return nil
}

// runScheduler drives the active-count scheduling loop of §4.11: spawn
// fetches while active < controller.Current() and pending indices remain,
// terminate when active reaches 0 with the cursor exhausted or a terminal
// failure has cancelled the run.
func (e *Engine) runScheduler(ctx context.Context, pending []int, playlist *Playlist, key []byte, workDir string, state *BitfieldState, merge *MergeQueue, task *DownloadTask, onProgress ProgressCallback) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		cursor   int
		active   int
		firstErr error
	)
	wake := make(chan struct{}, 1)
	finished := make(chan struct{})
	var wg sync.WaitGroup

	poke := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	tickStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.ccc.Adjust()
				poke()
			case <-tickStop:
				return
			}
		}
	}()
	defer close(tickStop)

	for {
		mu.Lock()
		for runCtx.Err() == nil && cursor < len(pending) && active < e.ccc.Current() {
			idx := pending[cursor]
			cursor++
			active++
			wg.Add(1)
			go func(segIdx int) {
				defer wg.Done()
				ferr := e.fetchSegment(runCtx, segIdx, playlist, key, workDir, state, merge, task, onProgress)
				if ferr != nil {
					e.ccc.Adjust()
				}
				mu.Lock()
				active--
				if ferr != nil && firstErr == nil && !errors.Is(ferr, context.Canceled) {
					firstErr = ferr
					cancel()
				}
				mu.Unlock()
				poke()
			}(idx)
		}
		exhausted := cursor >= len(pending)
		noneActive := active == 0
		cancelled := runCtx.Err() != nil
		mu.Unlock()

		if (exhausted && noneActive) || (cancelled && noneActive) {
			close(finished)
			break
		}

		select {
		case <-wake:
		case <-time.After(200 * time.Millisecond):
		}
	}

	<-finished
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// fetchSegment is the per-segment fetch procedure of §4.11, steps 1–8.
func (e *Engine) fetchSegment(ctx context.Context, idx int, playlist *Playlist, key []byte, workDir string, state *BitfieldState, merge *MergeQueue, task *DownloadTask, onProgress ProgressCallback) error {
	path := segmentPath(workDir, idx)

	if err := e.fetchWithRetry(ctx, idx, playlist.Segments[idx], path); err != nil {
		return err
	}

	if key != nil {
		if err := e.decryptInPlace(idx, playlist, key, path); err != nil {
			return err
		}
	}

	if err := state.SetAndPersist(idx); err != nil {
		return fmt.Errorf("hlsgrab: segment %d: persist state: %w", idx, err)
	}

	merge.Add(idx, path)

	if info, statErr := os.Stat(path); statErr == nil {
		atomic.AddInt64(&e.bytesDone, info.Size())
	}

	e.reportProgress(task, onProgress, merge.Len(), len(playlist.Segments))
	return nil
}

// decryptInPlace reads path's ciphertext, decrypts it, and atomically
// rewrites path with the plaintext. On decryption failure it logs a
// warning and leaves the ciphertext on disk unmodified — the documented
// degraded-mode policy of §4.8/§7.
func (e *Engine) decryptInPlace(idx int, playlist *Playlist, key []byte, path string) error {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("hlsgrab: segment %d: read for decrypt: %w", idx, err)
	}

	var explicitIV []byte
	if playlist.Encryption != nil {
		explicitIV = playlist.Encryption.IV
	}

	plain, derr := decryptSegment(ciphertext, key, idx, explicitIV)
	if derr != nil {
		if e.logger != nil {
			e.logger.Warn("segment decryption failed, keeping ciphertext", "segment", idx, "error", derr)
		}
		return nil
	}
	if err := writeBytesAtomic(path, plain); err != nil {
		return fmt.Errorf("hlsgrab: segment %d: write plaintext: %w", idx, err)
	}
	return nil
}

// fetchWithRetry drives the per-segment retry loop of §4.11/§4.6: on
// failure, classify() decides whether and how long to back off, reusing
// the same segment index until it succeeds or a terminal failure results.
func (e *Engine) fetchWithRetry(ctx context.Context, idx int, segURL, path string) error {
	for attempt := 1; ; attempt++ {
		status, dur, err := e.fetchOnce(ctx, segURL, path)
		e.monitor.Record(err == nil, dur)

		if err == nil {
			if info, statErr := os.Stat(path); statErr == nil {
				e.throughput.AddSample(info.Size(), dur)
			}
			return nil
		}

		ce := classify(err, status)
		if !ce.Retryable || attempt >= ce.MaxRetries {
			return fmt.Errorf("segment %d: %w", idx, ce)
		}
		if e.logger != nil {
			e.logger.Debug("segment retry", "segment", idx, "attempt", attempt, "kind", ce.Kind.String())
		}
		if serr := e.clock.Sleep(ctx, retryDelay(ce, attempt)); serr != nil {
			return serr
		}
	}
}

// fetchOnce performs a single attempt of the GET→stream→atomic-rename
// sequence (§4.11 steps 1–4), returning the HTTP status observed (0 if the
// request never got a response) and the attempt's wall-clock duration.
func (e *Engine) fetchOnce(ctx context.Context, segURL, path string) (int, time.Duration, error) {
	client, err := e.pool.Acquire(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer e.pool.Release(client)

	headers, err := e.headers.HeadersFor(segURL)
	if err != nil {
		return 0, 0, err
	}

	timeout := e.cfg.SegmentTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := e.clock.Now()
	req := client.R().SetContext(attemptCtx).SetDoNotParseResponse(true)
	req.Header = headers

	resp, err := req.Get(segURL)
	if err != nil {
		return 0, e.clock.Now().Sub(start), err
	}
	defer resp.RawBody().Close()

	status := resp.StatusCode()
	if status != http.StatusOK {
		return status, e.clock.Now().Sub(start), fmt.Errorf("unexpected status %d", status)
	}

	throttleFn := func(n int) error { return e.throttle.Throttle(attemptCtx, n) }
	if err := writeStreamAtomic(path, resp.RawBody(), throttleFn); err != nil {
		return status, e.clock.Now().Sub(start), err
	}
	return status, e.clock.Now().Sub(start), nil
}

// reportProgress computes the 0.8-capped download fraction (muxing
// reserves the remaining 0.2, per §4.11 step 7) and invokes onProgress.
func (e *Engine) reportProgress(task *DownloadTask, onProgress ProgressCallback, completed, total int) {
	if task == nil {
		return
	}
	bytesDone := atomic.LoadInt64(&e.bytesDone)
	speed := e.throughput.AvgBps()

	var etaSeconds float64
	if completed > 0 && speed > 0 && completed < total {
		avgSegBytes := float64(bytesDone) / float64(completed)
		remaining := avgSegBytes * float64(total-completed)
		etaSeconds = remaining / speed
	}

	progress := 0.0
	if total > 0 {
		progress = float64(completed) / float64(total) * 0.8
	}

	task.setProgress(bytesDone, 0, progress, speed, etaSeconds)
	if onProgress != nil {
		onProgress(task.Snapshot())
	}
}
