package hlsgrab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Controller is the Job Controller (C13): it drives one DownloadTask
// end to end — fetch playlist, parse, optionally fetch the decryption key,
// run the Engine, write the concat manifest, invoke the Muxer, and clean
// up on success.
type Controller struct {
	cfg            Config
	logger         *slog.Logger
	pool           *ClientPool
	headerProvider HeaderProvider // nil: built per-task from cfg + playlist URL
	muxer          Muxer
	clock          Clock
}

// NewController builds a Controller. A nil headerProvider causes a
// DefaultHeaderProvider to be constructed per task, scoped to that task's
// playlist URL. A nil muxer defaults to FFmpegMuxer.
func NewController(cfg Config, headerProvider HeaderProvider, muxer Muxer) (*Controller, error) {
	pool, err := NewClientPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("hlsgrab: new client pool: %w", err)
	}
	if muxer == nil {
		muxer = NewFFmpegMuxer()
	}
	return &Controller{
		cfg:            cfg,
		logger:         newLogger(cfg),
		pool:           pool,
		headerProvider: headerProvider,
		muxer:          muxer,
		clock:          realClock{},
	}, nil
}

// Close releases the controller's HTTP client pool.
func (c *Controller) Close() { c.pool.CloseAll() }

// Run drives task from Queued through Completed or Failed, invoking
// onProgress at every status transition (§4.12).
func (c *Controller) Run(ctx context.Context, task *DownloadTask, onProgress ProgressCallback) error {
	headers := c.headerProvider
	if headers == nil {
		headers = NewDefaultHeaderProvider(c.cfg, task.PlaylistURL())
	}

	task.setStatus(StatusFetchingPlaylist)
	c.notify(task, onProgress)

	workDir := workDirFor(c.workDirRoot(), task.TaskID())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return c.finish(task, onProgress, fmt.Errorf("hlsgrab: create workdir: %w", err))
	}

	body, err := c.fetchBytesWithRetry(ctx, headers, task.PlaylistURL(), c.timeoutOr(c.cfg.PlaylistTimeout, 60*time.Second))
	if err != nil {
		return c.finish(task, onProgress, fmt.Errorf("fetch playlist: %w", err))
	}

	playlist, err := ParsePlaylist(body, task.PlaylistURL())
	if err != nil {
		return c.finish(task, onProgress, fmt.Errorf("parse playlist: %w", err))
	}

	var key []byte
	if playlist.Encryption != nil {
		keyBytes, err := c.fetchBytesWithRetry(ctx, headers, playlist.Encryption.KeyURL, c.timeoutOr(c.cfg.KeyTimeout, 30*time.Second))
		if err != nil {
			return c.finish(task, onProgress, fmt.Errorf("fetch key: %w", err))
		}
		if len(keyBytes) != 16 {
			return c.finish(task, onProgress, fmt.Errorf("hlsgrab: %w: got %d bytes", ErrInvalidKeyLength, len(keyBytes)))
		}
		key = keyBytes
	}

	task.setStatus(StatusDownloading)
	c.notify(task, onProgress)

	engine := NewEngine(c.cfg, c.pool, headers, c.logger)
	if err := engine.Run(ctx, playlist, key, workDir, task, onProgress); err != nil {
		return c.finish(task, onProgress, err)
	}

	task.setStatus(StatusMuxing)
	snap := task.Snapshot()
	task.setProgress(snap.BytesDone, snap.BytesTotalEstimate, 0.8, snap.SpeedBps, 0)
	c.notify(task, onProgress)

	manifestPath := filepath.Join(workDir, manifestFileName)
	if err := writeManifest(manifestPath, engine.Manifest()); err != nil {
		return c.finish(task, onProgress, fmt.Errorf("write manifest: %w", err))
	}

	if err := c.muxer.Concatenate(manifestPath, task.OutputPath()); err != nil {
		return c.finish(task, onProgress, fmt.Errorf("mux: %w", err))
	}

	// Only a Completed task triggers workdir deletion (§4.11 Failure
	// semantics); every earlier return path leaves workDir intact so a
	// subsequent run can resume from the bitfield state.
	if err := os.RemoveAll(workDir); err != nil && c.logger != nil {
		c.logger.Warn("cleanup failed", "workdir", workDir, "error", err)
	}

	task.setStatus(StatusCompleted)
	snap = task.Snapshot()
	task.setProgress(snap.BytesDone, snap.BytesTotalEstimate, 1.0, snap.SpeedBps, 0)
	c.notify(task, onProgress)
	return nil
}

func (c *Controller) workDirRoot() string {
	if c.cfg.WorkDirRoot != "" {
		return c.cfg.WorkDirRoot
	}
	return os.TempDir()
}

func (c *Controller) timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// notify invokes onProgress with task's current snapshot.
func (c *Controller) notify(task *DownloadTask, onProgress ProgressCallback) {
	if onProgress != nil {
		onProgress(task.Snapshot())
	}
}

// finish transitions task to its terminal state — Cancelled (silently) if
// err wraps context.Canceled, Failed with err's message otherwise — and
// returns err unchanged so callers can inspect it.
func (c *Controller) finish(task *DownloadTask, onProgress ProgressCallback, err error) error {
	if errors.Is(err, context.Canceled) {
		task.setStatus(StatusCancelled)
	} else {
		task.fail(err.Error())
	}
	c.notify(task, onProgress)
	return err
}

// fetchBytesWithRetry fetches url with C7-governed retries (§4.12 steps
// 1 and 3), sharing the classifier and backoff policy the Engine uses for
// segments.
func (c *Controller) fetchBytesWithRetry(ctx context.Context, headers HeaderProvider, url string, timeout time.Duration) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		data, status, err := c.fetchBytesOnce(ctx, headers, url, timeout)
		if err == nil {
			return data, nil
		}
		ce := classify(err, status)
		if !ce.Retryable || attempt >= ce.MaxRetries {
			return nil, ce
		}
		if serr := c.clock.Sleep(ctx, retryDelay(ce, attempt)); serr != nil {
			return nil, serr
		}
	}
}

func (c *Controller) fetchBytesOnce(ctx context.Context, headers HeaderProvider, url string, timeout time.Duration) ([]byte, int, error) {
	client, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer c.pool.Release(client)

	hdrs, err := headers.HeadersFor(url)
	if err != nil {
		return nil, 0, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := client.R().SetContext(attemptCtx)
	req.Header = hdrs
	resp, err := req.Get(url)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, resp.StatusCode(), fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return resp.Body(), resp.StatusCode(), nil
}

// writeManifest writes the concat demuxer manifest (§6): one
// `file '<absolute-segment-path>'` line per segment, in index order.
func writeManifest(path string, segmentPaths []string) error {
	var b strings.Builder
	for _, p := range segmentPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		fmt.Fprintf(&b, "file '%s'\n", abs)
	}
	return writeBytesAtomic(path, []byte(b.String()))
}
