package hlsgrab

import "sync"

// TaskStatus is the lifecycle state of a DownloadTask.
type TaskStatus int

const (
	StatusQueued TaskStatus = iota
	StatusFetchingPlaylist
	StatusDownloading
	StatusMuxing
	StatusCompleted
	StatusFailed
	StatusPaused
	StatusCancelled
)

func (s TaskStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusFetchingPlaylist:
		return "fetching_playlist"
	case StatusDownloading:
		return "downloading"
	case StatusMuxing:
		return "muxing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusPaused:
		return "paused"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are expected.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// DownloadTask is the job unit the Controller drives end to end. Inputs are
// set once at construction; progress fields are mutated only by the
// Controller and Engine, and every change is reported through the progress
// callback.
type DownloadTask struct {
	mu sync.RWMutex

	taskID      string
	playlistURL string
	outputPath  string
	displayName string
	qualityTag  string

	status             TaskStatus
	progress           float64
	bytesDone          int64
	bytesTotalEstimate int64
	speedBps           float64
	etaSeconds         float64
	errorMessage       string
}

// NewDownloadTask constructs a task in the Queued state.
func NewDownloadTask(taskID, playlistURL, outputPath, displayName, qualityTag string) *DownloadTask {
	return &DownloadTask{
		taskID:      taskID,
		playlistURL: playlistURL,
		outputPath:  outputPath,
		displayName: displayName,
		qualityTag:  qualityTag,
		status:      StatusQueued,
	}
}

func (t *DownloadTask) TaskID() string      { return t.taskID }
func (t *DownloadTask) PlaylistURL() string { return t.playlistURL }
func (t *DownloadTask) OutputPath() string  { return t.outputPath }
func (t *DownloadTask) DisplayName() string { return t.displayName }
func (t *DownloadTask) QualityTag() string  { return t.qualityTag }

// Snapshot is an immutable copy of a task's progress fields, handed to a
// ProgressCallback so callers never observe a torn read across fields.
type Snapshot struct {
	TaskID             string
	Status             TaskStatus
	Progress           float64
	BytesDone          int64
	BytesTotalEstimate int64
	SpeedBps           float64
	ETASeconds         float64
	ErrorMessage       string
}

func (t *DownloadTask) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		TaskID:             t.taskID,
		Status:             t.status,
		Progress:           t.progress,
		BytesDone:          t.bytesDone,
		BytesTotalEstimate: t.bytesTotalEstimate,
		SpeedBps:           t.speedBps,
		ETASeconds:         t.etaSeconds,
		ErrorMessage:       t.errorMessage,
	}
}

func (t *DownloadTask) setStatus(s TaskStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *DownloadTask) setProgress(bytesDone, bytesTotal int64, progress, speedBps, etaSeconds float64) {
	t.mu.Lock()
	t.bytesDone = bytesDone
	t.bytesTotalEstimate = bytesTotal
	t.progress = progress
	t.speedBps = speedBps
	t.etaSeconds = etaSeconds
	t.mu.Unlock()
}

func (t *DownloadTask) fail(message string) {
	t.mu.Lock()
	t.status = StatusFailed
	t.errorMessage = message
	t.mu.Unlock()
}

// ProgressCallback is invoked on every state mutation of a DownloadTask.
// Implementations must not block the caller for long; the Engine and
// Controller call it synchronously. The Engine calls it from its
// per-segment fetch goroutines, so calls may arrive concurrently.
type ProgressCallback func(Snapshot)
