package hlsgrab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// fixedHeaders is a HeaderProvider stub that always returns an empty header
// set, used so engine tests don't depend on DefaultHeaderProvider's Referer
// parsing.
type fixedHeaders struct{}

func (fixedHeaders) HeadersFor(string) (http.Header, error) { return http.Header{}, nil }

func newTestEngine(t *testing.T, cfg Config) (*Engine, *ClientPool) {
	t.Helper()
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 2
	}
	if cfg.ConcurrencyMax == 0 {
		cfg.ConcurrencyMin, cfg.ConcurrencyMax, cfg.ConcurrencyInitial = 1, 4, 2
	}
	if cfg.SegmentTimeout == 0 {
		cfg.SegmentTimeout = 5 * time.Second
	}
	pool, err := NewClientPool(cfg)
	if err != nil {
		t.Fatalf("NewClientPool: %v", err)
	}
	t.Cleanup(pool.CloseAll)
	return NewEngine(cfg, pool, fixedHeaders{}, nil), pool
}

func segmentServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range bodies {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEngineRunPlainThreeSegments(t *testing.T) {
	srv := segmentServer(t, map[string]string{
		"/seg0.ts": "AAAA",
		"/seg1.ts": "BBBB",
		"/seg2.ts": "CCCC",
	})

	playlist := &Playlist{Segments: []string{
		srv.URL + "/seg0.ts",
		srv.URL + "/seg1.ts",
		srv.URL + "/seg2.ts",
	}}

	engine, _ := newTestEngine(t, Config{})
	workDir := t.TempDir()
	task := NewDownloadTask("t1", srv.URL+"/index.m3u8", filepath.Join(workDir, "out.mp4"), "out", "")

	var lastSnapshot Snapshot
	onProgress := func(s Snapshot) { lastSnapshot = s }

	if err := engine.Run(context.Background(), playlist, nil, workDir, task, onProgress); err != nil {
		t.Fatalf("Run: %v", err)
	}

	manifest := engine.Manifest()
	if len(manifest) != 3 {
		t.Fatalf("len(Manifest) = %d, want 3", len(manifest))
	}
	for i, want := range []string{"AAAA", "BBBB", "CCCC"} {
		got, err := os.ReadFile(manifest[i])
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", manifest[i], err)
		}
		if string(got) != want {
			t.Errorf("segment %d content = %q, want %q", i, got, want)
		}
	}
	if lastSnapshot.Progress <= 0 {
		t.Error("expected non-zero progress to have been reported")
	}
}

func TestEngineRunEncryptedSegments(t *testing.T) {
	key := make([]byte, 16)
	copy(key, "sixteen byte key")
	plaintexts := []string{"segment zero payload here", "segment one payload here!", "segment two payload here?", "segment three payload ---"}

	bodies := map[string]string{}
	for i, pt := range plaintexts {
		ct := encryptForTest(t, []byte(pt), key, sequenceIV(i))
		bodies[fmt.Sprintf("/seg%d.ts", i)] = string(ct)
	}
	srv := segmentServer(t, bodies)

	segs := make([]string, len(plaintexts))
	for i := range plaintexts {
		segs[i] = fmt.Sprintf("%s/seg%d.ts", srv.URL, i)
	}
	playlist := &Playlist{Segments: segs, Encryption: &Encryption{Method: "AES-128", KeyURL: srv.URL + "/key.bin"}}

	engine, _ := newTestEngine(t, Config{})
	workDir := t.TempDir()
	task := NewDownloadTask("t2", srv.URL+"/index.m3u8", filepath.Join(workDir, "out.mp4"), "out", "")

	if err := engine.Run(context.Background(), playlist, key, workDir, task, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	manifest := engine.Manifest()
	for i, want := range plaintexts {
		got, err := os.ReadFile(manifest[i])
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", manifest[i], err)
		}
		if string(got) != want {
			t.Errorf("segment %d decrypted = %q, want %q", i, got, want)
		}
	}
}

func TestEngineResumesAfterPartialState(t *testing.T) {
	srv := segmentServer(t, map[string]string{
		"/seg0.ts": "AAAA",
		"/seg1.ts": "BBBB",
		"/seg2.ts": "CCCC",
	})
	playlist := &Playlist{Segments: []string{
		srv.URL + "/seg0.ts",
		srv.URL + "/seg1.ts",
		srv.URL + "/seg2.ts",
	}}

	workDir := t.TempDir()
	// Pre-populate segment 0 on disk and mark it complete in a bitfield
	// state, simulating a crash after segment 0 finished but before 1 and 2.
	seg0Path := segmentPath(workDir, 0)
	if err := os.WriteFile(seg0Path, []byte("AAAA"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	state := NewBitfieldState(filepath.Join(workDir, stateFileName), 3)
	if err := state.SetAndPersist(0); err != nil {
		t.Fatalf("SetAndPersist: %v", err)
	}

	engine, _ := newTestEngine(t, Config{})
	task := NewDownloadTask("t3", srv.URL+"/index.m3u8", filepath.Join(workDir, "out.mp4"), "out", "")

	if err := engine.Run(context.Background(), playlist, nil, workDir, task, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	manifest := engine.Manifest()
	if len(manifest) != 3 {
		t.Fatalf("len(Manifest) = %d, want 3", len(manifest))
	}
	for i, want := range []string{"AAAA", "BBBB", "CCCC"} {
		got, err := os.ReadFile(manifest[i])
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", manifest[i], err)
		}
		if string(got) != want {
			t.Errorf("segment %d = %q, want %q", i, got, want)
		}
	}
}

func TestEngineResumeDiscardsMissingSegmentFile(t *testing.T) {
	srv := segmentServer(t, map[string]string{"/seg0.ts": "ZZZZ"})
	playlist := &Playlist{Segments: []string{srv.URL + "/seg0.ts"}}

	workDir := t.TempDir()
	// Bitfield claims segment 0 is done, but its file was never written —
	// the case step 2 of §4.11's resume protocol handles.
	state := NewBitfieldState(filepath.Join(workDir, stateFileName), 1)
	if err := state.SetAndPersist(0); err != nil {
		t.Fatalf("SetAndPersist: %v", err)
	}

	engine, _ := newTestEngine(t, Config{})
	task := NewDownloadTask("t4", srv.URL+"/index.m3u8", filepath.Join(workDir, "out.mp4"), "out", "")

	if err := engine.Run(context.Background(), playlist, nil, workDir, task, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, err := os.ReadFile(segmentPath(workDir, 0))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "ZZZZ" {
		t.Fatalf("segment 0 = %q, want it re-fetched as %q", got, "ZZZZ")
	}
}

func TestEngineRetriesTransientFailures(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK-AFTER-RETRY"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	playlist := &Playlist{Segments: []string{srv.URL + "/seg0.ts"}}
	engine, _ := newTestEngine(t, Config{})
	engine.clock = instantClock{}

	workDir := t.TempDir()
	task := NewDownloadTask("t5", srv.URL+"/index.m3u8", filepath.Join(workDir, "out.mp4"), "out", "")

	if err := engine.Run(context.Background(), playlist, nil, workDir, task, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want exactly 3 (2 failures + 1 success)", got)
	}
}

func TestEngineNonRetryableFailureIsTerminal(t *testing.T) {
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	playlist := &Playlist{Segments: []string{srv.URL + "/seg0.ts"}}
	engine, _ := newTestEngine(t, Config{})
	engine.clock = instantClock{}

	workDir := t.TempDir()
	task := NewDownloadTask("t6", srv.URL+"/index.m3u8", filepath.Join(workDir, "out.mp4"), "out", "")

	err := engine.Run(context.Background(), playlist, nil, workDir, task, nil)
	if err == nil {
		t.Fatal("expected a terminal error for a 403 response")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want exactly 1 (no retries on a non-retryable status)", got)
	}
}

// instantClock collapses retry backoff to near-zero so retry tests run fast.
type instantClock struct{}

func (instantClock) Now() time.Time { return time.Now() }
func (instantClock) Sleep(ctx context.Context, d time.Duration) error {
	return realClock{}.Sleep(ctx, time.Millisecond)
}
