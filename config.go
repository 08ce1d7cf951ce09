package hlsgrab

import (
	"net/http"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds the tunables for a download run. The zero value is not
// ready to use; construct one with DefaultConfig and override fields.
type Config struct {
	// WorkDirRoot is the parent directory under which each task's
	// m3u8_download_<task_id> workdir is created. Defaults to os.TempDir().
	WorkDirRoot string

	// PoolSize bounds the HTTP Client Pool (C3).
	PoolSize int

	// ConcurrencyMin, ConcurrencyMax and ConcurrencyInitial bound and seed
	// the Adaptive Concurrency Controller (C5).
	ConcurrencyMin     int
	ConcurrencyMax     int
	ConcurrencyInitial int

	// MemoryCapBytes is the budget the concurrency controller measures
	// process memory usage against.
	MemoryCapBytes int64

	// BandwidthLimitBps caps aggregate segment-body bytes per second.
	// Zero disables throttling (C6).
	BandwidthLimitBps int64

	// PlaylistTimeout, SegmentTimeout and KeyTimeout are per-attempt HTTP
	// timeouts, not per-retry-chain.
	PlaylistTimeout time.Duration
	SegmentTimeout  time.Duration
	KeyTimeout      time.Duration

	// RetryJitterMs is not read by the retry path: backoff jitter for
	// attempt k is bounded by 100 + 50·k ms whatever this field holds.
	RetryJitterMs int

	// Headers are merged under whatever a HeaderProvider returns.
	Headers http.Header

	// UserAgent overrides the default User-Agent sent with every request.
	UserAgent string

	// Proxy is an HTTP/HTTPS proxy URL, e.g. "http://127.0.0.1:8080".
	Proxy string

	// CookieFile is a Netscape-format cookies.txt path.
	CookieFile string

	// NoCache disables the optional on-disk HTTP response cache.
	NoCache bool

	Debug   bool
	Verbose bool
	Silent  bool
}

// DefaultConfig returns a Config with the spec's defaults: pool size 8,
// concurrency in [1,8] seeded at 4, a 50 MiB memory cap, and no bandwidth
// limit.
func DefaultConfig() *Config {
	return &Config{
		PoolSize:           8,
		ConcurrencyMin:     1,
		ConcurrencyMax:     8,
		ConcurrencyInitial: 4,
		MemoryCapBytes:     50 * 1024 * 1024,
		BandwidthLimitBps:  0,
		PlaylistTimeout:    60 * time.Second,
		SegmentTimeout:     45 * time.Second,
		KeyTimeout:         30 * time.Second,
		RetryJitterMs:      100,
	}
}

// Option is a functional option: a closure that mutates a Config in place,
// following the teacher's flat-struct configuration convention.
type Option func(*Config)

// Combine applies a sequence of Options to a base Config and returns it.
func Combine(c *Config, opts ...Option) *Config {
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func WithPoolSize(n int) Option {
	return func(c *Config) { c.PoolSize = n }
}

func WithConcurrency(min, max, initial int) Option {
	return func(c *Config) {
		c.ConcurrencyMin = min
		c.ConcurrencyMax = max
		c.ConcurrencyInitial = initial
	}
}

func WithBandwidthLimit(bps int64) Option {
	return func(c *Config) { c.BandwidthLimitBps = bps }
}

func WithProxy(proxy string) Option {
	return func(c *Config) { c.Proxy = proxy }
}

func WithCookieFile(path string) Option {
	return func(c *Config) { c.CookieFile = path }
}

func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}

func userAgentOrDefault(c Config) string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return defaultUserAgent
}
