package hlsgrab

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gregjones/httpcache"
	"github.com/gregjones/httpcache/diskcache"
	"golang.org/x/sync/semaphore"

	"github.com/mdrill/hlsgrab/utils"
)

// ClientPool is a bounded set of reusable resty clients (C3). acquire
// blocks cooperatively when all handles are checked out; handles are
// returned LIFO so warm keep-alive connections are favoured.
type ClientPool struct {
	sem  *semaphore.Weighted
	mu   sync.Mutex
	free []*resty.Client
	size int
	cfg  Config

	closed bool
}

// NewClientPool builds a pool of size cfg.PoolSize, each client configured
// identically from cfg (timeout, proxy, cookies, headers, caching).
func NewClientPool(cfg Config) (*ClientPool, error) {
	size := cfg.PoolSize
	if size <= 0 {
		size = 8
	}
	p := &ClientPool{
		sem:  semaphore.NewWeighted(int64(size)),
		free: make([]*resty.Client, 0, size),
		size: size,
		cfg:  cfg,
	}
	for i := 0; i < size; i++ {
		c, err := newPooledClient(cfg)
		if err != nil {
			return nil, err
		}
		p.free = append(p.free, c)
	}
	return p, nil
}

// Acquire waits for a free handle, honoring ctx cancellation.
func (p *ClientPool) Acquire(ctx context.Context) (*resty.Client, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	n := len(p.free)
	c := p.free[n-1]
	p.free = p.free[:n-1]
	return c, nil
}

// Release returns a handle to the pool.
func (p *ClientPool) Release(c *resty.Client) {
	p.mu.Lock()
	if !p.closed {
		p.free = append(p.free, c)
	}
	p.mu.Unlock()
	p.sem.Release(1)
}

// CloseAll marks the pool closed; handles already checked out may still be
// used to completion by their holders, but no further Acquire succeeds.
func (p *ClientPool) CloseAll() {
	p.mu.Lock()
	p.closed = true
	p.free = nil
	p.mu.Unlock()
}

func newPooledClient(o Config) (*resty.Client, error) {
	client := resty.New()

	// Per-attempt deadlines come from each request's context; the client
	// timeout is the longest configured one (at least the 60s playlist
	// default) so it never cuts a playlist or key fetch short.
	timeout := 60 * time.Second
	for _, d := range []time.Duration{o.PlaylistTimeout, o.SegmentTimeout, o.KeyTimeout} {
		if d > timeout {
			timeout = d
		}
	}
	client.SetTimeout(timeout)

	if o.Proxy != "" {
		client.SetProxy(o.Proxy)
	}

	if o.CookieFile != "" {
		jar, err := utils.CookieJarFromFile(o.CookieFile)
		if err != nil {
			return nil, err
		}
		client.SetCookieJar(jar)
	}

	if o.Headers != nil {
		client.Header = o.Headers.Clone()
	}

	client.SetHeader("User-Agent", userAgentOrDefault(o))

	if o.Debug {
		client.SetDebug(true)
	}

	if !o.NoCache {
		cachePath := filepath.Join(os.TempDir(), "hlsgrab_cache")
		cache := diskcache.New(cachePath)
		client.SetTransport(httpcache.NewTransport(cache))
	}

	return client, nil
}
