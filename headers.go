package hlsgrab

import (
	"net/http"
	"net/url"

	"github.com/mdrill/hlsgrab/utils"
)

// HeaderProvider supplies the per-request HTTP headers attached to every
// playlist, key, and segment fetch (§6). The core never invents these
// headers on its own; it asks the injected provider, the way the teacher's
// Stream.Header is threaded through every resty request.
type HeaderProvider interface {
	HeadersFor(requestURL string) (http.Header, error)
}

// DefaultHeaderProvider builds the cross-site fetch header set §6 mandates:
// User-Agent, Accept family, keep-alive, a Referer scoped to the playlist's
// scheme+host, and Sec-Fetch-* values consistent with a cross-site fetch,
// merged under any caller-supplied Extra headers.
type DefaultHeaderProvider struct {
	PlaylistURL string
	UserAgent   string
	Extra       http.Header
}

// NewDefaultHeaderProvider builds a DefaultHeaderProvider from cfg, scoping
// the Referer to playlistURL.
func NewDefaultHeaderProvider(cfg Config, playlistURL string) *DefaultHeaderProvider {
	return &DefaultHeaderProvider{
		PlaylistURL: playlistURL,
		UserAgent:   userAgentOrDefault(cfg),
		Extra:       cfg.Headers,
	}
}

func (p *DefaultHeaderProvider) HeadersFor(requestURL string) (http.Header, error) {
	h := http.Header{}
	h.Set("User-Agent", p.UserAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "cross-site")

	if p.PlaylistURL != "" {
		if u, err := url.Parse(p.PlaylistURL); err == nil && u.Host != "" {
			h.Set("Referer", u.Scheme+"://"+u.Host+"/")
		}
	}

	if p.Extra != nil {
		h = utils.MergeHeader(h, p.Extra)
	}
	return h, nil
}
