package hlsgrab

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
)

// Encryption describes the AES-128 key directive a media playlist carries,
// per §3's Playlist.encryption.
type Encryption struct {
	Method string
	KeyURL string
	// IV is the explicit 16-byte IV from an EXT-X-KEY IV= attribute, or nil
	// when the playlist left it unspecified (the Engine then derives one
	// from the segment's sequence number per the HLS convention).
	IV []byte
}

// Playlist is the transient result of parsing an M3U8 media playlist body,
// per §3.
type Playlist struct {
	Segments   []string
	Encryption *Encryption
}

// ParsePlaylist decodes an M3U8 media playlist body with grafov/m3u8 (the
// same decoder the teacher's processM3U8 uses) and resolves every segment
// and key URI against baseURL, the playlist's own absolute URL. Master
// playlists are rejected: multi-variant bitrate selection is out of scope
// (§1 Non-goals); callers must resolve a media playlist variant URL first.
func ParsePlaylist(body []byte, baseURL string) (*Playlist, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	playlist, listType, err := m3u8.DecodeFrom(bytes.NewReader(body), true)
	if err != nil {
		return nil, fmt.Errorf("hlsgrab: decode playlist: %w", err)
	}

	switch listType {
	case m3u8.MEDIA:
		return parseMediaPlaylist(playlist.(*m3u8.MediaPlaylist), base)
	case m3u8.MASTER:
		return nil, ErrMasterPlaylist
	default:
		return nil, fmt.Errorf("hlsgrab: unsupported playlist type %d", listType)
	}
}

func parseMediaPlaylist(pl *m3u8.MediaPlaylist, base *url.URL) (*Playlist, error) {
	segments := make([]string, 0, len(pl.Segments))
	var enc *Encryption

	for _, seg := range pl.Segments {
		if seg == nil || seg.URI == "" {
			continue
		}
		if seg.Key != nil && seg.Key.URI != "" {
			e, err := resolveEncryption(seg.Key, base)
			if err != nil {
				return nil, err
			}
			enc = e
		}
		segURL, err := resolveReference(seg.URI, base)
		if err != nil {
			// Degraded mode: skip an unparseable segment reference rather
			// than failing the whole playlist, matching the teacher's
			// warn-and-skip handling of a single bad segment URI.
			continue
		}
		segments = append(segments, segURL)
	}

	if len(segments) == 0 {
		return nil, ErrEmptyPlaylist
	}
	return &Playlist{Segments: segments, Encryption: enc}, nil
}

func resolveReference(raw string, base *url.URL) (string, error) {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw, nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func resolveEncryption(key *m3u8.Key, base *url.URL) (*Encryption, error) {
	if key.Method == "" || key.URI == "" {
		return nil, ErrNoKeyDirective
	}
	keyURL, err := resolveReference(key.URI, base)
	if err != nil {
		return nil, fmt.Errorf("hlsgrab: invalid EXT-X-KEY URI: %w", err)
	}
	enc := &Encryption{Method: key.Method, KeyURL: keyURL}
	if key.IV != "" {
		iv, err := parseExplicitIV(key.IV)
		if err != nil {
			return nil, err
		}
		enc.IV = iv
	}
	return enc, nil
}

// parseExplicitIV decodes an EXT-X-KEY IV=0x<32 hex chars> attribute into
// its 16 raw bytes.
func parseExplicitIV(raw string) ([]byte, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if len(s) != 32 {
		return nil, fmt.Errorf("%w: got %d hex chars", ErrInvalidIV, len(s))
	}
	iv, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIV, err)
	}
	return iv, nil
}
