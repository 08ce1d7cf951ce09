package hlsgrab

import "errors"

// Sentinel errors surfaced by the core across its public API.
var (
	ErrInvalidURL           = errors.New("hlsgrab: invalid playlist URL")
	ErrFFmpegNotFound       = errors.New("hlsgrab: ffmpeg executable not found in PATH")
	ErrEmptyPlaylist        = errors.New("hlsgrab: playlist contains no segments")
	ErrNoKeyDirective       = errors.New("hlsgrab: EXT-X-KEY missing required METHOD or URI")
	ErrMasterPlaylist       = errors.New("hlsgrab: master playlists are not supported, resolve a media playlist variant first")
	ErrIncompleteMerge      = errors.New("hlsgrab: not all segments are present for merge")
	ErrSegmentMissing       = errors.New("hlsgrab: segment file missing or empty on disk")
	ErrPoolClosed           = errors.New("hlsgrab: http client pool is closed")
	ErrCancelled            = errors.New("hlsgrab: operation cancelled")
	ErrInvalidKeyLength     = errors.New("hlsgrab: decryption key must be 16 bytes")
	ErrInvalidIV            = errors.New("hlsgrab: IV must be 16 bytes")
	ErrBadPadding           = errors.New("hlsgrab: invalid PKCS#7 padding")
	ErrCiphertextMisaligned = errors.New("hlsgrab: ciphertext is not a multiple of the AES block size")
)

// ErrorKind categorizes a failure the way the Error Classifier (C7) does, so
// retry policy and user-facing messages can be derived uniformly regardless
// of which component raised the underlying error.
type ErrorKind int

const (
	// KindUnknown is the zero value; classify() never returns it deliberately.
	KindUnknown ErrorKind = iota
	// KindRetryableNetwork covers transport-level transience: timeouts,
	// connection resets, DNS failures, HTTP 408/429.
	KindRetryableNetwork
	// KindRetryableServer covers HTTP 5xx.
	KindRetryableServer
	// KindNonRetryableClient covers HTTP 4xx other than 401/403/408/429.
	KindNonRetryableClient
	// KindNonRetryableAuth covers HTTP 401/403.
	KindNonRetryableAuth
	// KindPermanent covers unclassified errors and 2xx-as-error responses.
	KindPermanent
	// KindIntegrity covers state-file magic/version/CRC mismatches. Never
	// surfaced to a caller — it is recovered internally by discarding state.
	KindIntegrity
	// KindCancelled covers caller-initiated cancellation.
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindRetryableNetwork:
		return "retryable_network"
	case KindRetryableServer:
		return "retryable_server"
	case KindNonRetryableClient:
		return "non_retryable_client"
	case KindNonRetryableAuth:
		return "non_retryable_auth"
	case KindPermanent:
		return "permanent"
	case KindIntegrity:
		return "integrity"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an underlying error with the category the classifier
// assigned it and the retry policy that applies.
type ClassifiedError struct {
	Kind       ErrorKind
	Retryable  bool
	MaxRetries int
	BaseDelay  float64 // seconds
	Err        error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }
