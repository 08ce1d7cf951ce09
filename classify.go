package hlsgrab

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// classify maps an error (optionally paired with an HTTP status) to the
// retry policy the Error Classifier (C7) prescribes.
func classify(err error, statusCode int) *ClassifiedError {
	if err != nil && errors.Is(err, context.Canceled) {
		return &ClassifiedError{Kind: KindCancelled, Err: err}
	}

	if statusCode == 0 && err != nil {
		if isNetworkTransient(err) {
			return &ClassifiedError{Kind: KindRetryableNetwork, Retryable: true, MaxRetries: 5, BaseDelay: 1, Err: err}
		}
		return &ClassifiedError{Kind: KindPermanent, Err: err}
	}

	switch {
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return &ClassifiedError{Kind: KindRetryableNetwork, Retryable: true, MaxRetries: 5, BaseDelay: 1, Err: err}
	case statusCode >= 500 && statusCode < 600:
		return &ClassifiedError{Kind: KindRetryableServer, Retryable: true, MaxRetries: 3, BaseDelay: 2, Err: err}
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return &ClassifiedError{Kind: KindNonRetryableAuth, Err: err}
	case statusCode >= 400 && statusCode < 500:
		return &ClassifiedError{Kind: KindNonRetryableClient, Err: err}
	default:
		return &ClassifiedError{Kind: KindPermanent, Err: err}
	}
}

// isNetworkTransient recognizes timeouts, connection resets, and DNS
// failures as retryable transport errors.
func isNetworkTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "connection refused")
}

// retryDelay computes the backoff for attempt k (1-indexed): exponential
// off BaseDelay with additive jitter bounded by 100 + 50*k ms.
func retryDelay(ce *ClassifiedError, k int) time.Duration {
	base := time.Duration(ce.BaseDelay*float64(time.Second)) * (1 << uint(k-1))
	jitterBound := 100 + 50*k
	jitter := time.Duration(rand.Intn(jitterBound)) * time.Millisecond
	return base + jitter
}
