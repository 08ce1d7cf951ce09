package hlsgrab

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"
)

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		wantKind   ErrorKind
		retryable  bool
		maxRetries int
	}{
		{"request timeout", http.StatusRequestTimeout, KindRetryableNetwork, true, 5},
		{"too many requests", http.StatusTooManyRequests, KindRetryableNetwork, true, 5},
		{"internal server error", http.StatusInternalServerError, KindRetryableServer, true, 3},
		{"bad gateway", http.StatusBadGateway, KindRetryableServer, true, 3},
		{"unauthorized", http.StatusUnauthorized, KindNonRetryableAuth, false, 0},
		{"forbidden", http.StatusForbidden, KindNonRetryableAuth, false, 0},
		{"not found", http.StatusNotFound, KindNonRetryableClient, false, 0},
		{"teapot", http.StatusTeapot, KindNonRetryableClient, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ce := classify(errors.New("unexpected status"), tc.status)
			if ce.Kind != tc.wantKind {
				t.Errorf("Kind = %v, want %v", ce.Kind, tc.wantKind)
			}
			if ce.Retryable != tc.retryable {
				t.Errorf("Retryable = %v, want %v", ce.Retryable, tc.retryable)
			}
			if ce.MaxRetries != tc.maxRetries {
				t.Errorf("MaxRetries = %d, want %d", ce.MaxRetries, tc.maxRetries)
			}
		})
	}
}

func TestClassifyCancelled(t *testing.T) {
	ce := classify(context.Canceled, 0)
	if ce.Kind != KindCancelled {
		t.Fatalf("Kind = %v, want KindCancelled", ce.Kind)
	}
}

func TestClassifyNetworkTimeout(t *testing.T) {
	ce := classify(&net.DNSError{Err: "timeout", IsTimeout: true}, 0)
	if ce.Kind != KindRetryableNetwork {
		t.Fatalf("Kind = %v, want KindRetryableNetwork", ce.Kind)
	}
	if !ce.Retryable {
		t.Fatal("expected retryable")
	}
}

func TestClassifyUnclassifiedIsPermanent(t *testing.T) {
	ce := classify(errors.New("something weird"), 0)
	if ce.Kind != KindPermanent {
		t.Fatalf("Kind = %v, want KindPermanent", ce.Kind)
	}
	if ce.Retryable {
		t.Fatal("permanent errors must not be retryable")
	}
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	wrapped := errors.New("inner")
	ce := classify(wrapped, http.StatusInternalServerError)
	if !errors.Is(ce, wrapped) {
		t.Fatal("ClassifiedError should unwrap to the underlying error")
	}
}

func TestRetryDelayGrowsWithAttempt(t *testing.T) {
	ce := &ClassifiedError{BaseDelay: 1}
	d1 := retryDelay(ce, 1)
	d2 := retryDelay(ce, 2)

	// Worst-case jitter for attempt 1 is 150ms, so attempt 2's base alone
	// (2s) must exceed attempt 1's maximum possible delay.
	if d2 <= d1 {
		// jitter is random; only the base terms are deterministic, so
		// compare against the minimum possible attempt-2 delay instead.
		if d2 < 2*time.Second {
			t.Fatalf("attempt 2 delay %v should be at least the 2s exponential base", d2)
		}
	}
	if d1 < time.Second {
		t.Fatalf("attempt 1 delay %v should be at least the 1s base", d1)
	}
}
