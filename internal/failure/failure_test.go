package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "structured", err: New(KindContentRejected, "op", "blocked"), want: KindContentRejected},
		{name: "wrapped structured", err: fmt.Errorf("outer: %w", New(KindInvalidRequest, "op", "bad")), want: KindInvalidRequest},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: KindUpstreamTimeout},
		{name: "plain", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "upstream", err: New(KindUpstream, "op", "503"), want: true},
		{name: "timeout", err: New(KindUpstreamTimeout, "op", "slow"), want: true},
		{name: "permanent upstream", err: Permanentf("op", "http 400"), want: false},
		{name: "content rejected", err: New(KindContentRejected, "op", "policy"), want: false},
		{name: "invalid request", err: New(KindInvalidRequest, "op", "page"), want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		kind      Kind
		retryable bool
	}{
		{status: http.StatusTooManyRequests, kind: KindUpstream, retryable: true},
		{status: http.StatusServiceUnavailable, kind: KindUpstream, retryable: true},
		{status: http.StatusRequestTimeout, kind: KindUpstreamTimeout, retryable: true},
		{status: http.StatusBadRequest, kind: KindUpstream, retryable: false},
		{status: http.StatusUnauthorized, kind: KindUpstream, retryable: false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromHTTPStatus("op", tt.status, "body", 2*time.Second)
			if err.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", err.Kind, tt.kind)
			}
			if Retryable(err) != tt.retryable {
				t.Errorf("retryable = %v, want %v", Retryable(err), tt.retryable)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindUpstream, "analysis", errors.New("connection reset"))
	want := "analysis: upstream-error: connection reset"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
