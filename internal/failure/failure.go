package failure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Kind classifies a failure for propagation and retry decisions.
type Kind string

const (
	KindInvalidRequest  Kind = "invalid-request"
	KindUpstream        Kind = "upstream-error"
	KindUpstreamTimeout Kind = "upstream-timeout"
	KindContentRejected Kind = "content-rejected"
	KindMergeFailure    Kind = "internal-merge-failure"
	KindInternal        Kind = "internal"
)

// Error is the structured failure surfaced to callers.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error

	// Permanent marks an upstream failure that must not be retried even
	// though its kind normally would be (for example HTTP 400).
	Permanent bool

	// RetryAfter is the server-suggested delay, zero when absent.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a failure of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap returns a failure of the given kind wrapping err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Permanentf returns a non-retryable upstream failure.
func Permanentf(op, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Op: op, Message: fmt.Sprintf(format, args...), Permanent: true}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf reports the kind of err. Context deadlines are upstream timeouts and
// anything unclassified is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUpstreamTimeout
	}
	return KindInternal
}

// Retryable reports whether err may succeed on another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if fe, ok := As(err); ok && fe.Permanent {
		return false
	}
	switch KindOf(err) {
	case KindUpstream, KindUpstreamTimeout:
		return true
	default:
		return false
	}
}

// RetryAfterOf returns the server-suggested delay carried by err, if any.
func RetryAfterOf(err error) time.Duration {
	if fe, ok := As(err); ok {
		return fe.RetryAfter
	}
	return 0
}

// FromHTTPStatus classifies a non-2xx upstream HTTP response.
// 408 is a timeout, 429 and 5xx are transient, every other status is a
// permanent upstream error.
func FromHTTPStatus(op string, status int, body string, retryAfter time.Duration) *Error {
	msg := fmt.Sprintf("http %d: %s", status, strings.TrimSpace(body))
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &Error{Kind: KindUpstreamTimeout, Op: op, Message: msg, RetryAfter: retryAfter}
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return &Error{Kind: KindUpstream, Op: op, Message: msg, RetryAfter: retryAfter}
	default:
		return &Error{Kind: KindUpstream, Op: op, Message: msg, Permanent: true}
	}
}

// HTTPStatus maps a failure kind to the status the API layer responds with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindContentRejected:
		return http.StatusUnprocessableEntity
	case KindUpstream:
		return http.StatusBadGateway
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
