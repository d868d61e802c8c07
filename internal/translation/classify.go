package translation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// OutcomeKind tags the result of one remote attempt
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeBlocked
	OutcomeInvalidResponse
	OutcomeTransient
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeInvalidResponse:
		return "invalid_response"
	case OutcomeTransient:
		return "transient"
	case OutcomeCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome is the classified result of one remote attempt. Body is set on
// success, RetryAfter when rate limited, Reason for invalid responses and
// Err for transport failures.
type Outcome struct {
	Kind       OutcomeKind
	Status     int
	Body       []byte
	RetryAfter time.Duration
	Reason     string
	Err        error
}

// Classify maps an HTTP response onto an Outcome. The order of the checks
// matters: status codes first, then the body.
func Classify(status int, header http.Header, body []byte, now time.Time) Outcome {
	switch {
	case status == http.StatusTooManyRequests:
		return Outcome{
			Kind:       OutcomeRateLimited,
			Status:     status,
			RetryAfter: parseRetryAfter(header.Get("Retry-After"), now),
		}
	case status == http.StatusForbidden:
		return Outcome{Kind: OutcomeBlocked, Status: status, Reason: "forbidden"}
	case status < 200 || status > 299:
		return Outcome{Kind: OutcomeInvalidResponse, Status: status,
			Reason: fmt.Sprintf("unexpected status %d", status)}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Outcome{Kind: OutcomeInvalidResponse, Status: status, Reason: "empty body"}
	}

	lower := bytes.ToLower(trimmed)
	if bytes.Contains(lower, []byte("<html")) || bytes.Contains(lower, []byte("captcha")) {
		return Outcome{Kind: OutcomeBlocked, Status: status, Reason: "captcha or html page"}
	}

	return Outcome{Kind: OutcomeSuccess, Status: status, Body: trimmed}
}

// ClassifyTransportError maps a failed round trip. A done ctx always means
// cancellation, whatever error the transport produced.
func ClassifyTransportError(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return Outcome{Kind: OutcomeCancelled, Err: err}
	}
	return Outcome{Kind: OutcomeTransient, Err: err}
}

// AsError converts a non-success outcome into an *Error. It returns nil for
// OutcomeSuccess.
func (o Outcome) AsError() *Error {
	e := &Error{Status: o.Status, RetryAfter: o.RetryAfter, Reason: o.Reason, Err: o.Err}
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeRateLimited:
		e.Kind = KindRateLimited
	case OutcomeBlocked:
		e.Kind = KindBlocked
	case OutcomeInvalidResponse:
		e.Kind = KindInvalidResponse
	case OutcomeTransient:
		e.Kind = KindTransient
	case OutcomeCancelled:
		e.Kind = KindCancelled
	default:
		e.Kind = KindUnknown
	}
	return e
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
