package translation

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies translation failures
type Kind int

const (
	KindUnknown Kind = iota
	KindEmptyInput
	KindInvalidLanguage
	KindRateLimited
	KindBlocked
	KindInvalidResponse
	KindUnknownProviderResponse
	KindTransient
	KindCancelled
	KindUnsupportedProvider
	KindCircuitOpen
)

var kindNames = map[Kind]string{
	KindUnknown:                 "unknown",
	KindEmptyInput:              "empty_input",
	KindInvalidLanguage:         "invalid_language",
	KindRateLimited:             "rate_limited",
	KindBlocked:                 "blocked",
	KindInvalidResponse:         "invalid_response",
	KindUnknownProviderResponse: "unknown_provider_response",
	KindTransient:               "transient",
	KindCancelled:               "cancelled",
	KindUnsupportedProvider:     "unsupported_provider",
	KindCircuitOpen:             "circuit_open",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether another attempt may succeed
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// Sentinel errors, one per Kind, for use with errors.Is
var (
	ErrEmptyInput              = errors.New("empty input")
	ErrInvalidLanguage         = errors.New("invalid language code")
	ErrRateLimited             = errors.New("rate limited")
	ErrBlocked                 = errors.New("blocked by provider")
	ErrInvalidResponse         = errors.New("invalid response")
	ErrUnknownProviderResponse = errors.New("unrecognized provider response")
	ErrTransient               = errors.New("network error")
	ErrCancelled               = errors.New("operation cancelled")
	ErrUnsupportedProvider     = errors.New("unsupported provider")
	ErrCircuitOpen             = errors.New("provider circuit open")
)

var kindSentinels = map[Kind]error{
	KindEmptyInput:              ErrEmptyInput,
	KindInvalidLanguage:         ErrInvalidLanguage,
	KindRateLimited:             ErrRateLimited,
	KindBlocked:                 ErrBlocked,
	KindInvalidResponse:         ErrInvalidResponse,
	KindUnknownProviderResponse: ErrUnknownProviderResponse,
	KindTransient:               ErrTransient,
	KindCancelled:               ErrCancelled,
	KindUnsupportedProvider:     ErrUnsupportedProvider,
	KindCircuitOpen:             ErrCircuitOpen,
}

// Error is a classified translation failure
type Error struct {
	Kind       Kind
	Status     int           // HTTP status, 0 if no response was received
	RetryAfter time.Duration // provider supplied wait, rate limiting only
	Attempts   int           // remote attempts made before giving up
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		msg = sentinel.Error()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's Kind
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error
func KindOf(err error) Kind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return KindUnknown
}

// UserMessage returns a short description of err suitable for end users.
// Details stay in the logs.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindEmptyInput:
		return "empty input"
	case KindInvalidLanguage:
		return "invalid language code"
	case KindCancelled:
		return "cancelled"
	case KindTransient:
		return "network error"
	case KindRateLimited, KindCircuitOpen:
		return "rate limited, try later"
	case KindBlocked:
		return "blocked/captcha"
	default:
		return "translation failed"
	}
}
