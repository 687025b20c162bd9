package content

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType is the shared classification vocabulary for fetch failures.
type ErrorType string

// Error types surfaced in result envelopes.
const (
	ErrTypeTranscriptNotFound  ErrorType = "TRANSCRIPT_NOT_FOUND"
	ErrTypeTranscriptsDisabled ErrorType = "TRANSCRIPTS_DISABLED"
	ErrTypeVideoNotFound       ErrorType = "VIDEO_NOT_FOUND"
	ErrTypePrivateVideo        ErrorType = "PRIVATE_VIDEO"
	ErrTypeAgeRestricted       ErrorType = "AGE_RESTRICTED"
	ErrTypeRateLimited         ErrorType = "RATE_LIMITED"
	ErrTypeTimeout             ErrorType = "TIMEOUT"
	ErrTypeNetwork             ErrorType = "NETWORK_ERROR"
	ErrTypeServer              ErrorType = "SERVER_ERROR"
	ErrTypeBlocked             ErrorType = "BLOCKED"
	ErrTypeNotFound            ErrorType = "NOT_FOUND"
	ErrTypeInvalidURL          ErrorType = "INVALID_URL"
	ErrTypeUnknown             ErrorType = "UNKNOWN"
)

// Retryable reports whether another backend or a later attempt may succeed.
// Blocked is treated as retryable because it is site dependent.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrTypeTranscriptNotFound,
		ErrTypeTranscriptsDisabled,
		ErrTypeVideoNotFound,
		ErrTypePrivateVideo,
		ErrTypeAgeRestricted,
		ErrTypeNotFound,
		ErrTypeInvalidURL:
		return false
	default:
		return true
	}
}

// HTTPStatus maps the classification onto the status code used by the HTTP layer.
func (t ErrorType) HTTPStatus() int {
	switch t {
	case ErrTypeInvalidURL:
		return http.StatusBadRequest
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeBlocked:
		return http.StatusForbidden
	case ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is an error that already carries its classification.
type Error struct {
	Type ErrorType
	Err  error
}

// NewError wraps err with an explicit classification.
func NewError(t ErrorType, err error) *Error {
	return &Error{Type: t, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return strings.ToLower(string(e.Type))
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

type rule struct {
	kind    ErrorType
	needles []string
}

// genericRules are evaluated in order; the first match wins.
var genericRules = []rule{
	{ErrTypeTimeout, []string{"timeout", "timed out", "net::err_timed_out", "deadline exceeded"}},
	{ErrTypeNetwork, []string{
		"net::err_", "econnrefused", "econnreset", "enotfound", "connection refused",
		"connection reset", "no such host", "network is unreachable", "network error",
	}},
	{ErrTypeBlocked, []string{"403", "forbidden", "blocked", "captcha", "access denied"}},
	{ErrTypeNotFound, []string{"404", "not found"}},
	{ErrTypeServer, []string{"500", "502", "503", "internal server error", "bad gateway", "service unavailable"}},
}

// transcriptRules run before genericRules for transcript backends.
var transcriptRules = []rule{
	{ErrTypePrivateVideo, []string{"private video", "video is private"}},
	{ErrTypeAgeRestricted, []string{"confirm your age", "age-restricted", "age restricted", "inappropriate for some users"}},
	{ErrTypeRateLimited, []string{"429", "too many requests", "rate limit", "rate-limit"}},
	{ErrTypeVideoNotFound, []string{"video unavailable", "video is unavailable", "video not found", "not a valid url", "incomplete youtube id", "does not exist"}},
	{ErrTypeTranscriptsDisabled, []string{"disabled"}},
	{ErrTypeTranscriptNotFound, []string{"no subtitles", "no captions", "no transcript", "has no subtitles"}},
}

// Classify maps err onto the shared vocabulary. A typed *Error wins; context
// deadlines are timeouts; everything else is matched on the lowercased message.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrTypeUnknown
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout
	}
	return match(strings.ToLower(err.Error()), genericRules)
}

// ClassifyTranscript applies transcript-specific rules ahead of the generic ones.
func ClassifyTranscript(err error) ErrorType {
	if err == nil {
		return ErrTypeUnknown
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTypeTimeout
	}
	msg := strings.ToLower(err.Error())
	if kind := match(msg, transcriptRules); kind != ErrTypeUnknown {
		return kind
	}
	return match(msg, genericRules)
}

func match(msg string, rules []rule) ErrorType {
	for _, r := range rules {
		for _, needle := range r.needles {
			if strings.Contains(msg, needle) {
				return r.kind
			}
		}
	}
	return ErrTypeUnknown
}
