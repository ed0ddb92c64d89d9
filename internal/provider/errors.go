package provider

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind is the closed set of provider-call failure kinds from §7.
type ErrorKind string

const (
	ErrorKindNetwork       ErrorKind = "network"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindHTTPStatus    ErrorKind = "http_status"
	ErrorKindProtocol      ErrorKind = "protocol"
	ErrorKindEmptyResponse ErrorKind = "empty_response"
	ErrorKindAuth          ErrorKind = "auth"
)

// CallError wraps a classified provider failure. model_id is attached by
// the caller (the Fallback Executor records it on the Attempt), so this
// type only carries kind, an optional HTTP status, and the cause.
type CallError struct {
	Kind   ErrorKind
	Status int // set when Kind == ErrorKindHTTPStatus
	Cause  error
}

func (e *CallError) Error() string {
	if e.Kind == ErrorKindHTTPStatus {
		return fmt.Sprintf("http_status(%d): %v", e.Status, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *CallError) Unwrap() error { return e.Cause }

// AsCallError extracts a *CallError from err, if any.
func AsCallError(err error) (*CallError, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// NewNetworkError, NewTimeoutError, etc. are the adapter-facing
// constructors; every adapter funnels its failures through one of these so
// the Fallback Executor only ever deals in ErrorKind.
func NewNetworkError(cause error) error  { return &CallError{Kind: ErrorKindNetwork, Cause: cause} }
func NewTimeoutError(cause error) error  { return &CallError{Kind: ErrorKindTimeout, Cause: cause} }
func NewProtocolError(cause error) error { return &CallError{Kind: ErrorKindProtocol, Cause: cause} }
func NewAuthError(cause error) error     { return &CallError{Kind: ErrorKindAuth, Cause: cause} }
func NewEmptyResponseError() error {
	return &CallError{Kind: ErrorKindEmptyResponse, Cause: fmt.Errorf("response shorter than min_chars")}
}
func NewHTTPStatusError(status int, body string) error {
	return &CallError{Kind: ErrorKindHTTPStatus, Status: status, Cause: fmt.Errorf("%s", body)}
}

// ClassifyHTTPStatus maps a non-2xx status to the closed ErrorKind set
// (401/403 -> auth, everything else -> http_status; network-level failures
// are classified separately by ClassifyTransportError before a status is
// even available).
func ClassifyHTTPStatus(status int, body string) error {
	if status == 401 || status == 403 {
		return NewAuthError(fmt.Errorf("status %d: %s", status, body))
	}
	return NewHTTPStatusError(status, body)
}

// ClassifyTransportError maps a raw transport-level error (before any HTTP
// status is known) to network or timeout by matching on the error message —
// order matters, since a context deadline error often also contains the
// word "context".
func ClassifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") {
		return NewTimeoutError(err)
	}
	return NewNetworkError(err)
}

// looksLikeAuthFailure is consulted by adapters that can't distinguish auth
// failures from generic 4xx through status codes alone (e.g. some
// OpenAI-compatible servers return 400 for a bad key).
func looksLikeAuthFailure(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range []string{
		"invalid api key", "invalid_api_key", "incorrect api key",
		"unauthorized", "forbidden", "access denied",
		"no api key found", "api key not found", "invalid credentials",
	} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func parseStatusFromBody(body string) (int, bool) {
	// Some embedded/native servers report their status as a bare integer
	// in an error envelope rather than via the HTTP line; best-effort only.
	trimmed := strings.TrimSpace(body)
	if n, err := strconv.Atoi(trimmed); err == nil {
		return n, true
	}
	return 0, false
}
