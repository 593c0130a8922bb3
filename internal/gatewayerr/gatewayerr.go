// Package gatewayerr defines the single error shape surfaced to gateway
// callers regardless of which upstream failed.
package gatewayerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind classifies a failure.
type Kind string

const (
	KindInvalidRequest Kind = "INVALID_REQUEST"
	KindAuthentication Kind = "AUTHENTICATION_ERROR"
	KindRateLimit      Kind = "RATE_LIMIT_ERROR"
	KindProvider       Kind = "PROVIDER_ERROR"
	KindNetwork        Kind = "NETWORK_ERROR"
	KindConfig         Kind = "CONFIG_ERROR"
	KindUnknown        Kind = "UNKNOWN_ERROR"
)

// MaxRawBytes caps how much of an upstream body is retained for diagnostics.
const MaxRawBytes = 64 * 1024

const maxMessageBytes = 512

// Error is a classified gateway failure.
type Error struct {
	Kind Kind

	// Status is the HTTP status to surface to the caller.
	Status int

	// UpstreamStatus is the status returned by the provider, 0 if none.
	UpstreamStatus int

	Provider string
	Message  string

	// Raw is the upstream payload, kept for diagnostics only.
	Raw []byte

	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s", e.Provider, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindUnknown for unclassified errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

// StatusFor returns the HTTP status surfaced for a kind.
func StatusFor(kind Kind) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindProvider, KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindForStatus classifies an upstream HTTP status.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthentication
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500:
		return KindProvider
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusRequestEntityTooLarge, status == http.StatusUnprocessableEntity:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// New builds an error of the given kind.
func New(kind Kind, provider, message string) *Error {
	return &Error{
		Kind:     kind,
		Status:   StatusFor(kind),
		Provider: provider,
		Message:  message,
	}
}

// FromStatus wraps a non-success upstream response.
func FromStatus(provider string, status int, body []byte) *Error {
	kind := KindForStatus(status)
	surfaced := StatusFor(kind)
	if kind == KindAuthentication && status == http.StatusForbidden {
		surfaced = http.StatusForbidden
	}
	return &Error{
		Kind:           kind,
		Status:         surfaced,
		UpstreamStatus: status,
		Provider:       provider,
		Message:        upstreamMessage(status, body),
		Raw:            truncate(body),
	}
}

// Invalid reports a malformed request.
func Invalid(provider, format string, args ...any) *Error {
	return New(KindInvalidRequest, provider, fmt.Sprintf(format, args...))
}

// Config reports a missing or unusable credential or endpoint.
func Config(provider, format string, args ...any) *Error {
	return New(KindConfig, provider, fmt.Sprintf(format, args...))
}

// Network wraps a transport failure reaching the upstream.
func Network(provider string, cause error) *Error {
	e := New(KindNetwork, provider, fmt.Sprintf("upstream request failed: %v", cause))
	e.Cause = cause
	return e
}

// Provider reports an upstream failure signalled inside a response body.
func Provider(provider, message string, raw []byte) *Error {
	e := New(KindProvider, provider, message)
	e.Raw = truncate(raw)
	return e
}

// Wrap classifies an arbitrary error, returning existing gateway errors unchanged.
func Wrap(provider string, kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	e := New(kind, provider, err.Error())
	e.Cause = err
	return e
}

// truncateText cuts text to at most limit bytes on a rune boundary.
func truncateText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func truncate(body []byte) []byte {
	if len(body) > MaxRawBytes {
		body = body[:MaxRawBytes]
	}
	if len(body) == 0 {
		return nil
	}
	return append([]byte(nil), body...)
}

// upstreamMessage extracts the provider's message from the common error envelopes.
func upstreamMessage(status int, body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var text string
			if json.Unmarshal(envelope.Error, &text) == nil && text != "" {
				return text
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
		if len(envelope.Errors) > 0 && envelope.Errors[0].Message != "" {
			return envelope.Errors[0].Message
		}
	}

	text := truncateText(strings.TrimSpace(string(body)), maxMessageBytes)
	if text == "" {
		return fmt.Sprintf("upstream error status %d", status)
	}
	return fmt.Sprintf("upstream error status %d: %s", status, text)
}
