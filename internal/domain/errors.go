package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched with errors.Is. The structured errors below unwrap to
// one or more of them.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrCancelled    = errors.New("cancelled")
	ErrRateLimited  = errors.New("rate limited")
	ErrParseFailure = errors.New("parse failure")

	// ErrProviderUnavailable covers network failures, timeouts and non-2xx
	// responses from a provider.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrInvalidReference marks a reference with no usable field. Resolution
	// itself answers such a reference with an empty result.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrUnsupportedQuery marks a query tier or listing a provider does not
	// index.
	ErrUnsupportedQuery = errors.New("unsupported query")
)

// ValidationError rejects one request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError names the entity kind and the identifier that was missing.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitError is returned once a provider keeps answering 429 after every
// retry. RetryAfter is the delay the provider last asked for.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// A rate-limited provider is also an unavailable one.
func (e *RateLimitError) Unwrap() []error {
	return []error{ErrRateLimited, ErrProviderUnavailable}
}

// ExternalAPIError is a failed provider call. StatusCode is zero when no
// response arrived.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ExternalAPIError) Error() string {
	if e.Cause != nil && e.StatusCode == 0 {
		return fmt.Sprintf("%s API error: %s: %v", e.Source, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap exposes ErrProviderUnavailable and the underlying cause.
func (e *ExternalAPIError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrProviderUnavailable}
	}
	return []error{ErrProviderUnavailable, e.Cause}
}

// ParseError reports a provider payload that could not be decoded. Record is
// the zero-based position of the offending record, or -1 for the whole body.
type ParseError struct {
	Source string
	Record int
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Record < 0 {
		return fmt.Sprintf("%s: malformed response: %v", e.Source, e.Cause)
	}
	return fmt.Sprintf("%s: malformed record %d: %v", e.Source, e.Record, e.Cause)
}

// Unwrap exposes ErrParseFailure and the underlying cause.
func (e *ParseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrParseFailure}
	}
	return []error{ErrParseFailure, e.Cause}
}

func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Source: source, RetryAfter: retryAfter}
}

func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{Source: source, StatusCode: statusCode, Message: message, Cause: cause}
}

// NewParseError reports record as malformed, or the whole body when record
// is negative.
func NewParseError(source string, record int, cause error) *ParseError {
	return &ParseError{Source: source, Record: record, Cause: cause}
}
