package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

// FetchError is returned when a feed page request fails at the transport
// layer or with a non-2xx status. It ends the group's run.
type FetchError struct {
	GroupID string
	Cursor  string
	Status  int
	Cause   error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch page for group %s (cursor %q): status %d", e.GroupID, e.Cursor, e.Status)
	}
	return fmt.Sprintf("fetch page for group %s (cursor %q): %v", e.GroupID, e.Cursor, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// EmptyPageError reports that the feed kept returning empty pages.
type EmptyPageError struct {
	GroupID  string
	Cursor   string
	Attempts int
}

func (e *EmptyPageError) Error() string {
	return fmt.Sprintf("group %s returned %d empty pages in a row (cursor %q)", e.GroupID, e.Attempts, e.Cursor)
}

// AssetStage names the step of an asset download that failed.
type AssetStage string

const (
	StageResolve AssetStage = "resolve"
	StageStream  AssetStage = "stream"
	StageWrite   AssetStage = "write"
)

// AssetError is returned when an image or file could not be stored.
// Callers treat it as "asset unavailable", never as fatal to the topic.
type AssetError struct {
	Locator string
	Stage   AssetStage
	Status  int
	Cause   error
}

func (e *AssetError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("asset %s: %s failed with status %d", e.Locator, e.Stage, e.Status)
	}
	return fmt.Sprintf("asset %s: %s failed: %v", e.Locator, e.Stage, e.Cause)
}

func (e *AssetError) Unwrap() error { return e.Cause }

// ParseError signals an unexpected payload shape or timestamp format.
type ParseError struct {
	Field string
	Value string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("parse %s %q: %v", e.Field, e.Value, e.Cause)
	}
	return fmt.Sprintf("parse %s: %v", e.Field, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// IsFetchError reports whether err wraps a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return stderrors.As(err, &fe)
}

// IsParseError reports whether err wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return stderrors.As(err, &pe)
}

// TypeForStatus maps an HTTP status code to an ErrorType
func TypeForStatus(statusCode int) ErrorType {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth
	case statusCode == 404:
		return ErrorTypeNotFound
	case statusCode == 429:
		return ErrorTypeRateLimit
	case statusCode >= 500:
		return ErrorTypeServerError
	default:
		return ErrorTypeUnknown
	}
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
