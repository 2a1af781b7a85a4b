package provider

import (
	"errors"
	"fmt"
)

// Kind is the role a provider plays for a request
type Kind string

const (
	KindRecognition Kind = "recognition"
	KindTranslation Kind = "translation"
	KindSummary     Kind = "summary"
)

var (
	ErrRecognitionEngineMissing = errors.New("recognition engine missing credentials")
	ErrTranslationEngineMissing = errors.New("translation engine missing credentials")
	ErrSummaryEngineMissing     = errors.New("summary engine missing credentials")
)

// EngineMissingError reports a selected engine without credentials.
// It unwraps to the sentinel for its Kind.
type EngineMissingError struct {
	Kind   Kind
	Engine Engine
}

func (e *EngineMissingError) Error() string {
	return fmt.Sprintf("%s engine %s has no API key configured", e.Kind, e.Engine)
}

func (e *EngineMissingError) Unwrap() error {
	switch e.Kind {
	case KindRecognition:
		return ErrRecognitionEngineMissing
	case KindTranslation:
		return ErrTranslationEngineMissing
	default:
		return ErrSummaryEngineMissing
	}
}

// HTTPError is a non-2xx response from a provider endpoint
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
