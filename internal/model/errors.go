package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInvoice is returned when a document parsed but yielded neither
// an invoice number nor any item
var ErrEmptyInvoice = errors.New("invoice has no number and no items")

// Validation rules, in the short form reported by ValidationError
const (
	RuleRequired = "required"
	RulePositive = "gt=0"
	RuleNonNeg   = "gte=0"
	RulePercent  = "range=0..100"
	RuleMinItems = "min=1"
	RuleIndex    = "index"
)

// ParseError is a document that could not be read. Field names the element
// or stage that failed.
type ParseError struct {
	Source  Source
	Field   string
	Message string
	Cause   error
}

func NewParseError(source Source, field, message string, cause error) *ParseError {
	return &ParseError{Source: source, Field: field, Message: message, Cause: cause}
}

func (e *ParseError) Error() string {
	return withCause(fmt.Sprintf("[%s] %s: %s", e.Source, e.Field, e.Message), e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ValidationError rejects a value before it reaches the draft or the store
type ValidationError struct {
	Field   string
	Value   any
	Rule    string
	Message string
}

func NewValidationError(field string, value any, rule, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Rule: rule, Message: message}
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed on %s: %s (", e.Field, e.Message)
	if e.Value != nil {
		fmt.Fprintf(&b, "value=%v, ", e.Value)
	}
	fmt.Fprintf(&b, "rule=%s)", e.Rule)
	return b.String()
}

// ExtractionError is a failure of one extraction method (xml, llm_text,
// llm_vision)
type ExtractionError struct {
	Method  string
	Message string
	Cause   error
}

func NewExtractionError(method, message string, cause error) *ExtractionError {
	return &ExtractionError{Method: method, Message: message, Cause: cause}
}

func (e *ExtractionError) Error() string {
	return withCause(fmt.Sprintf("extraction failed [%s]: %s", e.Method, e.Message), e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

// IsInputError reports whether err is the caller's fault: an unreadable
// document, an empty invoice or a rejected value
func IsInputError(err error) bool {
	var pe *ParseError
	var ve *ValidationError
	return errors.Is(err, ErrEmptyInvoice) || errors.As(err, &pe) || errors.As(err, &ve)
}

func withCause(msg string, cause error) string {
	if cause == nil {
		return msg
	}
	return msg + " (" + cause.Error() + ")"
}
