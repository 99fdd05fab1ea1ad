// Package errors provides severity-aware error types for user-facing notices.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON payloads.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "error":
		*s = SeverityError
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Error is a structured error with context.
type Error struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Subject     string   `json:"subject,omitempty"`
	Recoverable bool     `json:"recoverable"`
}

func (e *Error) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %s (%s)", e.Severity, e.Code, e.Message, e.Subject)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

// Error codes. Unparseable input has no code: the lenient parser reads it as
// zero and nothing is reported.
const (
	CodeDeductionOverflow   = "DEDUCTION_OVERFLOW"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeNotFound            = "NOT_FOUND"
)

// MsgDeductionOverflow is shown when the deductions leave no room for a price.
const MsgDeductionOverflow = "O total de taxas é maior ou igual a 100%."

// NewDeductionOverflow reports that the total deduction rate reached 100%.
func NewDeductionOverflow(marketplace string) *Error {
	return &Error{
		Code:        CodeDeductionOverflow,
		Message:     MsgDeductionOverflow,
		Severity:    SeverityWarning,
		Subject:     marketplace,
		Recoverable: true,
	}
}

// NewUpstreamUnavailable reports a failed call to the product catalog.
func NewUpstreamUnavailable(query string) *Error {
	return &Error{
		Code:        CodeUpstreamUnavailable,
		Message:     "Erro ao consultar Tiny",
		Severity:    SeverityError,
		Subject:     query,
		Recoverable: true,
	}
}

// NewNotFound reports a catalog query without matches.
func NewNotFound(query string) *Error {
	return &Error{
		Code:        CodeNotFound,
		Message:     "Produto não encontrado",
		Severity:    SeverityInfo,
		Subject:     query,
		Recoverable: false,
	}
}
