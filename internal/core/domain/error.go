package domain

import "time"

// ErrorType is the closed taxonomy every raw failure is mapped into.
type ErrorType string

const (
	ErrorRateLimit           ErrorType = "RATE_LIMIT_EXCEEDED"
	ErrorInsufficientBalance ErrorType = "INSUFFICIENT_BALANCE"
	ErrorAccountNotFound     ErrorType = "ACCOUNT_NOT_FOUND"
	ErrorAuthentication      ErrorType = "AUTHENTICATION_ERROR"
	ErrorTimeout             ErrorType = "TIMEOUT_ERROR"
	ErrorNetwork             ErrorType = "NETWORK_ERROR"
	ErrorUnknown             ErrorType = "UNKNOWN_ERROR"
)

// Severity grades how damaging a classified error is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ScrapingError is a classified failure. Created once per failed call,
// never mutated afterwards.
type ScrapingError struct {
	Type       ErrorType     `json:"type"`
	Severity   Severity      `json:"severity"`
	AccountID  string        `json:"account_id,omitempty"`
	SessionID  string        `json:"session_id,omitempty"`
	Message    string        `json:"message"`
	Retryable  bool          `json:"retryable"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}
