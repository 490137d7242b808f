// Package classify maps raw metrics-API failures into the closed error
// taxonomy. Classification is deterministic and side-effect-free.
package classify

import (
	"strings"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
	"github.com/vietddude/scraperd/internal/infra/apiclient"
)

// Context carries the identifiers attached to the classified error.
type Context struct {
	AccountID string
	SessionID string
	Attempt   int
}

// Indicator lists, checked in priority order. Matching is case-insensitive
// substring matching against the raw message.
var (
	rateLimitIndicators = []string{
		"rate limit",
		"too many requests",
		"request count exceeded",
		"quota exceeded",
		"throttled",
	}
	balanceIndicators = []string{
		"insufficient balance",
		"insufficient funds",
		"payment required",
		"billing",
		"out of credits",
	}
	notFoundIndicators = []string{
		"not found",
		"does not exist",
		"account is private",
		"profile unavailable",
		"user disabled",
	}
	timeoutIndicators = []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}
	authIndicators = []string{
		"unauthorized",
		"invalid token",
		"invalid api key",
		"authentication",
		"forbidden",
		"access denied",
	}
	networkIndicators = []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"eof",
		"broken pipe",
	}
)

// severityByType and retryableByType are static properties of the taxonomy.
var severityByType = map[domain.ErrorType]domain.Severity{
	domain.ErrorRateLimit:           domain.SeverityHigh,
	domain.ErrorInsufficientBalance: domain.SeverityCritical,
	domain.ErrorAccountNotFound:     domain.SeverityLow,
	domain.ErrorAuthentication:      domain.SeverityCritical,
	domain.ErrorTimeout:             domain.SeverityMedium,
	domain.ErrorNetwork:             domain.SeverityMedium,
	domain.ErrorUnknown:             domain.SeverityMedium,
}

var retryableByType = map[domain.ErrorType]bool{
	domain.ErrorRateLimit:           true,
	domain.ErrorInsufficientBalance: false,
	domain.ErrorAccountNotFound:     false,
	domain.ErrorAuthentication:      false,
	domain.ErrorTimeout:             true,
	domain.ErrorNetwork:             true,
	domain.ErrorUnknown:             true,
}

// Classify maps a raw failure into a ScrapingError. An unrecognized shape
// falls back to UNKNOWN_ERROR; it never fails.
func Classify(raw *apiclient.RawError, ctx Context) domain.ScrapingError {
	typ := classifyType(raw)
	return domain.ScrapingError{
		Type:       typ,
		Severity:   severityByType[typ],
		AccountID:  ctx.AccountID,
		SessionID:  ctx.SessionID,
		Message:    raw.Message,
		Retryable:  retryableByType[typ],
		RetryAfter: raw.RetryAfter,
		Timestamp:  time.Now(),
	}
}

func classifyType(raw *apiclient.RawError) domain.ErrorType {
	msg := strings.ToLower(raw.Message)

	// Structural tags from the transport take priority over text.
	if raw.Timeout {
		return domain.ErrorTimeout
	}

	switch raw.StatusCode {
	case 429:
		return domain.ErrorRateLimit
	case 402:
		return domain.ErrorInsufficientBalance
	case 404, 410:
		return domain.ErrorAccountNotFound
	case 401:
		return domain.ErrorAuthentication
	case 408, 504:
		return domain.ErrorTimeout
	}

	switch {
	case matchesAny(msg, rateLimitIndicators):
		return domain.ErrorRateLimit
	case matchesAny(msg, balanceIndicators):
		return domain.ErrorInsufficientBalance
	case matchesAny(msg, notFoundIndicators):
		return domain.ErrorAccountNotFound
	case matchesAny(msg, timeoutIndicators):
		return domain.ErrorTimeout
	case matchesAny(msg, authIndicators):
		return domain.ErrorAuthentication
	case raw.Network || matchesAny(msg, networkIndicators):
		return domain.ErrorNetwork
	}
	return domain.ErrorUnknown
}

func matchesAny(msg string, indicators []string) bool {
	for _, ind := range indicators {
		if strings.Contains(msg, ind) {
			return true
		}
	}
	return false
}
