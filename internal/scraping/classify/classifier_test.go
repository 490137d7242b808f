package classify

import (
	"testing"
	"time"

	"github.com/vietddude/scraperd/internal/core/domain"
	"github.com/vietddude/scraperd/internal/infra/apiclient"
)

func TestClassify_Types(t *testing.T) {
	tests := []struct {
		name string
		raw  apiclient.RawError
		want domain.ErrorType
	}{
		{
			name: "429 status",
			raw:  apiclient.RawError{StatusCode: 429, Message: "slow down"},
			want: domain.ErrorRateLimit,
		},
		{
			name: "rate limit message",
			raw:  apiclient.RawError{StatusCode: 400, Message: "Rate limit exceeded for this key"},
			want: domain.ErrorRateLimit,
		},
		{
			name: "too many requests message",
			raw:  apiclient.RawError{Message: "too many requests, try later"},
			want: domain.ErrorRateLimit,
		},
		{
			name: "402 payment required",
			raw:  apiclient.RawError{StatusCode: 402, Message: "upgrade your plan"},
			want: domain.ErrorInsufficientBalance,
		},
		{
			name: "balance message",
			raw:  apiclient.RawError{StatusCode: 400, Message: "Insufficient balance on account"},
			want: domain.ErrorInsufficientBalance,
		},
		{
			name: "404 not found",
			raw:  apiclient.RawError{StatusCode: 404, Message: "no such profile"},
			want: domain.ErrorAccountNotFound,
		},
		{
			name: "private account message",
			raw:  apiclient.RawError{StatusCode: 400, Message: "account is private"},
			want: domain.ErrorAccountNotFound,
		},
		{
			name: "timeout tag wins over text",
			raw:  apiclient.RawError{Timeout: true, Message: "rate limit exceeded"},
			want: domain.ErrorTimeout,
		},
		{
			name: "deadline exceeded message",
			raw:  apiclient.RawError{Message: "context deadline exceeded"},
			want: domain.ErrorTimeout,
		},
		{
			name: "401 unauthorized",
			raw:  apiclient.RawError{StatusCode: 401, Message: "bad credentials"},
			want: domain.ErrorAuthentication,
		},
		{
			name: "invalid token message",
			raw:  apiclient.RawError{StatusCode: 400, Message: "Invalid token supplied"},
			want: domain.ErrorAuthentication,
		},
		{
			name: "network tag",
			raw:  apiclient.RawError{Network: true, Message: "dial tcp: connection refused"},
			want: domain.ErrorNetwork,
		},
		{
			name: "unrecognized shape falls back to unknown",
			raw:  apiclient.RawError{StatusCode: 500, Message: "something odd happened"},
			want: domain.ErrorUnknown,
		},
		{
			name: "empty error",
			raw:  apiclient.RawError{},
			want: domain.ErrorUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(&tt.raw, Context{AccountID: "acc-1", SessionID: "sess-1"})
			if got.Type != tt.want {
				t.Errorf("Classify() type = %s, want %s", got.Type, tt.want)
			}
			if got.AccountID != "acc-1" || got.SessionID != "sess-1" {
				t.Error("context ids not carried into the classified error")
			}
		})
	}
}

func TestClassify_Retryability(t *testing.T) {
	retryable := map[domain.ErrorType]bool{
		domain.ErrorRateLimit:           true,
		domain.ErrorTimeout:             true,
		domain.ErrorNetwork:             true,
		domain.ErrorUnknown:             true,
		domain.ErrorInsufficientBalance: false,
		domain.ErrorAccountNotFound:     false,
		domain.ErrorAuthentication:      false,
	}

	probes := map[domain.ErrorType]apiclient.RawError{
		domain.ErrorRateLimit:           {StatusCode: 429},
		domain.ErrorTimeout:             {Timeout: true},
		domain.ErrorNetwork:             {Network: true},
		domain.ErrorUnknown:             {Message: "mystery"},
		domain.ErrorInsufficientBalance: {StatusCode: 402},
		domain.ErrorAccountNotFound:     {StatusCode: 404},
		domain.ErrorAuthentication:      {StatusCode: 401},
	}

	for typ, raw := range probes {
		got := Classify(&raw, Context{})
		if got.Type != typ {
			t.Fatalf("probe for %s classified as %s", typ, got.Type)
		}
		if got.Retryable != retryable[typ] {
			t.Errorf("%s retryable = %v, want %v", typ, got.Retryable, retryable[typ])
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	raw := apiclient.RawError{StatusCode: 429, Message: "rate limit", RetryAfter: 30 * time.Second}

	a := Classify(&raw, Context{AccountID: "x"})
	b := Classify(&raw, Context{AccountID: "x"})

	if a.Type != b.Type || a.Severity != b.Severity ||
		a.Retryable != b.Retryable || a.RetryAfter != b.RetryAfter {
		t.Error("classification is not deterministic for identical input")
	}
	if a.RetryAfter != 30*time.Second {
		t.Errorf("retry-after = %v, want 30s", a.RetryAfter)
	}
}

func TestClassify_CriticalSeverities(t *testing.T) {
	auth := Classify(&apiclient.RawError{StatusCode: 401}, Context{})
	if auth.Severity != domain.SeverityCritical {
		t.Errorf("auth severity = %s, want CRITICAL", auth.Severity)
	}
	balance := Classify(&apiclient.RawError{StatusCode: 402}, Context{})
	if balance.Severity != domain.SeverityCritical {
		t.Errorf("balance severity = %s, want CRITICAL", balance.Severity)
	}
}
