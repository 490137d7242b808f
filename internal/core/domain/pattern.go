package domain

import "time"

// Impact grades the predicted blast radius of an error pattern.
type Impact string

const (
	ImpactLow      Impact = "LOW"
	ImpactMedium   Impact = "MEDIUM"
	ImpactHigh     Impact = "HIGH"
	ImpactCritical Impact = "CRITICAL"
)

// Mitigation is the suggested response class for a pattern.
type Mitigation string

const (
	MitigationPreventive Mitigation = "PREVENTIVE"
	MitigationReactive   Mitigation = "REACTIVE"
	MitigationProactive  Mitigation = "PROACTIVE"
)

// ErrorPattern is a recurring error shape mined from the rolling history.
// Patterns are ephemeral: recomputation overwrites by ID.
type ErrorPattern struct {
	ID         string        `json:"id"`
	ErrorTypes []ErrorType   `json:"error_types"`
	Frequency  int           `json:"frequency"`
	Window     time.Duration `json:"window"`
	AccountIDs []string      `json:"account_ids,omitempty"`
	Confidence float64       `json:"confidence"`
	Impact     Impact        `json:"impact"`
	Mitigation Mitigation    `json:"mitigation"`
	DetectedAt time.Time     `json:"detected_at"`
}
