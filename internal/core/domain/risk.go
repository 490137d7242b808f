package domain

// RiskLevel is the coarse pre-flight classification of a candidate session.
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// SessionRisk is a one-shot go/no-go assessment produced before a session
// starts. It is not persisted past the decision point.
type SessionRisk struct {
	Level                   RiskLevel `json:"level"`
	Score                   float64   `json:"score"`
	Factors                 []string  `json:"factors"`
	Recommendations         []string  `json:"recommendations"`
	ShouldProceed           bool      `json:"should_proceed"`
	RecommendedAccountLimit int       `json:"recommended_account_limit"`
}
