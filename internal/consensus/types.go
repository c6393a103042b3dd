// Package consensus scores provider payloads, fans a framework out to several
// providers, and reconciles their results into one consensus record.
package consensus

import "consensus-backend/internal/llm"

const (
	AgreementNone        = "none"
	AgreementSingleModel = "single_model"
	AgreementMinimal     = "minimal"
	AgreementLow         = "low"
	AgreementMedium      = "medium"
	AgreementHigh        = "high"

	MethodologyUnavailable = "consensus_unavailable"
	MethodologySingleModel = "single_model"
	MethodologyWeighted    = "weighted_consensus"

	ConflictConfidenceDisagreement = "confidence_disagreement"
	SeverityMedium                 = "medium"
	SeverityHigh                   = "high"
)

// ProviderResult is the outcome of one provider for one framework.
type ProviderResult struct {
	Analysis        llm.Payload `json:"analysis" firestore:"analysis"`
	ConfidenceScore float64     `json:"confidence_score" firestore:"confidence_score"`
	ProcessingTime  float64     `json:"processing_time" firestore:"processing_time"`
	Error           string      `json:"error,omitempty" firestore:"error,omitempty"`
}

// Valid reports whether the result contributes to consensus.
func (r ProviderResult) Valid() bool {
	return r.ConfidenceScore > 0
}

// Conflict records a disagreement between providers.
type Conflict struct {
	Type        string `json:"type" firestore:"type"`
	Description string `json:"description" firestore:"description"`
	Severity    string `json:"severity" firestore:"severity"`
	Framework   string `json:"framework,omitempty" firestore:"framework,omitempty"`
}

// FrameworkConsensus is the reconciled result of one framework.
type FrameworkConsensus struct {
	ConsensusScore      float64            `json:"consensus_score" firestore:"consensus_score"`
	AgreementLevel      string             `json:"agreement_level" firestore:"agreement_level"`
	ConflictingInsights []Conflict         `json:"conflicting_insights" firestore:"conflicting_insights"`
	MergedAnalysis      llm.Payload        `json:"merged_analysis" firestore:"merged_analysis"`
	Methodology         string             `json:"methodology" firestore:"methodology"`
	ModelWeights        map[string]float64 `json:"model_weights" firestore:"model_weights"`
}

// JobConsensus summarizes every framework evaluated for a job.
type JobConsensus struct {
	ConsensusScore      float64    `json:"consensus_score" firestore:"consensus_score"`
	ModelsUsed          []string   `json:"models_used" firestore:"models_used"`
	AnalysisCount       int        `json:"analysis_count" firestore:"analysis_count"`
	ConflictingInsights []Conflict `json:"conflicting_insights" firestore:"conflicting_insights"`
}
