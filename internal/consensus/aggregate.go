package consensus

import (
	"math"
	"sort"

	"consensus-backend/internal/llm"
)

const (
	conflictThreshold     = 0.3
	highSeverityThreshold = 0.5
	maxVariancePenalty    = 0.5
	conflictDescription   = "Models show significant confidence score differences"
)

// Aggregate reconciles the provider results of one framework. order fixes
// iteration order (requested provider order); ids missing from it follow in
// sorted order. The result depends only on its inputs.
func Aggregate(frameworkID string, results map[string]ProviderResult, order []string) FrameworkConsensus {
	ids := orderedIDs(results, order)

	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if results[id].Valid() {
			valid = append(valid, id)
		}
	}

	out := FrameworkConsensus{
		ConflictingInsights: []Conflict{},
		ModelWeights:        weights(results, ids, valid),
	}

	switch len(valid) {
	case 0:
		out.AgreementLevel = AgreementNone
		out.MergedAnalysis = llm.Payload{}
		out.Methodology = MethodologyUnavailable
	case 1:
		r := results[valid[0]]
		out.ConsensusScore = r.ConfidenceScore
		out.AgreementLevel = AgreementSingleModel
		out.MergedAnalysis = nonNil(r.Analysis)
		out.Methodology = MethodologySingleModel
	default:
		confidences := make([]float64, len(valid))
		for i, id := range valid {
			confidences[i] = results[id].ConfidenceScore
		}
		mean := meanOf(confidences)
		out.ConsensusScore = clamp(0, 1, mean*(1-math.Min(populationVariance(confidences, mean), maxVariancePenalty)))
		out.AgreementLevel = agreementLevel(out.ConsensusScore)
		out.ConflictingInsights = conflicts(results, valid)
		out.MergedAnalysis = nonNil(results[best(results, valid)].Analysis)
		out.Methodology = MethodologyWeighted
	}
	return out
}

func orderedIDs(results map[string]ProviderResult, order []string) []string {
	ids := make([]string, 0, len(results))
	seen := make(map[string]struct{}, len(results))
	for _, id := range order {
		if _, ok := results[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	var rest []string
	for id := range results {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

func weights(results map[string]ProviderResult, ids, valid []string) map[string]float64 {
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		out[id] = 0
	}
	var total float64
	for _, id := range valid {
		total += results[id].ConfidenceScore
	}
	if total <= 0 {
		return out
	}
	for _, id := range valid {
		out[id] = results[id].ConfidenceScore / total
	}
	return out
}

func agreementLevel(score float64) string {
	switch {
	case score >= 0.8:
		return AgreementHigh
	case score >= 0.6:
		return AgreementMedium
	case score >= 0.4:
		return AgreementLow
	default:
		return AgreementMinimal
	}
}

// conflicts compares the two highest-confidence providers. Ties keep
// iteration order.
func conflicts(results map[string]ProviderResult, valid []string) []Conflict {
	ranked := append([]string(nil), valid...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return results[ranked[i]].ConfidenceScore > results[ranked[j]].ConfidenceScore
	})
	diff := roundDiff(results[ranked[0]].ConfidenceScore - results[ranked[1]].ConfidenceScore)
	if diff <= conflictThreshold {
		return []Conflict{}
	}
	severity := SeverityMedium
	if diff > highSeverityThreshold {
		severity = SeverityHigh
	}
	return []Conflict{{
		Type:        ConflictConfidenceDisagreement,
		Description: conflictDescription,
		Severity:    severity,
	}}
}

// best returns the first provider holding the maximum confidence.
func best(results map[string]ProviderResult, valid []string) string {
	top := valid[0]
	for _, id := range valid[1:] {
		if results[id].ConfidenceScore > results[top].ConfidenceScore {
			top = id
		}
	}
	return top
}

// roundDiff drops float noise so that e.g. 0.8-0.5 compares equal to 0.3.
func roundDiff(d float64) float64 {
	return math.Round(math.Abs(d)*1e9) / 1e9
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func populationVariance(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}

func nonNil(p llm.Payload) llm.Payload {
	if p == nil {
		return llm.Payload{}
	}
	return p
}
