package consensus

import "sort"

// ComputeJobConsensus rebuilds the job-level summary from every framework
// evaluated so far. It is always computed from scratch.
func ComputeJobConsensus(results map[string]map[string]ProviderResult, frameworkConsensus map[string]FrameworkConsensus) JobConsensus {
	frameworks := make(map[string]struct{}, len(results))
	for fw := range results {
		frameworks[fw] = struct{}{}
	}
	for fw := range frameworkConsensus {
		frameworks[fw] = struct{}{}
	}

	var confidences []float64
	models := make(map[string]struct{})
	for _, byProvider := range results {
		for provider, r := range byProvider {
			if !r.Valid() {
				continue
			}
			confidences = append(confidences, r.ConfidenceScore)
			models[provider] = struct{}{}
		}
	}

	modelsUsed := make([]string, 0, len(models))
	for m := range models {
		modelsUsed = append(modelsUsed, m)
	}
	sort.Strings(modelsUsed)

	fwIDs := make([]string, 0, len(frameworkConsensus))
	for fw := range frameworkConsensus {
		fwIDs = append(fwIDs, fw)
	}
	sort.Strings(fwIDs)
	conflictList := []Conflict{}
	for _, fw := range fwIDs {
		for _, c := range frameworkConsensus[fw].ConflictingInsights {
			c.Framework = fw
			conflictList = append(conflictList, c)
		}
	}

	return JobConsensus{
		ConsensusScore:      meanOf(confidences),
		ModelsUsed:          modelsUsed,
		AnalysisCount:       len(frameworks),
		ConflictingInsights: conflictList,
	}
}
