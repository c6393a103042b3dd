package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus-backend/internal/analyses"
	"consensus-backend/internal/consensus"
	"consensus-backend/internal/llm"
)

func init() {
	color.NoColor = true
}

func sampleJob() analyses.Job {
	return analyses.Job{
		ID:            "job-1",
		BusinessInput: "tea shop",
		Frameworks:    []string{"swot"},
		Providers:     []string{"deepseek", "gemini"},
		Status:        analyses.StatusCompleted,
		Results: map[string]map[string]consensus.ProviderResult{
			"swot": {
				"deepseek": {ConfidenceScore: 0.82, ProcessingTime: 1.5, Analysis: llm.Payload{}},
				"gemini":   {Error: "quota exceeded", Analysis: llm.Payload{}},
			},
		},
		FrameworkConsensus: map[string]consensus.FrameworkConsensus{
			"swot": {
				ConsensusScore: 0.82,
				AgreementLevel: consensus.AgreementSingleModel,
				Methodology:    consensus.MethodologySingleModel,
				MergedAnalysis: llm.Payload{"strengths": []any{"loyal regulars"}},
				ModelWeights:   map[string]float64{"deepseek": 1, "gemini": 0},
			},
		},
		Consensus:       consensus.JobConsensus{ConsensusScore: 0.82, ModelsUsed: []string{"deepseek"}, AnalysisCount: 1},
		ConfidenceScore: 0.82,
		CreatedAt:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateFormat(t *testing.T) {
	for _, f := range []string{formatText, formatJSON, formatYAML} {
		assert.NoError(t, validateFormat(f))
	}
	assert.Error(t, validateFormat("xml"))
}

func TestWriteJobText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJob(&buf, formatText, sampleJob()))

	out := buf.String()
	assert.Contains(t, out, "ANALYSIS job-1 [completed]")
	assert.Contains(t, out, "SWOT ANALYSIS")
	assert.Contains(t, out, "Confidence:  82%")
	assert.Contains(t, out, "gemini     failed: quota exceeded")
	assert.Contains(t, out, "- loyal regulars")
}

func TestWriteJobYAMLUsesAPIFieldNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJob(&buf, formatYAML, sampleJob()))

	out := buf.String()
	assert.Contains(t, out, "business_input: tea shop")
	assert.Contains(t, out, "confidence_score: 0.82")
	assert.Contains(t, out, "models_used:")
}

func TestWriteFrameworksText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrameworks(&buf, formatText, llm.Frameworks()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, len(llm.Frameworks()))
	assert.True(t, strings.HasPrefix(lines[0], "swot"))
}
