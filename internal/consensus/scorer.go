package consensus

import (
	"math/rand/v2"

	"consensus-backend/internal/llm"
)

const (
	emptyPayloadScore = 0.1
	minScore          = 0.3
	maxScore          = 0.95
	completenessScale = 0.8
	maxNoise          = 0.2
)

// Scorer assigns a confidence in [0,1] to a provider payload.
type Scorer interface {
	Score(payload llm.Payload, frameworkID string) float64
}

// NoiseSource supplies the perturbation added to completeness scores.
// Values outside [0, 0.2] are clamped.
type NoiseSource interface {
	Noise() float64
}

// FixedNoise is a NoiseSource that always returns the same value.
type FixedNoise float64

func (f FixedNoise) Noise() float64 { return float64(f) }

type uniformNoise struct{}

func (uniformNoise) Noise() float64 { return rand.Float64() * maxNoise }

// HeuristicScorer scores payloads by section completeness plus bounded noise:
//
//	score = clamp(0.3, 0.95, completeness*0.8 + noise), noise in [0, 0.2]
//
// Empty or unstructured payloads score 0.1.
type HeuristicScorer struct {
	noise NoiseSource
}

// NewHeuristicScorer returns a scorer using noise, or uniform random noise when nil.
func NewHeuristicScorer(noise NoiseSource) *HeuristicScorer {
	if noise == nil {
		noise = uniformNoise{}
	}
	return &HeuristicScorer{noise: noise}
}

func (s *HeuristicScorer) Score(payload llm.Payload, frameworkID string) float64 {
	if len(payload) == 0 || llm.IsUnstructured(payload) {
		return emptyPayloadScore
	}
	return clamp(minScore, maxScore, Completeness(payload, frameworkID)*completenessScale+s.sampleNoise())
}

func (s *HeuristicScorer) sampleNoise() float64 {
	return clamp(0, maxNoise, s.noise.Noise())
}

// Completeness is the share of the framework's expected sections present in
// payload. Frameworks without expected sections count every present key.
func Completeness(payload llm.Payload, frameworkID string) float64 {
	expected := llm.ExpectedSections(frameworkID)
	if len(expected) == 0 {
		if len(payload) == 0 {
			return 0
		}
		return 1
	}
	found := 0
	for _, key := range expected {
		if _, ok := payload[key]; ok {
			found++
		}
	}
	return float64(found) / float64(len(expected))
}

func clamp(lo, hi, v float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
